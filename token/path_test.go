package token

import (
	"reflect"
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		input    string
		expected Path
	}{
		{"", nil},
		{"geometry", Path{{Name: "geometry"}}},
		{"properties.name", Path{{Name: "properties"}, {Name: "name"}}},
		{"properties.tags[]", Path{
			{Name: "properties"},
			{Name: "tags", Multiplicity: "properties.tags[]"},
		}},
		{"properties.contacts[].email", Path{
			{Name: "properties"},
			{Name: "contacts", Multiplicity: "properties.contacts[]"},
			{Name: "email"},
		}},
		{"properties.grid[][]", Path{
			{Name: "properties"},
			{Name: "grid", Multiplicity: "properties.grid[]"},
			{Multiplicity: "properties.grid[][]", Anonymous: true},
		}},
		{"a[].b[]", Path{
			{Name: "a", Multiplicity: "a[]"},
			{Name: "b", Multiplicity: "a[].b[]"},
		}},
		{`properties.a\.b[]`, Path{
			{Name: "properties"},
			{Name: "a.b", Multiplicity: `properties.a\.b[]`},
		}},
		{`properties.x\[\]\\`, Path{
			{Name: "properties"},
			{Name: `x[]\`},
		}},
		{"properties.", Path{{Name: "properties"}, {Name: ""}}},
		{"properties.[]", Path{
			{Name: "properties"},
			{Name: "", Multiplicity: "properties.[]"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			path := ParsePath(tt.input)
			if !reflect.DeepEqual(path, tt.expected) {
				t.Fatalf("expected %#v, got %#v", tt.expected, path)
			}
			if got := path.String(); got != tt.input {
				t.Errorf("String(): expected %q, got %q", tt.input, got)
			}
		})
	}
}

func TestPathKeysAreDistinct(t *testing.T) {
	dotted := Path{{Name: "properties"}, {Name: "a.b"}}
	nested := Path{{Name: "properties"}, {Name: "a"}, {Name: "b"}}
	if dotted.Key() == nested.Key() {
		t.Fatalf("%s and %s share the key %q", dotted.Names(), nested.Names(), dotted.Key())
	}
	empty := Path{{Name: "properties"}, {Name: ""}}
	anonymous := Path{{Name: "properties"}, {Name: "tags", Multiplicity: "properties.tags[]"}}
	if empty.String() == "properties" {
		t.Error("empty name lost in String()")
	}
	if got := anonymous.Key(); got != "properties.tags[][]" {
		t.Errorf("unexpected nested array key %q", got)
	}
}

func TestPathHelpers(t *testing.T) {
	p := ParsePath("properties.contacts[].phones[]")
	if n := p.RepeatedCount(); n != 2 {
		t.Errorf("expected 2 repeated segments, got %d", n)
	}
	if !p.HasPrefix("properties", "contacts") {
		t.Error("expected prefix properties.contacts")
	}
	if p.HasPrefix("geometry") {
		t.Error("unexpected prefix geometry")
	}
	if got := p.Last().Name; got != "phones" {
		t.Errorf("unexpected last segment %q", got)
	}
	c := p.Clone()
	c[0].Name = "changed"
	if p[0].Name != "properties" {
		t.Error("Clone shares storage")
	}
	if p.Equal(c) {
		t.Error("expected paths to differ")
	}
	if !p.Equal(ParsePath("properties.contacts[].phones[]")) {
		t.Error("expected equal paths")
	}
}

func TestEventString(t *testing.T) {
	ev := PropertyEvent("properties.tags[]", StringScalar("red"), 2)
	if got := ev.String(); got != `properties.tags[][2] = "red"` {
		t.Errorf("unexpected String(): %s", got)
	}
	ev.Role = InstantStart
	if got := ev.String(); got != `properties.tags[][2] = "red" (instant-start)` {
		t.Errorf("unexpected String(): %s", got)
	}
	if got := (Event{Kind: FeatureEnd}).String(); got != "FeatureEnd" {
		t.Errorf("unexpected String(): %s", got)
	}
}

func TestParseRole(t *testing.T) {
	for r := Value; r <= Instant; r++ {
		got, err := ParseRole(r.String())
		if err != nil {
			t.Fatalf("%s: %v", r, err)
		}
		if got != r {
			t.Errorf("expected %v, got %v", r, got)
		}
	}
	if _, err := ParseRole("nope"); err == nil {
		t.Error("expected an error")
	}
}
