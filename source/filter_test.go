package source

import (
	"errors"
	"testing"

	"github.com/arnodel/featurestream/token"
)

func filterFeatures() []token.Event {
	var events []token.Event
	add := func(props ...token.Event) {
		events = append(events, token.Event{Kind: token.FeatureStart})
		events = append(events, props...)
		events = append(events, token.Event{Kind: token.FeatureEnd})
	}
	id := func(n int64) token.Event {
		return token.Event{Kind: token.Property, Path: idPath, Value: token.Int64Scalar(n), Role: token.ID}
	}
	add(
		id(1),
		token.PropertyEvent("properties.height", token.Int64Scalar(40)),
		token.PropertyEvent("properties.tags[]", token.StringScalar("red"), 1),
	)
	add(
		id(2),
		token.PropertyEvent("properties.height", token.Int64Scalar(60)),
		token.PropertyEvent("properties.tags[]", token.StringScalar("blue"), 1),
		token.PropertyEvent("properties.contacts[].email", token.StringScalar("a@x"), 1),
		token.PropertyEvent("properties.contacts[].email", token.StringScalar("b@x"), 2),
	)
	add(
		id(3),
		token.PropertyEvent("properties.height", token.Int64Scalar(80)),
		token.PropertyEvent("properties.tags[]", token.StringScalar("red"), 1),
		token.PropertyEvent("properties.address.city", token.StringScalar("Brest")),
		token.PropertyEvent(`properties.address\.city`, token.StringScalar("Quimper")),
		token.PropertyEvent("properties.", token.StringScalar("blank")),
	)
	return events
}

// matchedIDs returns the ids of the features that pass the filter.
func matchedIDs(t *testing.T, filter *Filter) []string {
	t.Helper()
	events, err := token.ReadAll(NewFilterReadStream(token.NewSliceReadStream(filterFeatures()), filter))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	var ids []string
	for _, ev := range events {
		if ev.Role == token.ID {
			ids = append(ids, string(ev.Value.Bytes))
		}
	}
	return ids
}

func TestFilter(t *testing.T) {
	tests := []struct {
		expr     string
		expected []string
	}{
		{expr: "true", expected: []string{"1", "2", "3"}},
		{expr: "properties.height > 50", expected: []string{"2", "3"}},
		{expr: `"red" in properties.tags`, expected: []string{"1", "3"}},
		{expr: "id == 2", expected: []string{"2"}},
		{expr: "len(properties.contacts?.email ?? []) == 2", expected: []string{"2"}},
		{expr: `properties.address?.city == "Brest"`, expected: []string{"3"}},
		{expr: "properties.missing == nil && properties.height < 50", expected: []string{"1"}},
		{expr: `properties["address.city"] == "Quimper"`, expected: []string{"3"}},
		{expr: `properties[""] == "blank"`, expected: []string{"3"}},
		{expr: "false", expected: nil},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			filter, err := CompileFilter(tt.expr)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			got := matchedIDs(t, filter)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

func TestFilterPassesEventsThrough(t *testing.T) {
	filter, err := CompileFilter("id == 3")
	if err != nil {
		t.Fatal(err)
	}
	events, err := token.ReadAll(NewFilterReadStream(token.NewSliceReadStream(filterFeatures()), filter))
	if err != nil {
		t.Fatal(err)
	}
	expected := []string{
		"FeatureStart",
		"id = 3 (id)",
		"properties.height = 80",
		`properties.tags[][1] = "red"`,
		`properties.address.city = "Brest"`,
		"FeatureEnd",
	}
	got := make([]string, len(events))
	for i, ev := range events {
		got[i] = ev.String()
	}
	checkEvents(t, expected, got)
}

func TestCompileFilterErrors(t *testing.T) {
	for _, src := range []string{"properties.(", "1 + 2", `"x"`} {
		t.Run(src, func(t *testing.T) {
			if _, err := CompileFilter(src); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

type failingStream struct{ err error }

func (s failingStream) Next() (token.Event, error) {
	return token.Event{}, s.err
}

func TestFilterSourceError(t *testing.T) {
	filter, err := CompileFilter("true")
	if err != nil {
		t.Fatal(err)
	}
	errSource := errors.New("source failed")
	_, err = NewFilterReadStream(failingStream{errSource}, filter).Next()
	if !errors.Is(err, errSource) {
		t.Errorf("expected source error, got %v", err)
	}
}
