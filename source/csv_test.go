package source

import (
	"errors"
	"strings"
	"testing"

	"github.com/arnodel/featurestream/token"
)

func TestCSVDecoder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		setup    func(d *CSVDecoder)
		expected []string
	}{
		{
			name: "grouped columns",
			input: `id,name,tags[2],tags[1],contacts[2].email,contacts[1].email,lon,lat,zip
1,Lighthouse,tall,red,b@x,a@x,1.5,2,01234
2,"Say ""hi""",,,,,,,
`,
			setup: func(d *CSVDecoder) { d.X, d.Y = "lon", "lat" },
			expected: []string{
				"FeatureStart",
				"id = 1 (id)",
				`geometry = {"type":"Point","coordinates":[1.5,2]} (primary-geometry)`,
				`properties.name = "Lighthouse"`,
				`properties.tags[][1] = "red"`,
				`properties.tags[][2] = "tall"`,
				`properties.contacts[].email[1] = "a@x"`,
				`properties.contacts[].email[2] = "b@x"`,
				`properties.zip = "01234"`,
				"FeatureEnd",
				"FeatureStart",
				"id = 2 (id)",
				`properties.name = "Say \"hi\""`,
				"FeatureEnd",
			},
		},
		{
			name: "typed cells",
			input: `a;b;c;d;e
true;-1.5e3;x y;false;-
`,
			setup: func(d *CSVDecoder) { d.Comma = ';' },
			expected: []string{
				"FeatureStart",
				"properties.a = true",
				"properties.b = -1.5e3",
				`properties.c = "x y"`,
				"properties.d = false",
				`properties.e = "-"`,
				"FeatureEnd",
			},
		},
		{
			name: "geometry column and roles",
			input: `geometry,from,grid[1][2],grid[1][1],grid[2][1]
"{""type"": ""Point"", ""coordinates"": [0, 0]}",2020,b,a,c
`,
			setup: func(d *CSVDecoder) { d.Roles = map[string]token.Role{"properties.from": token.InstantStart} },
			expected: []string{
				"FeatureStart",
				`geometry = {"type":"Point","coordinates":[0,0]} (primary-geometry)`,
				"properties.from = 2020 (instant-start)",
				`properties.grid[][][1 1] = "a"`,
				`properties.grid[][][1 2] = "b"`,
				`properties.grid[][][2 1] = "c"`,
				"FeatureEnd",
			},
		},
		{
			name: "filtered by id",
			input: `id,n
a,1
b,2
`,
			setup: func(d *CSVDecoder) { d.ID = "b" },
			expected: []string{
				"FeatureStart",
				`id = "b" (id)`,
				"properties.n = 2",
				"FeatureEnd",
			},
		},
		{
			name:     "header only",
			input:    "id,name\n",
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := NewCSVDecoder(strings.NewReader(tt.input))
			if tt.setup != nil {
				tt.setup(dec)
			}
			got, err := readEvents(t, dec)
			if err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			checkEvents(t, tt.expected, got)
		})
	}
}

func TestCSVDecoderErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		invalid bool
	}{
		{name: "duplicate column", input: "name,name\nx,y\n", invalid: true},
		{name: "zero index", input: "tags[0]\nx\n", invalid: true},
		{name: "bad index", input: "tags[x]\nx\n", invalid: true},
		{name: "unterminated index", input: "tags[1\nx\n", invalid: true},
		{name: "empty name", input: "a,\nx,y\n", invalid: true},
		{name: "invalid geometry", input: "geometry\n{\n"},
		{name: "bad quotes", input: "a\n\"x\"y\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readEvents(t, NewCSVDecoder(strings.NewReader(tt.input)))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.invalid && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %s", err)
			}
		})
	}
}
