package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

// runFP runs the program with the given args and input.
func runFP(t *testing.T, input string, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	exitCode = run(context.Background(), args, strings.NewReader(input), &outBuf, &errBuf, false)
	return outBuf.String(), errBuf.String(), exitCode
}

const lighthouse = `{"type": "Feature", "id": 1, "geometry": {"type": "Point", "coordinates": [1, 2]},
 "properties": {"name": "North", "tags": ["red", "tall"], "built": "1900"}}`

func TestOutput(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
		want  string
	}{
		{
			name:  "compact collection",
			input: lighthouse,
			args:  []string{"-json-compact"},
			want:  `{"type":"FeatureCollection","features":[{"type":"Feature","id":1,"geometry":{"type":"Point","coordinates":[1,2]},"properties":{"name":"North","tags":["red","tall"],"built":"1900"}}],"numberMatched":1,"numberReturned":1}`,
		},
		{
			name:  "single feature, flattened",
			input: lighthouse,
			args:  []string{"-json-compact", "-id", "1", "-out", "flat", "-properties", "tags"},
			want:  `{"type":"Feature","id":1,"geometry":{"type":"Point","coordinates":[1,2]},"properties":{"tags.1":"red","tags.2":"tall"}}`,
		},
		{
			name:  "jpv",
			input: lighthouse,
			args:  []string{"-id", "1", "-out", "jpv", "-properties", "name"},
			want: `$["type"] = "Feature"
$["id"] = 1
$["geometry"] = {"type":"Point","coordinates":[1,2]}
$["properties"]["name"] = "North"
`,
		},
		{
			name:  "jsonfg time",
			input: lighthouse,
			args:  []string{"-json-compact", "-id", "1", "-out", "jsonfg", "-roles", "properties.built=instant", "-properties", "built"},
			want:  `{"type":"Feature","conformsTo":["http://www.opengis.net/spec/json-fg-1/0.2/conf/core"],"coordRefSys":"http://www.opengis.net/def/crs/OGC/1.3/CRS84","id":1,"geometry":{"type":"Point","coordinates":[1,2]},"properties":{"built":"1900"},"time":{"instant":"1900"},"place":null}`,
		},
		{
			name:  "csv",
			input: "id,name,lon,lat\nb1,Alpha,1,2\nb2,Beta,3,4\n",
			args:  []string{"-json-compact", "-csv-x", "lon", "-csv-y", "lat", "-filter", `properties.name == "Beta"`},
			want:  `{"type":"FeatureCollection","features":[{"type":"Feature","id":"b2","geometry":{"type":"Point","coordinates":[3,4]},"properties":{"name":"Beta"}}],"numberMatched":1,"numberReturned":1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, code := runFP(t, tt.input, tt.args...)
			if code != 0 {
				t.Fatalf("exit code %d: %s", code, stderr)
			}
			if strings.TrimSpace(stdout) != strings.TrimSpace(tt.want) {
				t.Errorf("expected:\n%s\ngot:\n%s", tt.want, stdout)
			}
		})
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		args  []string
		want  string
	}{
		{name: "empty input", input: "", want: "empty input"},
		{name: "bad output format", input: lighthouse, args: []string{"-out", "xml"}, want: "invalid output format"},
		{name: "bad color", input: lighthouse, args: []string{"-color", "pink"}, want: "invalid -color"},
		{name: "bad roles", input: lighthouse, args: []string{"-roles", "properties.built"}, want: "invalid -roles"},
		{name: "bad filter", input: lighthouse, args: []string{"-filter", "1 +"}, want: "invalid filter"},
		{name: "unknown id", input: lighthouse, args: []string{"-id", "2"}, want: `no feature with id "2"`},
		{name: "invalid input", input: `{"type": "Point"}`, want: "invalid input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runFP(t, tt.input, tt.args...)
			if code != 1 {
				t.Errorf("expected exit code 1, got %d", code)
			}
			if !strings.Contains(stderr, tt.want) {
				t.Errorf("expected %q in %q", tt.want, stderr)
			}
		})
	}
}

func TestColors(t *testing.T) {
	stdout, _, code := runFP(t, lighthouse, "-color", "always", "-json-compact")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stdout, "\x1b[") {
		t.Errorf("expected color codes in %q", stdout)
	}
}
