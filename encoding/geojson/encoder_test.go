package geojson

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"
	"testing"

	jsonenc "github.com/arnodel/featurestream/encoding/json"
	"github.com/arnodel/featurestream/encoding/jpv"
	"github.com/arnodel/featurestream/internal/format"
	"github.com/arnodel/featurestream/nesting"
	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
	"github.com/goccy/go-json"
	diffpatch "github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap/zaptest"
)

func checkOutput(t *testing.T, expected, got string) {
	t.Helper()
	if expected == got {
		return
	}
	dmp := diffpatch.New()
	t.Errorf("unexpected output:\n%s", dmp.DiffPrettyText(dmp.DiffMain(expected, got, false)))
}

func feature(props ...token.Event) []token.Event {
	events := []token.Event{{Kind: token.FeatureStart}}
	events = append(events, props...)
	return append(events, token.Event{Kind: token.FeatureEnd})
}

func role(ev token.Event, r token.Role) token.Event {
	ev.Role = r
	return ev
}

func lighthouse() []token.Event {
	return feature(
		token.PropertyEvent("properties.name", token.StringScalar("Lighthouse")),
		token.PropertyEvent("properties.tags[]", token.StringScalar("red"), 1),
		token.PropertyEvent("properties.tags[]", token.StringScalar("tall"), 2),
		role(token.PropertyEvent("geometry", token.RawScalar([]byte(`{"type": "Point", "coordinates": [1, 2]}`))), token.PrimaryGeometry),
	)
}

func encodeWith(t *testing.T, enc *Encoder, opts *stage.Options, in token.ReadStream) (string, int, error) {
	t.Helper()
	var buf bytes.Buffer
	w := jsonenc.NewWriter(&format.DefaultPrinter{Writer: &buf, IndentSize: -1}, nil, true)
	n, err := enc.Encode(context.Background(), opts, in, w)
	return buf.String(), n, err
}

func encode(t *testing.T, opts *stage.Options, events ...token.Event) (string, error) {
	t.Helper()
	enc := NewEncoder(nil, zaptest.NewLogger(t))
	out, _, err := encodeWith(t, enc, opts, token.NewSliceReadStream(events))
	return out, err
}

func geoJSON() *stage.Options {
	return &stage.Options{CollectionID: "lighthouses", MediaType: stage.MediaTypeGeoJSON}
}

func TestEncode(t *testing.T) {
	jsonfg := &stage.Options{
		CollectionID:  "lighthouses",
		MediaType:     stage.MediaTypeJSONFG,
		CRS:           "http://www.opengis.net/def/crs/EPSG/0/3857",
		FeatureType:   "Lighthouse",
		FeatureSchema: "http://h/schema",
	}
	tests := []struct {
		name     string
		opts     *stage.Options
		events   []token.Event
		expected string
	}{
		{
			name:     "worked scenario",
			opts:     geoJSON(),
			events:   lighthouse(),
			expected: `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"name":"Lighthouse","tags":["red","tall"]},"geometry":{"type":"Point","coordinates":[1,2]}}],"numberMatched":1,"numberReturned":1}`,
		},
		{
			name:     "empty stream",
			opts:     geoJSON(),
			expected: `{"type":"FeatureCollection","features":[],"numberMatched":0,"numberReturned":0}`,
		},
		{
			name: "feature without properties nor geometry",
			opts: geoJSON(),
			events: feature(
				role(token.PropertyEvent("id", token.Int64Scalar(7)), token.ID),
			),
			expected: `{"type":"FeatureCollection","features":[{"type":"Feature","id":7,"properties":null,"geometry":null}],"numberMatched":1,"numberReturned":1}`,
		},
		{
			name:     "single feature",
			opts:     &stage.Options{CollectionID: "lighthouses", MediaType: stage.MediaTypeGeoJSON, Single: true},
			events:   lighthouse(),
			expected: `{"type":"Feature","properties":{"name":"Lighthouse","tags":["red","tall"]},"geometry":{"type":"Point","coordinates":[1,2]}}`,
		},
		{
			name: "JSON-FG",
			opts: jsonfg,
			events: feature(
				role(token.PropertyEvent("id", token.StringScalar("f1")), token.ID),
				role(token.PropertyEvent("properties.built", token.StringScalar("1870")), token.Instant),
				role(token.PropertyEvent("geometry", token.RawScalar([]byte(`{"type":"Point","coordinates":[3,4]}`))), token.PrimaryGeometry),
			),
			expected: `{"type":"FeatureCollection",` +
				`"conformsTo":["http://www.opengis.net/spec/json-fg-1/0.2/conf/core","http://www.opengis.net/spec/json-fg-1/0.2/conf/types-schemas"],` +
				`"featureSchema":"http://h/schema","coordRefSys":"http://www.opengis.net/def/crs/EPSG/0/3857",` +
				`"features":[{"type":"Feature","featureType":"Lighthouse","id":"f1","properties":{"built":"1870"},` +
				`"place":{"type":"Point","coordinates":[3,4]},"time":{"instant":"1870"},"geometry":null}],` +
				`"numberMatched":1,"numberReturned":1}`,
		},
		{
			name: "JSON-FG single feature in CRS84 with an interval",
			opts: &stage.Options{CollectionID: "c", MediaType: stage.MediaTypeJSONFG, Single: true},
			events: feature(
				role(token.PropertyEvent("properties.from", token.StringScalar("2020-01-01")), token.InstantStart),
				role(token.PropertyEvent("geometry", token.RawScalar([]byte(`{"type":"Point","coordinates":[3,4]}`))), token.PrimaryGeometry),
			),
			expected: `{"type":"Feature","conformsTo":["http://www.opengis.net/spec/json-fg-1/0.2/conf/core"],` +
				`"coordRefSys":"http://www.opengis.net/def/crs/OGC/1.3/CRS84",` +
				`"properties":{"from":"2020-01-01"},"geometry":{"type":"Point","coordinates":[3,4]},` +
				`"time":{"interval":["2020-01-01",".."]},"place":null}`,
		},
		{
			name:     "flattened",
			opts:     &stage.Options{MediaType: stage.MediaTypeGeoJSON, Single: true, Flatten: true},
			events:   append(lighthouse()[:3:3], token.PropertyEvent("properties.address.city", token.StringScalar("Brest")), token.Event{Kind: token.FeatureEnd}),
			expected: `{"type":"Feature","properties":{"name":"Lighthouse","tags.1":"red","address.city":"Brest"},"geometry":null}`,
		},
		{
			name:     "selected properties",
			opts:     &stage.Options{MediaType: stage.MediaTypeGeoJSON, Single: true, Properties: []string{"name"}},
			events:   lighthouse(),
			expected: `{"type":"Feature","properties":{"name":"Lighthouse"},"geometry":{"type":"Point","coordinates":[1,2]}}`,
		},
		{
			name:     "no selected property",
			opts:     &stage.Options{MediaType: stage.MediaTypeGeoJSON, Single: true, Properties: []string{"height"}},
			events:   lighthouse(),
			expected: `{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":null}`,
		},
		{
			name: "repeated value with the array kept open",
			opts: &stage.Options{MediaType: stage.MediaTypeGeoJSON, Single: true, KeepValueArrayOpen: true},
			events: feature(
				token.PropertyEvent("properties.coords[]", token.Int64Scalar(1), 1),
				token.PropertyEvent("properties.coords[]", token.Int64Scalar(2), 1),
			),
			expected: `{"type":"Feature","properties":{"coords":[1,2]},"geometry":null}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := encode(t, tt.opts, tt.events...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			checkOutput(t, tt.expected, out)
			if !json.Valid([]byte(out)) {
				t.Errorf("invalid JSON: %s", out)
			}
		})
	}
}

func numbered(n int) []token.Event {
	var events []token.Event
	for i := 1; i <= n; i++ {
		events = append(events, feature(
			role(token.PropertyEvent("id", token.StringScalar(fmt.Sprintf("f%d", i))), token.ID),
			token.PropertyEvent("properties.rank", token.Int64Scalar(int64(i))),
		)...)
	}
	return events
}

func TestEncodePaging(t *testing.T) {
	type link struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	}
	type collection struct {
		Features []struct {
			ID    string `json:"id"`
			Links []link `json:"links"`
		} `json:"features"`
		Links          []link `json:"links"`
		NumberMatched  int    `json:"numberMatched"`
		NumberReturned int    `json:"numberReturned"`
	}
	tests := []struct {
		name          string
		offset, limit int
		ids           []string
		next          string
	}{
		{"first page", 0, 2, []string{"f1", "f2"}, "http://h/collections/c/items?limit=2&offset=2"},
		{"middle page", 2, 2, []string{"f3", "f4"}, "http://h/collections/c/items?limit=2&offset=4"},
		{"last page", 4, 2, []string{"f5"}, ""},
		{"no limit", 0, 0, []string{"f1", "f2", "f3", "f4", "f5"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &stage.Options{
				CollectionID: "c", BaseURL: "http://h", MediaType: stage.MediaTypeGeoJSON,
				Links: true, Offset: tt.offset, Limit: tt.limit,
			}
			out, err := encode(t, opts, numbered(5)...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var doc collection
			if err := json.Unmarshal([]byte(out), &doc); err != nil {
				t.Fatalf("invalid output %s: %v", out, err)
			}
			if doc.NumberMatched != 5 || doc.NumberReturned != len(tt.ids) {
				t.Errorf("unexpected counts %d/%d", doc.NumberReturned, doc.NumberMatched)
			}
			var ids []string
			for _, f := range doc.Features {
				ids = append(ids, f.ID)
				if len(f.Links) != 1 || f.Links[0].Href != "http://h/collections/c/items/"+f.ID {
					t.Errorf("unexpected feature links %v", f.Links)
				}
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.ids) {
				t.Errorf("expected %v, got %v", tt.ids, ids)
			}
			next := ""
			for _, l := range doc.Links {
				if l.Rel == "next" {
					next = l.Href
				}
			}
			if next != tt.next {
				t.Errorf("expected next link %q, got %q", tt.next, next)
			}
		})
	}
}

func TestEncodeDeterminism(t *testing.T) {
	opts := &stage.Options{CollectionID: "c", MediaType: stage.MediaTypeJSONFG, Links: true}
	first, err := encode(t, opts, numbered(20)...)
	if err != nil {
		t.Fatal(err)
	}
	second, err := encode(t, opts, numbered(20)...)
	if err != nil {
		t.Fatal(err)
	}
	checkOutput(t, first, second)
}

func TestEncodeConcurrently(t *testing.T) {
	enc := NewEncoder(nil, zaptest.NewLogger(t))
	opts := geoJSON()
	expected := make([]string, 8)
	for i := range expected {
		out, _, err := encodeWith(t, enc, opts, token.NewSliceReadStream(numbered(i+1)))
		if err != nil {
			t.Fatal(err)
		}
		expected[i] = out
	}
	got := make([]string, len(expected))
	var wg sync.WaitGroup
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var buf bytes.Buffer
			w := jsonenc.NewWriter(&format.DefaultPrinter{Writer: &buf, IndentSize: -1}, nil, true)
			// A channel stream makes the encodings interleave.
			src := &sliceSource{events: numbered(i + 1)}
			stream := token.StartStream(context.Background(), src)
			defer stream.Close()
			if _, err := enc.Encode(context.Background(), opts, stream, w); err != nil {
				t.Error(err)
			}
			got[i] = buf.String()
		}(i)
	}
	wg.Wait()
	for i := range got {
		if got[i] != expected[i] {
			t.Errorf("encoding %d differs:\n%s\n%s", i, expected[i], got[i])
		}
	}
}

type sliceSource struct {
	events []token.Event
	err    error
}

func (s *sliceSource) Produce(ctx context.Context, out chan<- token.Event) error {
	for _, ev := range s.events {
		if err := token.Send(ctx, out, ev); err != nil {
			return err
		}
	}
	return s.err
}

// limitedWriter fails once n bytes have been written.
type limitedWriter struct {
	n int
}

func (w *limitedWriter) Write(b []byte) (int, error) {
	if len(b) > w.n {
		n := w.n
		w.n = 0
		return n, syscall.EPIPE
	}
	w.n -= len(b)
	return len(b), nil
}

func TestEncodeSinkError(t *testing.T) {
	w := jsonenc.NewWriter(&format.DefaultPrinter{Writer: &limitedWriter{n: 50}, IndentSize: -1}, nil, true)
	n, err := NewEncoder(nil, nil).Encode(context.Background(), geoJSON(), token.NewSliceReadStream(numbered(10)), w)
	if !IsSinkError(err) || !errors.Is(err, syscall.EPIPE) {
		t.Fatalf("expected a sink error, got %v", err)
	}
	if n == 10 {
		t.Error("encoding must stop at the first sink error")
	}
}

type failing struct {
	at int
}

var errStage = errors.New("stage failed")

func (s *failing) OnFeatureStart(c *stage.Context, next stage.Next) error {
	if c.Features == s.at {
		return errStage
	}
	return next(c)
}

// swallow does not let objects through.
type swallow struct{}

func (swallow) OnObjectStart(*stage.Context, stage.Next) error { return nil }

// mismatch closes objects as arrays.
type mismatch struct{}

func (mismatch) OnObjectEnd(c *stage.Context, next stage.Next) error {
	c.Action = nesting.Action{Kind: nesting.CloseArray}
	return next(c)
}

func TestEncodeStageErrors(t *testing.T) {
	tests := []struct {
		name    string
		factory stage.Factory
		target  error
		written string
	}{
		{
			name:    "failing stage",
			factory: stage.Factory{Name: "failing", Priority: 5, New: func(*stage.Options) any { return &failing{at: 2} }},
			target:  errStage,
			written: `"f1"`,
		},
		{
			name:    "swallowed structure",
			factory: stage.Factory{Name: "swallow", Priority: 5, New: func(*stage.Options) any { return swallow{} }},
			target:  ErrUnbalanced,
		},
		{
			name:    "mismatched close",
			factory: stage.Factory{Name: "mismatch", Priority: 5, New: func(*stage.Options) any { return mismatch{} }},
			target:  ErrUnbalanced,
			written: `"rank":1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(tt.factory)
			if err != nil {
				t.Fatal(err)
			}
			out, _, err := encodeWith(t, NewEncoder(reg, zaptest.NewLogger(t)), geoJSON(), token.NewSliceReadStream(numbered(3)))
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if !strings.Contains(out, tt.written) {
				t.Errorf("expected the output so far to contain %s: %s", tt.written, out)
			}
			if strings.Contains(out, `"f3"`) {
				t.Errorf("nothing must be written after the failure: %s", out)
			}
		})
	}
}

func TestEncodeSourceErrors(t *testing.T) {
	prop := token.PropertyEvent("properties.a", token.TrueScalar)
	boom := errors.New("cursor failed")
	tests := []struct {
		name   string
		in     token.ReadStream
		target error
		single bool
	}{
		{"property outside a feature", token.NewSliceReadStream([]token.Event{prop}), ErrSourceContract, false},
		{"missing end", token.NewSliceReadStream([]token.Event{{Kind: token.FeatureStart}, prop}), ErrSourceContract, false},
		{"nested start", token.NewSliceReadStream([]token.Event{{Kind: token.FeatureStart}, {Kind: token.FeatureStart}}), ErrSourceContract, false},
		{"unmatched end", token.NewSliceReadStream([]token.Event{{Kind: token.FeatureEnd}}), ErrSourceContract, false},
		{"inconsistent paths", token.NewSliceReadStream(feature(prop, token.PropertyEvent("properties.a.b", token.TrueScalar))), nesting.ErrContractViolation, false},
		{"source failure", token.StartStream(context.Background(), &sliceSource{events: numbered(2), err: boom}), boom, false},
		{"second feature of a single feature document", token.NewSliceReadStream(numbered(2)), ErrSourceContract, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := geoJSON()
			opts.Single = tt.single
			_, _, err := encodeWith(t, NewEncoder(nil, zaptest.NewLogger(t)), opts, tt.in)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
		})
	}
}

func TestEncodeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := jsonenc.NewWriter(&format.DefaultPrinter{Writer: io.Discard, IndentSize: -1}, nil, true)
	_, err := NewEncoder(nil, nil).Encode(ctx, geoJSON(), token.NewSliceReadStream(numbered(3)), w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// observer records the structural hooks and adds a link to each feature.
type observer struct {
	trace []string
}

func (o *observer) record(c *stage.Context, next stage.Next) error {
	o.trace = append(o.trace, fmt.Sprintf("%d:%s", c.Depth, c.Action))
	return next(c)
}

func (o *observer) OnObjectStart(c *stage.Context, next stage.Next) error { return o.record(c, next) }
func (o *observer) OnArrayStart(c *stage.Context, next stage.Next) error  { return o.record(c, next) }
func (o *observer) OnObjectEnd(c *stage.Context, next stage.Next) error   { return o.record(c, next) }
func (o *observer) OnArrayEnd(c *stage.Context, next stage.Next) error    { return o.record(c, next) }

func (o *observer) OnFeatureStart(c *stage.Context, next stage.Next) error {
	c.AddLink(stage.Link{Href: "http://h/doc", Rel: "describedby"})
	return next(c)
}

func TestEncodeCustomStage(t *testing.T) {
	obs := &observer{}
	reg, err := NewRegistry(stage.Factory{Name: "observer", Priority: 100, New: func(*stage.Options) any { return obs }})
	if err != nil {
		t.Fatal(err)
	}
	opts := &stage.Options{MediaType: stage.MediaTypeGeoJSON, Single: true, Links: true}
	out, _, err := encodeWith(t, NewEncoder(reg, zaptest.NewLogger(t)), opts, token.NewSliceReadStream(lighthouse()))
	if err != nil {
		t.Fatal(err)
	}
	expectedTrace := "[0:OpenObject(properties) 1:OpenArray(tags) 2:CloseArray 1:CloseObject]"
	if got := fmt.Sprint(obs.trace); got != expectedTrace {
		t.Errorf("expected %s, got %s", expectedTrace, got)
	}
	if !strings.Contains(out, `"rel":"collection","type":"application/json"},{"href":"http://h/doc","rel":"describedby"}]`) {
		t.Errorf("pending link not written after the feature links: %s", out)
	}
}

func TestEncodeJPV(t *testing.T) {
	var buf bytes.Buffer
	w := jpv.NewWriter(&format.DefaultPrinter{Writer: &buf}, nil)
	opts := &stage.Options{MediaType: stage.MediaTypeGeoJSON, Single: true}
	if _, err := NewEncoder(nil, nil).Encode(context.Background(), opts, token.NewSliceReadStream(lighthouse()), w); err != nil {
		t.Fatal(err)
	}
	expected := `$["type"] = "Feature"
$["properties"]["name"] = "Lighthouse"
$["properties"]["tags"][0] = "red"
$["properties"]["tags"][1] = "tall"
$["geometry"] = {"type":"Point","coordinates":[1,2]}
`
	checkOutput(t, expected, buf.String())
}
