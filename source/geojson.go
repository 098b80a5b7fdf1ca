// Package source provides feature sources reading files: GeoJSON documents
// and CSV tables.  They turn each feature into the flat event stream the
// encoder consumes.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/arnodel/featurestream/token"
	"github.com/goccy/go-json"
)

// ErrInvalidInput is returned when the input is not a GeoJSON feature or
// feature collection, or when a CSV table has a malformed header.
var ErrInvalidInput = errors.New("invalid input")

// errFound stops reading once the feature selected by id was produced.
var errFound = errors.New("feature found")

// A GeoJSONDecoder reads GeoJSON features.  The input is a sequence of
// Feature or FeatureCollection objects.  Features of a collection are decoded
// one at a time, so collections of any size can be read.
//
// For each feature it produces the id (if any), the geometry as a single raw
// value (if not null) and then the properties, one event per scalar.  Empty
// arrays and objects have no scalar and are not produced.
type GeoJSONDecoder struct {
	// Roles gives the role of properties by path, e.g. "properties.built"
	// for a time instant.
	Roles map[string]token.Role

	// ID restricts the output to the first feature with that id, when not
	// empty.
	ID string

	dec *json.Decoder
}

var _ token.StreamSource = &GeoJSONDecoder{}

func NewGeoJSONDecoder(in io.Reader) *GeoJSONDecoder {
	dec := json.NewDecoder(in)
	dec.UseNumber()
	return &GeoJSONDecoder{dec: dec}
}

type rawFeature struct {
	ID         json.RawMessage `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

// Produce reads documents until the end of the input.
func (d *GeoJSONDecoder) Produce(ctx context.Context, out chan<- token.Event) error {
	for {
		tok, err := d.dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if tok != json.Delim('{') {
			return fmt.Errorf("%w: expected an object, got %v", ErrInvalidInput, tok)
		}
		if err := d.document(ctx, out); err != nil {
			if err == errFound {
				return nil
			}
			return err
		}
	}
}

// document reads the members of a Feature or a FeatureCollection, the opening
// brace being already read.
func (d *GeoJSONDecoder) document(ctx context.Context, out chan<- token.Event) error {
	var f rawFeature
	var tp string
	for d.dec.More() {
		tok, err := d.dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var target any
		switch key {
		case "type":
			target = &tp
		case "id":
			target = &f.ID
		case "geometry":
			target = &f.Geometry
		case "properties":
			target = &f.Properties
		case "features":
			if err := d.features(ctx, out); err != nil {
				return err
			}
			continue
		default:
			target = &json.RawMessage{}
		}
		if err := d.dec.Decode(target); err != nil {
			return fmt.Errorf("member %q: %w", key, err)
		}
	}
	if _, err := d.dec.Token(); err != nil {
		return err
	}
	switch tp {
	case "Feature":
		return d.feature(ctx, out, &f)
	case "FeatureCollection":
		return nil
	default:
		return fmt.Errorf("%w: unexpected type %q", ErrInvalidInput, tp)
	}
}

func (d *GeoJSONDecoder) features(ctx context.Context, out chan<- token.Event) error {
	tok, err := d.dec.Token()
	if err != nil {
		return err
	}
	if tok != json.Delim('[') {
		return fmt.Errorf("%w: features is not an array", ErrInvalidInput)
	}
	for d.dec.More() {
		var f rawFeature
		if err := d.dec.Decode(&f); err != nil {
			return fmt.Errorf("decoding feature: %w", err)
		}
		if err := d.feature(ctx, out, &f); err != nil {
			return err
		}
	}
	_, err = d.dec.Token()
	return err
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func (d *GeoJSONDecoder) feature(ctx context.Context, out chan<- token.Event, f *rawFeature) error {
	var id *token.Scalar
	if !isNull(f.ID) {
		var v any
		if err := json.Unmarshal(f.ID, &v); err != nil {
			return fmt.Errorf("decoding id: %w", err)
		}
		switch x := v.(type) {
		case string:
			id = token.StringScalar(x)
		case float64:
			id = token.NumberScalar(string(bytes.TrimSpace(f.ID)))
		default:
			return fmt.Errorf("%w: id must be a string or a number", ErrInvalidInput)
		}
		if d.ID != "" && d.ID != idString(id) {
			return nil
		}
	} else if d.ID != "" {
		return nil
	}

	if err := token.Send(ctx, out, token.Event{Kind: token.FeatureStart}); err != nil {
		return err
	}
	if id != nil {
		ev := token.Event{Kind: token.Property, Path: idPath, Value: id, Role: token.ID}
		if err := token.Send(ctx, out, ev); err != nil {
			return err
		}
	}
	if !isNull(f.Geometry) {
		var buf bytes.Buffer
		if err := json.Compact(&buf, f.Geometry); err != nil {
			return fmt.Errorf("geometry: %w", err)
		}
		ev := token.Event{Kind: token.Property, Path: geometryPath, Value: token.RawScalar(buf.Bytes()), Role: token.PrimaryGeometry}
		if err := token.Send(ctx, out, ev); err != nil {
			return err
		}
	}
	if !isNull(f.Properties) {
		w := &walker{ctx: ctx, out: out, roles: d.Roles, dec: json.NewDecoder(bytes.NewReader(f.Properties))}
		w.dec.UseNumber()
		tok, err := w.dec.Token()
		if err != nil {
			return fmt.Errorf("properties: %w", err)
		}
		if tok != json.Delim('{') {
			return fmt.Errorf("%w: properties is not an object", ErrInvalidInput)
		}
		if err := w.value(tok, propertiesPath, nil); err != nil {
			return err
		}
	}
	if err := token.Send(ctx, out, token.Event{Kind: token.FeatureEnd}); err != nil {
		return err
	}
	if d.ID != "" {
		return errFound
	}
	return nil
}

var (
	idPath         = token.Path{{Name: "id"}}
	geometryPath   = token.Path{{Name: "geometry"}}
	propertiesPath = token.Path{{Name: "properties"}}
)

func idString(id *token.Scalar) string {
	if id.Type() == token.String {
		return id.ToString()
	}
	return string(id.Bytes)
}

// A walker flattens a JSON value into property events.
type walker struct {
	ctx   context.Context
	out   chan<- token.Event
	roles map[string]token.Role
	dec   *json.Decoder
}

// value produces the events of the value starting with tok at path.  Array
// elements are at paths ending with a repeated segment, and indices holds the
// index of each repeated segment.
func (w *walker) value(tok json.Token, path token.Path, indices []int) error {
	switch x := tok.(type) {
	case json.Delim:
		switch x {
		case '{':
			for w.dec.More() {
				kt, err := w.dec.Token()
				if err != nil {
					return err
				}
				key, _ := kt.(string)
				vt, err := w.dec.Token()
				if err != nil {
					return err
				}
				if err := w.value(vt, append(path.Clone(), token.Segment{Name: key}), indices); err != nil {
					return err
				}
			}
		case '[':
			arrPath := path.Clone()
			key := path.Key()
			if last := &arrPath[len(arrPath)-1]; last.Repeated() {
				arrPath = append(arrPath, token.Segment{Multiplicity: key, Anonymous: true})
			} else {
				last.Multiplicity = key
			}
			for i := 1; w.dec.More(); i++ {
				et, err := w.dec.Token()
				if err != nil {
					return err
				}
				elemIndices := append(indices[:len(indices):len(indices)], i)
				if err := w.value(et, arrPath, elemIndices); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("%w: unexpected %v", ErrInvalidInput, x)
		}
		_, err := w.dec.Token()
		return err
	default:
		v, err := token.ToScalar(x)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		ev := token.Event{Kind: token.Property, Path: path, Indices: indices, Value: v, Role: w.roles[path.String()]}
		return token.Send(w.ctx, w.out, ev)
	}
}
