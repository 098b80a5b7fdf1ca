package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/arnodel/featurestream/token"
	"github.com/goccy/go-json"
)

// A CSVDecoder reads features from a CSV table with a header, one feature per
// record.
//
// The "id" column holds the feature id and the "geometry" column a GeoJSON
// geometry.  Alternatively, X and Y name columns holding the coordinates of
// a point geometry.  All other columns are properties named by their path
// relative to "properties", with explicit 1-based indices for array
// elements, e.g.
//
//	id,name,tags[1],tags[2],contacts[1].email,contacts[2].email
//
// Empty cells are skipped.  Cells are typed the way a JSON literal would be:
// true and false are booleans, valid JSON numbers are numbers, everything
// else is a string.
type CSVDecoder struct {
	// Comma is the field delimiter, ',' if zero.
	Comma rune

	// X and Y are the columns of point coordinates, if not empty.
	X, Y string

	// Roles gives the role of properties by path, e.g. "properties.built".
	Roles map[string]token.Role

	// ID restricts the output to the first feature with that id, when not
	// empty.
	ID string

	in io.Reader
}

var _ token.StreamSource = &CSVDecoder{}

func NewCSVDecoder(in io.Reader) *CSVDecoder {
	return &CSVDecoder{in: in}
}

// A column is a header field resolved to a property path.
type column struct {
	field   int
	path    token.Path
	indices []int
	role    token.Role
	sortKey []int
}

type columns struct {
	id, geometry, x, y int
	props              []column
}

// Produce reads records until the end of the input.
func (d *CSVDecoder) Produce(ctx context.Context, out chan<- token.Event) error {
	reader := csv.NewReader(d.in)
	if d.Comma != 0 {
		reader.Comma = d.Comma
	}
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return err
	}
	cols, err := d.columns(header)
	if err != nil {
		return err
	}
	var events []token.Event
	var buf bytes.Buffer
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		events = events[:0]
		line, _ := reader.FieldPos(0)

		if v := cell(record, cols.id); v != "" {
			if d.ID != "" && d.ID != v {
				continue
			}
			events = append(events, token.Event{Kind: token.Property, Path: idPath, Value: fieldToScalar(v), Role: token.ID})
		} else if d.ID != "" {
			continue
		}

		geom := cell(record, cols.geometry)
		if x, y := cell(record, cols.x), cell(record, cols.y); x != "" && y != "" {
			geom = `{"type":"Point","coordinates":[` + x + "," + y + "]}"
		}
		if geom != "" {
			buf.Reset()
			if err := json.Compact(&buf, []byte(geom)); err != nil {
				return fmt.Errorf("line %d: invalid geometry: %w", line, err)
			}
			raw := append([]byte(nil), buf.Bytes()...)
			events = append(events, token.Event{Kind: token.Property, Path: geometryPath, Value: token.RawScalar(raw), Role: token.PrimaryGeometry})
		}

		for _, c := range cols.props {
			v := cell(record, c.field)
			if v == "" {
				continue
			}
			events = append(events, token.Event{Kind: token.Property, Path: c.path, Indices: c.indices, Value: fieldToScalar(v), Role: c.role})
		}
		if err := token.SendFeature(ctx, out, events...); err != nil {
			return err
		}
		if d.ID != "" {
			return nil
		}
	}
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

// columns resolves the header.  Property columns are sorted so that the
// values of a record come out grouped by object and array element, whatever
// the order of the header.
func (d *CSVDecoder) columns(header []string) (*columns, error) {
	cols := &columns{id: -1, geometry: -1, x: -1, y: -1}
	ranks := map[string]int{}
	for i, field := range header {
		field = strings.TrimSpace(field)
		switch {
		case field == "id":
			cols.id = i
			continue
		case field == "geometry":
			cols.geometry = i
			continue
		case field != "" && field == d.X:
			cols.x = i
			continue
		case field != "" && field == d.Y:
			cols.y = i
			continue
		}
		c, err := parseColumn(field, ranks)
		if err != nil {
			return nil, err
		}
		c.field = i
		c.role = d.Roles[c.path.String()]
		cols.props = append(cols.props, c)
	}
	sort.SliceStable(cols.props, func(i, j int) bool {
		return lessKey(cols.props[i].sortKey, cols.props[j].sortKey)
	})
	for i := 1; i < len(cols.props); i++ {
		if equalKey(cols.props[i-1].sortKey, cols.props[i].sortKey) {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidInput, header[cols.props[i].field])
		}
	}
	return cols, nil
}

// parseColumn turns a header field such as "contacts[2].phones[1]" into the
// path "properties.contacts[].phones[]" with indices [2 1].  The sort key
// alternates the rank of each name (by first appearance in the header) and
// the index of the segment.
func parseColumn(field string, ranks map[string]int) (column, error) {
	var c column
	if field == "" {
		return c, fmt.Errorf("%w: empty column name", ErrInvalidInput)
	}
	c.path = token.Path{{Name: "properties"}}
	names := "properties"
	for _, part := range strings.Split(field, ".") {
		name, rest, _ := strings.Cut(part, "[")
		if name == "" {
			return c, fmt.Errorf("%w: bad column name %q", ErrInvalidInput, field)
		}
		names += "." + name
		rank, ok := ranks[names]
		if !ok {
			rank = len(ranks)
			ranks[names] = rank
		}
		c.sortKey = append(c.sortKey, rank)
		seg := token.Segment{Name: name}
		if rest == "" {
			c.path = append(c.path, seg)
			c.sortKey = append(c.sortKey, 0)
			continue
		}
		for rest != "" {
			n, tail, ok := strings.Cut(rest, "]")
			i, err := strconv.Atoi(n)
			if !ok || err != nil || i < 1 || (tail != "" && tail[0] != '[') {
				return c, fmt.Errorf("%w: bad index in column name %q", ErrInvalidInput, field)
			}
			seg.Multiplicity = "[]"
			c.path = append(c.path, seg)
			c.path[len(c.path)-1].Multiplicity = c.path.String()
			c.indices = append(c.indices, i)
			c.sortKey = append(c.sortKey, i)
			seg = token.Segment{Anonymous: true}
			rest = strings.TrimPrefix(tail, "[")
		}
	}
	return c, nil
}

func lessKey(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func equalKey(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fieldToScalar(field string) *token.Scalar {
	switch field {
	case "true":
		return token.TrueScalar
	case "false":
		return token.FalseScalar
	}
	if c := field[0]; (c == '-' || c >= '0' && c <= '9') && json.Valid([]byte(field)) {
		return token.NumberScalar(field)
	}
	return token.StringScalar(field)
}
