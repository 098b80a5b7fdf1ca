package source

import (
	"fmt"
	"io"

	"github.com/arnodel/featurestream/token"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// A Filter is a compiled feature filter expression, e.g.
//
//	properties.height > 50 && "red" in properties.tags
//
// The expression sees the feature as nested maps: "id", "geometry" and
// "properties".  Values below an array are collected into a list, so
// properties.contacts.email is the list of the emails of all contacts.
// Missing properties are nil.
type Filter struct {
	source  string
	program *vm.Program
}

// CompileFilter compiles a filter expression, which must be boolean.
func CompileFilter(source string) (*Filter, error) {
	program, err := expr.Compile(source, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid filter: %w", err)
	}
	return &Filter{source: source, program: program}, nil
}

func (f *Filter) String() string {
	return f.source
}

// Match evaluates the filter on the property events of one feature.
func (f *Filter) Match(events []token.Event) (bool, error) {
	res, err := expr.Run(f.program, featureEnv(events))
	if err != nil {
		return false, fmt.Errorf("filter %q: %w", f.source, err)
	}
	ok, _ := res.(bool)
	return ok, nil
}

func featureEnv(events []token.Event) map[string]any {
	props := map[string]any{}
	env := map[string]any{"properties": props}
	for _, ev := range events {
		if ev.Kind != token.Property || len(ev.Path) == 0 {
			continue
		}
		m := env
		var name string
		named, repeated := false, false
		for _, seg := range ev.Path {
			repeated = repeated || seg.Repeated()
			if seg.Anonymous {
				continue
			}
			if named {
				child, ok := m[name].(map[string]any)
				if !ok {
					child = map[string]any{}
					m[name] = child
				}
				m = child
			}
			name, named = seg.Name, true
		}
		v := ev.Value.ToGo()
		if repeated {
			list, _ := m[name].([]any)
			m[name] = append(list, v)
		} else {
			m[name] = v
		}
	}
	return env
}

// A FilterReadStream passes through the features of a stream which match a
// filter.  It holds the events of one feature at a time.
type FilterReadStream struct {
	in      token.ReadStream
	filter  *Filter
	pending []token.Event
	next    int
}

var _ token.ReadStream = &FilterReadStream{}

func NewFilterReadStream(in token.ReadStream, filter *Filter) *FilterReadStream {
	return &FilterReadStream{in: in, filter: filter}
}

func (r *FilterReadStream) Next() (token.Event, error) {
	for r.next >= len(r.pending) {
		if err := r.fill(); err != nil {
			return token.Event{}, err
		}
	}
	ev := r.pending[r.next]
	r.next++
	return ev, nil
}

// fill reads the next feature into pending, leaving it empty if the feature
// does not match.  Events outside features are passed through.
func (r *FilterReadStream) fill() error {
	r.pending = r.pending[:0]
	r.next = 0
	ev, err := r.in.Next()
	if err != nil {
		return err
	}
	r.pending = append(r.pending, ev)
	if ev.Kind != token.FeatureStart {
		return nil
	}
	for ev.Kind != token.FeatureEnd {
		ev, err = r.in.Next()
		if err == io.EOF {
			// Let the encoder report the truncated feature.
			return nil
		}
		if err != nil {
			return err
		}
		r.pending = append(r.pending, ev)
	}
	ok, err := r.filter.Match(r.pending)
	if err != nil {
		return err
	}
	if !ok {
		r.pending = r.pending[:0]
	}
	return nil
}
