package stage

import (
	"errors"
	"fmt"
	"sort"
)

// A Factory creates a fresh stage for one encoding.  New returns nil when
// the stage does not take part given the options.
type Factory struct {
	Name     string
	Priority int
	New      func(opts *Options) any
}

// ErrDuplicateStage is returned when registering a name twice.
var ErrDuplicateStage = errors.New("duplicate stage")

// A Registry holds the stage factories of a service.  It is filled at startup
// and then only read, so it can be shared between concurrent encodings.
type Registry struct {
	factories []Factory
}

// NewRegistry returns a registry holding factories, which must have distinct
// names.
func NewRegistry(factories ...Factory) (*Registry, error) {
	r := &Registry{}
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(f Factory) error {
	if f.New == nil {
		return fmt.Errorf("stage %q has no constructor", f.Name)
	}
	for _, g := range r.factories {
		if g.Name == f.Name {
			return fmt.Errorf("%w: %s", ErrDuplicateStage, f.Name)
		}
	}
	r.factories = append(r.factories, f)
	return nil
}

// Names returns the registered stage names in priority order.
func (r *Registry) Names() []string {
	fs := r.sorted()
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// Instantiate creates the stages taking part in an encoding with opts.
func (r *Registry) Instantiate(opts *Options) []Entry {
	var entries []Entry
	for _, f := range r.sorted() {
		if s := f.New(opts); s != nil {
			entries = append(entries, Entry{Name: f.Name, Priority: f.Priority, Stage: s})
		}
	}
	return entries
}

func (r *Registry) sorted() []Factory {
	fs := make([]Factory, len(r.factories))
	copy(fs, r.factories)
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Priority != fs[j].Priority {
			return fs[i].Priority < fs[j].Priority
		}
		return fs[i].Name < fs[j].Name
	})
	return fs
}
