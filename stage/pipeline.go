package stage

import (
	"fmt"
	"sort"
	"strings"
)

// An Entry is a stage instance with the name and priority it was registered
// with.
type Entry struct {
	Name     string
	Priority int
	Stage    any
}

// A Pipeline holds one chain of handlers per hook, sorted by ascending
// priority with ties broken by name, and terminated by the core.  Chains are
// linked when the pipeline is built so firing a hook does not allocate.
//
// A Pipeline serves a single encoding: it is not safe for concurrent use
// because its stages are not.
type Pipeline struct {
	entries []Entry
	chains  [hookCount]Next
}

func terminal(*Context) error {
	return nil
}

// NewPipeline links the stages in entries in front of core.  core handles the
// hooks it implements as the last element of each chain; the next it receives
// does nothing.
func NewPipeline(core any, entries ...Entry) *Pipeline {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Name < sorted[j].Name
	})
	p := &Pipeline{entries: sorted}
	for h := Hook(0); h < hookCount; h++ {
		next := Next(terminal)
		if core != nil {
			next = link(core, h, next)
		}
		for i := len(sorted) - 1; i >= 0; i-- {
			next = link(sorted[i].Stage, h, next)
		}
		p.chains[h] = next
	}
	return p
}

func link(s any, h Hook, next Next) Next {
	f, ok := handler(s, h)
	if !ok {
		return next
	}
	return func(ctx *Context) error {
		return f(ctx, next)
	}
}

// Fire runs the chain for h.
func (p *Pipeline) Fire(h Hook, ctx *Context) error {
	return p.chains[h](ctx)
}

// Entries returns the stages in chain order.
func (p *Pipeline) Entries() []Entry {
	return p.entries
}

func (p *Pipeline) String() string {
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = fmt.Sprintf("%s(%d)", e.Name, e.Priority)
	}
	return strings.Join(names, " > ")
}
