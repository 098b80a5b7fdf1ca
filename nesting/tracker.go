package nesting

import (
	"errors"
	"fmt"

	"github.com/arnodel/featurestream/token"
)

// ErrContractViolation is returned when the events of a feature source do not
// describe a consistent feature: levels going backwards, a value path that is
// later used as an object, malformed anonymous segments...
var ErrContractViolation = errors.New("source contract violation")

func violation(path token.Path, format string, args ...any) error {
	return fmt.Errorf("%w at %s: %s", ErrContractViolation, path, fmt.Sprintf(format, args...))
}

// Options alter how a transition is computed.
type Options struct {
	// KeepValueArrayOpen allows an event to repeat the path and levels of
	// the previous one when the path ends in a repeated segment: the value is
	// appended to the open value array.  Without it such an event is a
	// contract violation.
	KeepValueArrayOpen bool
}

// Diff computes the transition from the value at prev to the value at next.
// prevLevels and nextLevels hold the instance index of each segment of the
// corresponding path (0 for segments that are not repeated), see Levels.
//
// The algorithm:
//
//  1. p is the first index where the segment names differ, or the length of
//     the shorter path.
//  2. m is the first index before p of a repeated segment whose level
//     changed, if any.
//  3. d = min(p, m) is where the paths effectively diverge.
//  4. If m == d and the new level is > 1 we are moving to a new element of an
//     array that stays open (InArray).
//  5. prev is closed from its end down to d: an object for every segment
//     holding an object, an array for every repeated segment, except the
//     array at d when InArray.
//  6. next is opened from d to its end: an array for every repeated segment
//     (not at d when InArray), then an object for every non final segment
//     holding an object, or a field slot for the final segment.
//
// Diff never fails unless prev and next are the same value path, which is
// accepted only for repeated values with opts.KeepValueArrayOpen.
func Diff(prev token.Path, prevLevels []int, next token.Path, nextLevels []int, opts Options) (Transition, error) {
	p := 0
	for p < len(prev) && p < len(next) && prev[p].Name == next[p].Name && prev[p].Anonymous == next[p].Anonymous {
		p++
	}
	m := -1
	for i := 0; i < p; i++ {
		if next[i].Repeated() && levelAt(prevLevels, i) != levelAt(nextLevels, i) {
			m = i
			break
		}
	}
	d := p
	if m >= 0 && m < d {
		d = m
	}
	inArray := m >= 0 && m == d && levelAt(nextLevels, d) > 1

	if d == len(prev) && d == len(next) && d > 0 {
		// Same path, same levels: another value for the trailing array.
		last := d - 1
		if !next[last].Repeated() || !opts.KeepValueArrayOpen {
			return Transition{}, violation(next, "repeated value without a new instance index")
		}
		d = last
		inArray = true
	}

	var t Transition
	t.Divergence = d
	t.InArray = inArray
	for i := len(prev) - 1; i >= d; i-- {
		if holdsObject(prev, i) {
			t.Closes = append(t.Closes, Action{Kind: CloseObject})
		}
		if prev[i].Repeated() && !(inArray && i == d) {
			t.Closes = append(t.Closes, Action{Kind: CloseArray})
		}
	}
	for i := d; i < len(next); i++ {
		seg := next[i]
		if seg.Repeated() && !(inArray && i == d) {
			t.Opens = append(t.Opens, Action{OpenArray, seg.Name})
		}
		switch {
		case i == len(next)-1:
			t.Opens = append(t.Opens, Action{OpenField, seg.Name})
		case !holdsObject(next, i):
		case seg.Repeated():
			t.Opens = append(t.Opens, Action{OpenObjectInArray, seg.Name})
		default:
			t.Opens = append(t.Opens, Action{OpenObject, seg.Name})
		}
	}
	return t, nil
}

// holdsObject reports whether the segment at i contains an object (or array
// elements that are objects), i.e. it is not final and not followed by an
// anonymous nested array.
func holdsObject(path token.Path, i int) bool {
	return i < len(path)-1 && !path[i+1].Anonymous
}

func levelAt(levels []int, i int) int {
	if i < len(levels) {
		return levels[i]
	}
	return 0
}

// Levels assigns to each segment of path its level from the multiplicity
// state: the instance index for repeated segments, 0 for the others.  A key
// missing from m has level 1.
func Levels(path token.Path, m token.Multiplicities) []int {
	levels := make([]int, len(path))
	for i, seg := range path {
		if seg.Repeated() {
			if level, ok := m[seg.Multiplicity]; ok {
				levels[i] = level
			} else {
				levels[i] = 1
			}
		}
	}
	return levels
}

// A Tracker holds the path and multiplicity state of the current feature and
// computes the transition to each new value, validating the source contract
// along the way.  A Tracker is not safe for concurrent use.
type Tracker struct {
	Options Options

	path   token.Path
	levels []int
	state  token.Multiplicities
	scope  map[string][]int // levels of the enclosing repeated segments when state was set
}

func NewTracker(opts Options) *Tracker {
	t := &Tracker{Options: opts}
	t.Reset()
	return t
}

// Path returns the path of the last value tracked.
func (t *Tracker) Path() token.Path {
	return t.path
}

// State returns the multiplicity state of the current feature.
func (t *Tracker) State() token.Multiplicities {
	return t.state
}

// Track computes the transition from the previous value to a value at next,
// where indices holds the instance index of each repeated segment of next.
func (t *Tracker) Track(next token.Path, indices []int) (Transition, error) {
	if len(next) == 0 {
		return Transition{}, violation(next, "empty value path")
	}
	levels, err := t.levelsFor(next, indices)
	if err != nil {
		return Transition{}, err
	}
	tr, err := Diff(t.path, t.levels, next, levels, t.Options)
	if err != nil {
		return Transition{}, err
	}
	if len(t.path) > 0 && tr.Divergence == len(t.path) && len(next) > len(t.path) {
		return Transition{}, violation(next, "nested under the value %s", t.path)
	}
	if tr.Divergence == len(next) && len(next) < len(t.path) {
		return Transition{}, violation(next, "value at a path already holding %s", t.path)
	}
	t.path = next.Clone()
	t.levels = levels
	var outer []int
	for i, seg := range next {
		if seg.Repeated() {
			t.state[seg.Multiplicity] = levels[i]
			t.scope[seg.Multiplicity] = append([]int(nil), outer...)
			outer = append(outer, levels[i])
		}
	}
	return tr, nil
}

// Close returns the transition back to the root and resets the tracker for
// the next feature.
func (t *Tracker) Close() Transition {
	tr, _ := Diff(t.path, t.levels, nil, nil, t.Options)
	t.Reset()
	return tr
}

// Reset forgets the current feature without computing a transition.
func (t *Tracker) Reset() {
	t.path = nil
	t.levels = nil
	t.state = token.Multiplicities{}
	t.scope = map[string][]int{}
}

func (t *Tracker) levelsFor(path token.Path, indices []int) ([]int, error) {
	if n := path.RepeatedCount(); n != len(indices) {
		return nil, violation(path, "%d indices for %d repeated segments", len(indices), n)
	}
	levels := make([]int, len(path))
	seen := map[string]int{}
	var outer []int
	j := 0
	for i, seg := range path {
		if seg.Anonymous {
			if i == 0 || !seg.Repeated() || !path[i-1].Repeated() {
				return nil, violation(path, "anonymous segment outside of an array")
			}
		}
		if !seg.Repeated() {
			continue
		}
		level := indices[j]
		j++
		if level < 1 {
			return nil, violation(path, "index %d of %s is not 1-based", level, seg.Multiplicity)
		}
		if first, ok := seen[seg.Multiplicity]; ok {
			if first != level {
				return nil, violation(path, "conflicting indices %d and %d for %s", first, level, seg.Multiplicity)
			}
		} else {
			seen[seg.Multiplicity] = level
		}
		// Inner arrays restart for each element of the enclosing arrays, so
		// levels only need to grow within the same enclosing elements.
		current, known := t.state[seg.Multiplicity]
		if known && level < current && sameLevels(t.scope[seg.Multiplicity], outer) {
			return nil, violation(path, "index of %s went back from %d to %d", seg.Multiplicity, current, level)
		}
		outer = append(outer, level)
		levels[i] = level
	}
	return levels, nil
}

func sameLevels(a, b []int) bool {
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
