package token

import (
	"strings"
)

// A Segment is one step of a Path.  Multiplicity is the multiplicity key of
// the segment, empty if the segment is not repeated.  Two segments share a
// multiplicity key iff they are instances of the same repeated schema
// element.
//
// An Anonymous segment has no name: it is an array nested directly in
// another array (e.g. the rings of a polygon).  An empty Name alone is a
// valid property name.
type Segment struct {
	Name         string
	Multiplicity string
	Anonymous    bool
}

// Repeated reports whether the segment belongs to a repeated structure.
func (s Segment) Repeated() bool {
	return s.Multiplicity != ""
}

// A Path locates a value within a feature.
type Path []Segment

// ParsePath parses the string form of a path, where segments are separated by
// '.' and a repeated segment is suffixed with "[]".  Anonymous nested arrays
// are written as extra "[]" suffixes, e.g.
//
//	properties.name
//	properties.tags[]
//	properties.contacts[].email
//	properties.grid[][]
//
// A backslash escapes the next character, so names may contain '.', '[' or
// ']': properties.a\.b is the property "a.b" of properties.
//
// The multiplicity key of a repeated segment is the string form of the path
// up to and including that segment.
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	var path Path
	var name strings.Builder
	i := 0
	for {
		name.Reset()
		for i < len(s) && s[i] != '.' && !strings.HasPrefix(s[i:], "[]") {
			if s[i] == '\\' && i+1 < len(s) {
				i++
			}
			name.WriteByte(s[i])
			i++
		}
		seg := Segment{Name: name.String()}
		if !strings.HasPrefix(s[i:], "[]") {
			path = append(path, seg)
		}
		for strings.HasPrefix(s[i:], "[]") {
			i += 2
			seg.Multiplicity = "[]"
			path = append(path, seg)
			path[len(path)-1].Multiplicity = path.String()
			seg = Segment{Anonymous: true}
		}
		if i >= len(s) {
			return path
		}
		if s[i] == '.' {
			i++
		}
	}
}

// String returns the string form of the path, as accepted by ParsePath.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if !seg.Anonymous {
			if i > 0 {
				b.WriteByte('.')
			}
			writeName(&b, seg.Name)
		}
		if seg.Repeated() {
			b.WriteString("[]")
		}
	}
	return b.String()
}

// Key returns the multiplicity key of a repeated segment appended to p.
func (p Path) Key() string {
	return p.String() + "[]"
}

func writeName(b *strings.Builder, name string) {
	for i := 0; i < len(name); i++ {
		switch c := name[i]; c {
		case '.', '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
}

// Names returns the segment names, dropping multiplicity information.
func (p Path) Names() []string {
	names := make([]string, len(p))
	for i, seg := range p {
		names[i] = seg.Name
	}
	return names
}

// Last returns the last segment of p, which must not be empty.
func (p Path) Last() Segment {
	return p[len(p)-1]
}

// Clone returns a copy of p that does not share storage with it.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	c := make(Path, len(p))
	copy(c, p)
	return c
}

// Equal compares paths segment by segment, including multiplicity keys.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the names of p start with the given names.
func (p Path) HasPrefix(names ...string) bool {
	if len(names) > len(p) {
		return false
	}
	for i, name := range names {
		if p[i].Name != name {
			return false
		}
	}
	return true
}

// RepeatedCount returns the number of repeated segments in p, i.e. the number
// of indices an event at p carries.
func (p Path) RepeatedCount() int {
	n := 0
	for _, seg := range p {
		if seg.Repeated() {
			n++
		}
	}
	return n
}

// Multiplicities is the multiplicity state of a feature: the current 1-based
// instance index of each multiplicity key.
type Multiplicities map[string]int

// Clone returns a copy of m.
func (m Multiplicities) Clone() Multiplicities {
	c := make(Multiplicities, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
