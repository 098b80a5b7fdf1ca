package token

import (
	"fmt"
	"strings"
)

// Kind distinguishes feature boundaries from property events.
type Kind uint8

const (
	FeatureStart Kind = iota // start of a feature, Path is empty
	Property                 // a value at Path
	FeatureEnd               // end of a feature, Path is empty
)

func (k Kind) String() string {
	switch k {
	case FeatureStart:
		return "FeatureStart"
	case Property:
		return "Property"
	case FeatureEnd:
		return "FeatureEnd"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Role is the type tag of a property.  Stages use it to decide whether they
// take part in writing a value.
type Role uint8

const (
	Value             Role = iota // a plain property value
	ID                            // the feature identifier
	PrimaryGeometry               // the geometry of the feature
	SecondaryGeometry             // an additional geometry, written as a property
	InstantStart                  // start of the feature's temporal extent
	InstantEnd                    // end of the feature's temporal extent
	Instant                       // the feature's temporal instant
)

var roleNames = [...]string{
	Value:             "value",
	ID:                "id",
	PrimaryGeometry:   "primary-geometry",
	SecondaryGeometry: "secondary-geometry",
	InstantStart:      "instant-start",
	InstantEnd:        "instant-end",
	Instant:           "instant",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// ParseRole is the inverse of Role.String.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return Role(r), nil
		}
	}
	return Value, fmt.Errorf("unknown role %q", s)
}

// Temporal reports whether r is one of the temporal roles.
func (r Role) Temporal() bool {
	return r == InstantStart || r == InstantEnd || r == Instant
}

// An Event is an item of the flat stream a feature source produces.  For
// Property events, Indices holds one 1-based instance index per repeated
// segment of Path, in path order.
type Event struct {
	Kind    Kind
	Path    Path
	Indices []int
	Value   *Scalar
	Role    Role
}

func (e Event) String() string {
	if e.Kind != Property {
		return e.Kind.String()
	}
	var b strings.Builder
	b.WriteString(e.Path.String())
	if len(e.Indices) > 0 {
		fmt.Fprintf(&b, "%v", e.Indices)
	}
	b.WriteString(" = ")
	if e.Value != nil {
		b.Write(e.Value.Bytes)
	}
	if e.Role != Value {
		fmt.Fprintf(&b, " (%s)", e.Role)
	}
	return b.String()
}

// PropertyEvent is a convenience constructor for Property events.
func PropertyEvent(path string, value *Scalar, indices ...int) Event {
	return Event{Kind: Property, Path: ParsePath(path), Indices: indices, Value: value}
}
