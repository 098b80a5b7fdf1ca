package nesting

import "fmt"

// ActionKind enumerates the structural actions a Tracker computes.
type ActionKind uint8

const (
	OpenField         ActionKind = iota // open the slot of a scalar value
	OpenObject                          // open an object under a key
	OpenObjectInArray                   // open an object as an array element
	OpenArray                           // open an array (under a key, or as an array element)
	CloseObject
	CloseArray
)

var actionNames = [...]string{
	OpenField:         "OpenField",
	OpenObject:        "OpenObject",
	OpenObjectInArray: "OpenObjectInArray",
	OpenArray:         "OpenArray",
	CloseObject:       "CloseObject",
	CloseArray:        "CloseArray",
}

func (k ActionKind) String() string {
	if int(k) < len(actionNames) {
		return actionNames[k]
	}
	return fmt.Sprintf("ActionKind(%d)", uint8(k))
}

// IsOpen reports whether k opens something.
func (k ActionKind) IsOpen() bool {
	return k <= OpenArray
}

// An Action is one step of a transition between two paths.  Key is the name
// of the segment the action applies to; it is empty for close actions and for
// anonymous nested arrays.
type Action struct {
	Kind ActionKind
	Key  string
}

func (a Action) String() string {
	if a.Kind.IsOpen() {
		return fmt.Sprintf("%s(%s)", a.Kind, a.Key)
	}
	return a.Kind.String()
}

// A Transition is what a Tracker computes for one event: the actions to emit,
// closes before opens, plus the diagnostics that led to them.
type Transition struct {
	Closes []Action
	Opens  []Action

	// Divergence is the effective divergence index d.
	Divergence int

	// InArray is true when the transition moves to a new element of an array
	// that stays open.
	InArray bool
}

// Actions returns the closes followed by the opens.
func (t Transition) Actions() []Action {
	actions := make([]Action, 0, len(t.Closes)+len(t.Opens))
	actions = append(actions, t.Closes...)
	return append(actions, t.Opens...)
}
