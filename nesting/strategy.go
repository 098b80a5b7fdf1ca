package nesting

import (
	"github.com/arnodel/featurestream/token"
)

// A Strategy emits the structural primitives of a concrete syntax.  Like
// format.Printer, a Strategy does not return errors: implementations writing
// output panic with a *format.PrinterError.  Callers must balance opens and
// closes; a close without a matching open is a programming error and panics
// with a plain message.
type Strategy interface {
	OpenField(key string)
	OpenObject(key string)
	OpenObjectInArray(key string)
	OpenArray(key string)
	CloseObject()
	CloseArray()
}

// Apply invokes the primitive of s corresponding to a.
func Apply(s Strategy, a Action) {
	switch a.Kind {
	case OpenField:
		s.OpenField(a.Key)
	case OpenObject:
		s.OpenObject(a.Key)
	case OpenObjectInArray:
		s.OpenObjectInArray(a.Key)
	case OpenArray:
		s.OpenArray(a.Key)
	case CloseObject:
		s.CloseObject()
	case CloseArray:
		s.CloseArray()
	default:
		panic("invalid action kind")
	}
}

// ApplyAll applies the actions in order.
func ApplyAll(s Strategy, actions []Action) {
	for _, a := range actions {
		Apply(s, a)
	}
}

// TokenStrategy writes the primitives as output tokens.  It starts inside an
// object (the feature) and keeps track of the containers it opened in order
// to emit keys only where an object expects them.
type TokenStrategy struct {
	Out   token.WriteStream
	stack []bool // true for arrays
}

var _ Strategy = &TokenStrategy{}

func NewTokenStrategy(out token.WriteStream) *TokenStrategy {
	return &TokenStrategy{Out: out}
}

// Depth returns the number of containers opened and not yet closed.
func (s *TokenStrategy) Depth() int {
	return len(s.stack)
}

func (s *TokenStrategy) inArray() bool {
	n := len(s.stack)
	return n > 0 && s.stack[n-1]
}

func (s *TokenStrategy) key(key string) {
	if !s.inArray() {
		s.Out.Put(token.NewKey(key))
	}
}

func (s *TokenStrategy) OpenField(key string) {
	s.key(key)
}

func (s *TokenStrategy) OpenObject(key string) {
	s.key(key)
	s.Out.Put(&token.StartObject{})
	s.stack = append(s.stack, false)
}

func (s *TokenStrategy) OpenObjectInArray(key string) {
	s.Out.Put(&token.StartObject{})
	s.stack = append(s.stack, false)
}

func (s *TokenStrategy) OpenArray(key string) {
	s.key(key)
	s.Out.Put(&token.StartArray{})
	s.stack = append(s.stack, true)
}

func (s *TokenStrategy) CloseObject() {
	s.pop(false)
	s.Out.Put(&token.EndObject{})
}

func (s *TokenStrategy) CloseArray() {
	s.pop(true)
	s.Out.Put(&token.EndArray{})
}

func (s *TokenStrategy) pop(array bool) {
	n := len(s.stack)
	if n == 0 || s.stack[n-1] != array {
		panic("nesting: unbalanced close")
	}
	s.stack = s.stack[:n-1]
}

// Recorder records the actions applied to it and forwards them to Next if it
// is not nil.
type Recorder struct {
	Next    Strategy
	Actions []Action
}

var _ Strategy = &Recorder{}

func (r *Recorder) record(a Action) {
	r.Actions = append(r.Actions, a)
	if r.Next != nil {
		Apply(r.Next, a)
	}
}

func (r *Recorder) OpenField(key string)         { r.record(Action{OpenField, key}) }
func (r *Recorder) OpenObject(key string)        { r.record(Action{OpenObject, key}) }
func (r *Recorder) OpenObjectInArray(key string) { r.record(Action{OpenObjectInArray, key}) }
func (r *Recorder) OpenArray(key string)         { r.record(Action{OpenArray, key}) }
func (r *Recorder) CloseObject()                 { r.record(Action{Kind: CloseObject}) }
func (r *Recorder) CloseArray()                  { r.record(Action{Kind: CloseArray}) }
