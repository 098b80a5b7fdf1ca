// Package stage implements the pipeline of pluggable stages that observe and
// augment an encoding at well defined points of its lifecycle.
//
// A stage is any value implementing one or more of the handler interfaces
// below.  Each handler receives the encoding Context and the continuation to
// the rest of the chain.  Calling next runs the stages of higher priority
// and ultimately the core writer; not calling it suppresses the event for
// them.  Anything a stage writes before calling next comes before what the
// rest of the chain writes, anything it writes after comes after.
package stage

// Next is the continuation passed to a handler.
type Next func(ctx *Context) error

// Hook identifies a lifecycle point.
type Hook uint8

const (
	Start Hook = iota
	FeatureStart
	ObjectStart
	ArrayStart
	Value
	ArrayEnd
	ObjectEnd
	PropertiesEnd
	FeatureEnd
	End

	hookCount
)

var hookNames = [...]string{
	Start:         "Start",
	FeatureStart:  "FeatureStart",
	ObjectStart:   "ObjectStart",
	ArrayStart:    "ArrayStart",
	Value:         "Value",
	ArrayEnd:      "ArrayEnd",
	ObjectEnd:     "ObjectEnd",
	PropertiesEnd: "PropertiesEnd",
	FeatureEnd:    "FeatureEnd",
	End:           "End",
}

func (h Hook) String() string {
	if h < hookCount {
		return hookNames[h]
	}
	return "Hook(?)"
}

// StartHandler is called once before anything is written.
type StartHandler interface {
	OnStart(ctx *Context, next Next) error
}

// FeatureStartHandler is called at the start of each feature.
type FeatureStartHandler interface {
	OnFeatureStart(ctx *Context, next Next) error
}

// ObjectStartHandler is called for each object opened inside a feature.
// ctx.Action holds the open action; its key may be changed.
type ObjectStartHandler interface {
	OnObjectStart(ctx *Context, next Next) error
}

// ArrayStartHandler is called for each array opened inside a feature.
type ArrayStartHandler interface {
	OnArrayStart(ctx *Context, next Next) error
}

// ValueHandler is called for each property value, before the structure
// leading to it is computed.  A stage may change ctx.Path or ctx.Value, or
// drop the value by not calling next.  It must not write to ctx.Out.
type ValueHandler interface {
	OnValue(ctx *Context, next Next) error
}

// ArrayEndHandler is called for each array closed inside a feature.
type ArrayEndHandler interface {
	OnArrayEnd(ctx *Context, next Next) error
}

// ObjectEndHandler is called for each object closed inside a feature.
type ObjectEndHandler interface {
	OnObjectEnd(ctx *Context, next Next) error
}

// PropertiesEndHandler is called once all the values of a feature have been
// written and everything they opened is closed.
type PropertiesEndHandler interface {
	OnPropertiesEnd(ctx *Context, next Next) error
}

// FeatureEndHandler is called at the end of each feature, after
// PropertiesEnd.
type FeatureEndHandler interface {
	OnFeatureEnd(ctx *Context, next Next) error
}

// EndHandler is called once after the last feature.
type EndHandler interface {
	OnEnd(ctx *Context, next Next) error
}

type handlerFunc func(ctx *Context, next Next) error

// handler returns the method of s handling h, if any.
func handler(s any, h Hook) (handlerFunc, bool) {
	switch h {
	case Start:
		if x, ok := s.(StartHandler); ok {
			return x.OnStart, true
		}
	case FeatureStart:
		if x, ok := s.(FeatureStartHandler); ok {
			return x.OnFeatureStart, true
		}
	case ObjectStart:
		if x, ok := s.(ObjectStartHandler); ok {
			return x.OnObjectStart, true
		}
	case ArrayStart:
		if x, ok := s.(ArrayStartHandler); ok {
			return x.OnArrayStart, true
		}
	case Value:
		if x, ok := s.(ValueHandler); ok {
			return x.OnValue, true
		}
	case ArrayEnd:
		if x, ok := s.(ArrayEndHandler); ok {
			return x.OnArrayEnd, true
		}
	case ObjectEnd:
		if x, ok := s.(ObjectEndHandler); ok {
			return x.OnObjectEnd, true
		}
	case PropertiesEnd:
		if x, ok := s.(PropertiesEndHandler); ok {
			return x.OnPropertiesEnd, true
		}
	case FeatureEnd:
		if x, ok := s.(FeatureEndHandler); ok {
			return x.OnFeatureEnd, true
		}
	case End:
		if x, ok := s.(EndHandler); ok {
			return x.OnEnd, true
		}
	}
	return nil, false
}
