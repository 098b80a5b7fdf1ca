package stage

import (
	"github.com/arnodel/featurestream/nesting"
	"github.com/arnodel/featurestream/token"
	"go.uber.org/zap"
)

// A Context is the state of one encoding, shared by its stages and the core
// writer.  It is created for each encoding and owned by it.
type Context struct {
	// Options are fixed for the whole encoding.
	Options *Options

	// Out receives the tokens of the document.  Stages writing their own
	// members do so between containers: in Start, FeatureStart,
	// PropertiesEnd, FeatureEnd and End.
	Out token.WriteStream

	Logger *zap.Logger

	// The property being written.
	Path    token.Path
	Indices []int
	Value   *token.Scalar
	Role    token.Role

	// Action is the structural action being applied, in ObjectStart,
	// ArrayStart, ObjectEnd and ArrayEnd, or the field slot of the value once
	// the structure leading to it has been opened.  Depth is the number of
	// containers open in the feature before the action.
	Action nesting.Action
	Depth  int

	// FeatureID is the value of the ID property of the current feature, if
	// any was seen yet.
	FeatureID *token.Scalar

	// Features is the number of features started so far.
	Features int

	// Matched is the number of features matching the request, or -1 when
	// unknown.  It is set before End.
	Matched int

	links []Link
	attrs map[string]any
}

// NewContext returns a context writing to out.
func NewContext(opts *Options, out token.WriteStream, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{Options: opts, Out: out, Logger: logger, Matched: -1}
}

// ResetFeature clears the per feature state.
func (c *Context) ResetFeature() {
	c.Path = nil
	c.Indices = nil
	c.Value = nil
	c.Role = token.Value
	c.Action = nesting.Action{}
	c.Depth = 0
	c.FeatureID = nil
}

// Set stores a value other stages can read with Get for the rest of the
// encoding.
func (c *Context) Set(key string, value any) {
	if c.attrs == nil {
		c.attrs = map[string]any{}
	}
	c.attrs[key] = value
}

func (c *Context) Get(key string) any {
	return c.attrs[key]
}

// Flag returns the boolean stored under key, false if there is none.
func (c *Context) Flag(key string) bool {
	b, _ := c.attrs[key].(bool)
	return b
}

// AddLink appends a link to the pending links.
func (c *Context) AddLink(l Link) {
	c.links = append(c.links, l)
}

// TakeLinks returns the pending links and clears them.
func (c *Context) TakeLinks() []Link {
	links := c.links
	c.links = nil
	return links
}

// PutMember writes a key and a scalar value to Out.
func (c *Context) PutMember(key string, value *token.Scalar) {
	c.Out.Put(token.NewKey(key))
	c.Out.Put(value)
}

// PutStrings writes a key and an array of strings to Out.
func (c *Context) PutStrings(key string, values ...string) {
	c.Out.Put(token.NewKey(key))
	c.Out.Put(&token.StartArray{})
	for _, v := range values {
		c.Out.Put(token.StringScalar(v))
	}
	c.Out.Put(&token.EndArray{})
}

// PutLinks writes the "links" member.
func (c *Context) PutLinks(links []Link) {
	c.Out.Put(token.NewKey("links"))
	c.Out.Put(&token.StartArray{})
	for _, l := range links {
		l.put(c.Out)
	}
	c.Out.Put(&token.EndArray{})
}

// A Link is a web link written in the "links" member of features and
// collections.
type Link struct {
	Href  string `json:"href"`
	Rel   string `json:"rel"`
	Type  string `json:"type,omitempty"`
	Title string `json:"title,omitempty"`
}

func (l Link) put(out token.WriteStream) {
	out.Put(&token.StartObject{})
	for _, m := range [...]struct{ key, value string }{
		{"href", l.Href},
		{"rel", l.Rel},
		{"type", l.Type},
		{"title", l.Title},
	} {
		if m.value != "" {
			out.Put(token.NewKey(m.key))
			out.Put(token.StringScalar(m.value))
		}
	}
	out.Put(&token.EndObject{})
}
