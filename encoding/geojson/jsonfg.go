package geojson

import (
	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
)

// JSON-FG conformance classes.
const (
	ConformanceCore         = "http://www.opengis.net/spec/json-fg-1/0.2/conf/core"
	ConformanceTypesSchemas = "http://www.opengis.net/spec/json-fg-1/0.2/conf/types-schemas"
)

// documentMember writes a member at the top level of the document: in the
// feature collection, or in the feature for single feature documents.
type documentMember func(c *stage.Context)

func (put documentMember) OnStart(c *stage.Context, next stage.Next) error {
	if !c.Options.Single {
		put(c)
	}
	return next(c)
}

func (put documentMember) OnFeatureStart(c *stage.Context, next stage.Next) error {
	if c.Options.Single {
		put(c)
	}
	return next(c)
}

func newConformsTo(opts *stage.Options) any {
	if !opts.JSONFG() {
		return nil
	}
	classes := []string{ConformanceCore}
	if opts.FeatureType != "" || opts.FeatureSchema != "" {
		classes = append(classes, ConformanceTypesSchemas)
	}
	return documentMember(func(c *stage.Context) {
		c.PutStrings("conformsTo", classes...)
	})
}

func newFeatureSchema(opts *stage.Options) any {
	if !opts.JSONFG() || opts.FeatureSchema == "" {
		return nil
	}
	schema := token.StringScalar(opts.FeatureSchema)
	return documentMember(func(c *stage.Context) {
		c.PutMember("featureSchema", schema)
	})
}

func newCoordRefSys(opts *stage.Options) any {
	if !opts.JSONFG() {
		return nil
	}
	crs := opts.CRS
	if crs == "" {
		crs = stage.CRS84
	}
	value := token.StringScalar(crs)
	return documentMember(func(c *stage.Context) {
		c.PutMember("coordRefSys", value)
	})
}

// featureType writes the type of each feature.
type featureType struct {
	value *token.Scalar
}

func newFeatureType(opts *stage.Options) any {
	if !opts.JSONFG() || opts.FeatureType == "" {
		return nil
	}
	return &featureType{value: token.StringScalar(opts.FeatureType)}
}

func (s *featureType) OnFeatureStart(c *stage.Context, next stage.Next) error {
	c.PutMember("featureType", s.value)
	return next(c)
}

// timeMember collects the temporal properties of a feature and writes its
// "time" member: an instant, an interval with ".." for an open end, or null.
type timeMember struct {
	instant, start, end *token.Scalar
}

func newTime(opts *stage.Options) any {
	if !opts.JSONFG() {
		return nil
	}
	return &timeMember{}
}

var openEnd = token.StringScalar("..")

func (s *timeMember) OnFeatureStart(c *stage.Context, next stage.Next) error {
	s.instant, s.start, s.end = nil, nil, nil
	return next(c)
}

func (s *timeMember) OnValue(c *stage.Context, next stage.Next) error {
	switch c.Role {
	case token.Instant:
		s.instant = c.Value
	case token.InstantStart:
		s.start = c.Value
	case token.InstantEnd:
		s.end = c.Value
	}
	return next(c)
}

func (s *timeMember) OnPropertiesEnd(c *stage.Context, next stage.Next) error {
	out := c.Out
	out.Put(token.NewKey("time"))
	switch {
	case s.instant != nil:
		out.Put(&token.StartObject{})
		c.PutMember("instant", s.instant)
		out.Put(&token.EndObject{})
	case s.start != nil || s.end != nil:
		out.Put(&token.StartObject{})
		out.Put(token.NewKey("interval"))
		out.Put(&token.StartArray{})
		for _, v := range [...]*token.Scalar{s.start, s.end} {
			if v == nil || v.Type() == token.Null {
				v = openEnd
			}
			out.Put(v)
		}
		out.Put(&token.EndArray{})
		out.Put(&token.EndObject{})
	default:
		out.Put(token.NullScalar)
	}
	return next(c)
}
