package geojson

import (
	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
)

// Priorities of the built-in stages.  Custom stages are positioned relative
// to these.
const (
	PrioritySkeleton      = 0
	PriorityConformsTo    = 10
	PriorityFeatureType   = 15
	PriorityFeatureSchema = 20
	PriorityCoordRefSys   = 25
	PrioritySelect        = 30
	PriorityGeometry      = 40
	PriorityTime          = 50
	PriorityLinks         = 60
	PriorityMetadata      = 70
)

// Factories returns the factories of the built-in stages.
func Factories() []stage.Factory {
	return []stage.Factory{
		{Name: "skeleton", Priority: PrioritySkeleton, New: newSkeleton},
		{Name: "conformsTo", Priority: PriorityConformsTo, New: newConformsTo},
		{Name: "featureType", Priority: PriorityFeatureType, New: newFeatureType},
		{Name: "featureSchema", Priority: PriorityFeatureSchema, New: newFeatureSchema},
		{Name: "coordRefSys", Priority: PriorityCoordRefSys, New: newCoordRefSys},
		{Name: "select", Priority: PrioritySelect, New: newSelectProperties},
		{Name: "geometry", Priority: PriorityGeometry, New: newGeometry},
		{Name: "time", Priority: PriorityTime, New: newTime},
		{Name: "links", Priority: PriorityLinks, New: newLinks},
		{Name: "metadata", Priority: PriorityMetadata, New: newMetadata},
	}
}

// DefaultRegistry returns a registry holding the built-in stages.
func DefaultRegistry() *stage.Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// NewRegistry returns a registry holding the built-in stages and extra.
func NewRegistry(extra ...stage.Factory) (*stage.Registry, error) {
	return stage.NewRegistry(append(Factories(), extra...)...)
}

// skeleton writes the members every document has: the feature collection
// object with its "type" and "features", each feature object with its "type",
// and "properties": null for features without properties.
type skeleton struct {
	hasProperties bool
}

func newSkeleton(*stage.Options) any {
	return &skeleton{}
}

func (s *skeleton) OnStart(c *stage.Context, next stage.Next) error {
	if c.Options.Single {
		return next(c)
	}
	c.Out.Put(&token.StartObject{})
	c.PutMember("type", token.StringScalar("FeatureCollection"))
	if err := next(c); err != nil {
		return err
	}
	c.Out.Put(token.NewKey("features"))
	c.Out.Put(&token.StartArray{})
	return nil
}

func (s *skeleton) OnFeatureStart(c *stage.Context, next stage.Next) error {
	s.hasProperties = false
	c.Out.Put(&token.StartObject{})
	c.PutMember("type", token.StringScalar("Feature"))
	return next(c)
}

func (s *skeleton) OnObjectStart(c *stage.Context, next stage.Next) error {
	if c.Depth == 0 && c.Action.Key == "properties" {
		s.hasProperties = true
	}
	return next(c)
}

func (s *skeleton) OnValue(c *stage.Context, next stage.Next) error {
	if len(c.Path) == 1 && c.Path[0].Name == "properties" {
		s.hasProperties = true
	}
	return next(c)
}

func (s *skeleton) OnFeatureEnd(c *stage.Context, next stage.Next) error {
	if !s.hasProperties {
		c.PutMember("properties", token.NullScalar)
	}
	if err := next(c); err != nil {
		return err
	}
	c.Out.Put(&token.EndObject{})
	return nil
}

func (s *skeleton) OnEnd(c *stage.Context, next stage.Next) error {
	if c.Options.Single {
		return next(c)
	}
	c.Out.Put(&token.EndArray{})
	if err := next(c); err != nil {
		return err
	}
	c.Out.Put(&token.EndObject{})
	return nil
}

// selectProperties drops the members of "properties" that are not listed in
// the options.
type selectProperties struct {
	keep map[string]bool
}

func newSelectProperties(opts *stage.Options) any {
	if len(opts.Properties) == 0 {
		return nil
	}
	s := &selectProperties{keep: map[string]bool{}}
	for _, p := range opts.Properties {
		s.keep[p] = true
	}
	return s
}

func (s *selectProperties) OnValue(c *stage.Context, next stage.Next) error {
	if len(c.Path) > 1 && c.Path[0].Name == "properties" && !s.keep[c.Path[1].Name] {
		return nil
	}
	return next(c)
}

// metadata writes the feature counts of a collection.
type metadata struct{}

func newMetadata(opts *stage.Options) any {
	if opts.Single {
		return nil
	}
	return metadata{}
}

func (metadata) OnEnd(c *stage.Context, next stage.Next) error {
	if c.Matched >= 0 {
		c.PutMember("numberMatched", token.Int64Scalar(int64(c.Matched)))
	}
	c.PutMember("numberReturned", token.Int64Scalar(int64(c.Features)))
	return next(c)
}
