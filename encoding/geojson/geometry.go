package geojson

import (
	"bytes"
	"fmt"

	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
	"github.com/goccy/go-json"
)

var placePath = token.Path{{Name: "place"}}

// geometry makes sure every feature has a "geometry" member, and a "place"
// member in JSON-FG.  In JSON-FG with a CRS other than CRS84 the primary
// geometry is written as "place" and "geometry" is null.  Raw geometries are
// compacted so they fit on one line.
type geometry struct {
	jsonfg bool
	place  bool
	seen   bool
	buf    bytes.Buffer
}

func newGeometry(opts *stage.Options) any {
	return &geometry{
		jsonfg: opts.JSONFG(),
		place:  opts.JSONFG() && !opts.DefaultCRS(),
	}
}

func (s *geometry) OnFeatureStart(c *stage.Context, next stage.Next) error {
	s.seen = false
	return next(c)
}

func (s *geometry) OnValue(c *stage.Context, next stage.Next) error {
	if c.Role != token.PrimaryGeometry && c.Role != token.SecondaryGeometry {
		return next(c)
	}
	if c.Value.Type() == token.Raw {
		s.buf.Reset()
		if err := json.Compact(&s.buf, c.Value.Bytes); err != nil {
			return fmt.Errorf("invalid geometry at %s: %w", c.Path, err)
		}
		c.Value = token.RawScalar(append([]byte(nil), s.buf.Bytes()...))
	}
	if c.Role == token.PrimaryGeometry && len(c.Path) == 1 {
		s.seen = true
		if s.place {
			c.Path = placePath
		}
	}
	return next(c)
}

func (s *geometry) OnFeatureEnd(c *stage.Context, next stage.Next) error {
	switch {
	case !s.seen:
		c.PutMember("geometry", token.NullScalar)
		if s.jsonfg {
			c.PutMember("place", token.NullScalar)
		}
	case s.place:
		c.PutMember("geometry", token.NullScalar)
	case s.jsonfg:
		c.PutMember("place", token.NullScalar)
	}
	return next(c)
}
