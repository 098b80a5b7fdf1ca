package geojson

import (
	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
)

// links writes the "links" of each feature and of the collection, along with
// the links other stages added to the context since the last flush.
type links struct{}

func newLinks(opts *stage.Options) any {
	if !opts.Links {
		return nil
	}
	return links{}
}

func (links) OnFeatureEnd(c *stage.Context, next stage.Next) error {
	o := c.Options
	pending := c.TakeLinks()
	var all []stage.Link
	if c.FeatureID != nil {
		all = append(all, stage.Link{Href: o.ItemURL(idString(c.FeatureID)), Rel: "self", Type: o.MediaType})
	}
	if o.Single {
		all = append(all, stage.Link{Href: o.CollectionURL(), Rel: "collection", Type: "application/json", Title: o.CollectionTitle})
	}
	all = append(all, pending...)
	if len(all) > 0 {
		c.PutLinks(all)
	}
	return next(c)
}

func (links) OnEnd(c *stage.Context, next stage.Next) error {
	o := c.Options
	if o.Single {
		return next(c)
	}
	all := []stage.Link{
		{Href: o.ItemsURL(o.Offset), Rel: "self", Type: o.MediaType, Title: o.CollectionTitle},
		{Href: o.CollectionURL(), Rel: "collection", Type: "application/json"},
	}
	if o.Limit > 0 && c.Matched >= 0 && o.Offset+c.Features < c.Matched {
		all = append(all, stage.Link{Href: o.ItemsURL(o.Offset + o.Limit), Rel: "next", Type: o.MediaType})
	}
	all = append(all, c.TakeLinks()...)
	c.PutLinks(all)
	return next(c)
}

func idString(id *token.Scalar) string {
	if id.Type() == token.String {
		return id.ToString()
	}
	return string(id.Bytes)
}
