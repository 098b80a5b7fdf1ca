package stage

import (
	"net/url"
	"strconv"
)

// Media types of the documents the stages produce.
const (
	MediaTypeGeoJSON = "application/geo+json"
	MediaTypeJSONFG  = "application/vnd.ogc.fg+json"
)

// CRS84 is the default coordinate reference system of GeoJSON.
const CRS84 = "http://www.opengis.net/def/crs/OGC/1.3/CRS84"

// Options are the settings of one encoding, resolved from the configuration
// of a collection and the request before encoding starts.  They are not
// modified during the encoding.
type Options struct {
	CollectionID    string
	CollectionTitle string
	BaseURL         string

	// MediaType is MediaTypeGeoJSON or MediaTypeJSONFG.
	MediaType string

	// Format is the value of the f query parameter links point to, if any.
	Format string

	// Query holds the other request parameters the items links carry, so
	// that paging walks the same selection of features.
	Query url.Values

	// Single is true when the document is a single feature rather than a
	// feature collection.
	Single bool

	CRS           string
	FeatureType   string
	FeatureSchema string
	Links         bool

	// Properties restricts the members of "properties" to those listed.
	Properties []string

	// Flatten writes nested properties as flat keys joined with Separator.
	Flatten   bool
	Separator string

	// KeepValueArrayOpen accepts sources repeating the index of the last
	// value of an array for the following values.
	KeepValueArrayOpen bool

	// Offset and Limit select the page of features written.  Limit <= 0
	// means no limit.
	Offset int
	Limit  int
}

func (o *Options) JSONFG() bool {
	return o.MediaType == MediaTypeJSONFG
}

// DefaultCRS reports whether coordinates are in CRS84.
func (o *Options) DefaultCRS() bool {
	return o.CRS == "" || o.CRS == CRS84
}

// ItemsURL returns the URL of the items of the collection at the given page.
// A negative offset omits paging parameters.
func (o *Options) ItemsURL(offset int) string {
	u := o.BaseURL + "/collections/" + url.PathEscape(o.CollectionID) + "/items"
	q := url.Values{}
	for k, v := range o.Query {
		q[k] = v
	}
	q.Del("limit")
	q.Del("offset")
	q.Del("f")
	if o.Format != "" {
		q.Set("f", o.Format)
	}
	if offset >= 0 && o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
		if offset > 0 {
			q.Set("offset", strconv.Itoa(offset))
		}
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// ItemURL returns the URL of a single feature.
func (o *Options) ItemURL(id string) string {
	u := o.BaseURL + "/collections/" + url.PathEscape(o.CollectionID) + "/items/" + url.PathEscape(id)
	if o.Format != "" {
		u += "?f=" + url.QueryEscape(o.Format)
	}
	return u
}

// CollectionURL returns the URL of the collection.
func (o *Options) CollectionURL() string {
	return o.BaseURL + "/collections/" + url.PathEscape(o.CollectionID)
}
