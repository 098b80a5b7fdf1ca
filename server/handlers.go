package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/arnodel/featurestream/config"
	"github.com/arnodel/featurestream/encoding/geojson"
	"github.com/arnodel/featurestream/encoding/jpv"
	jsonenc "github.com/arnodel/featurestream/encoding/json"
	"github.com/arnodel/featurestream/internal/format"
	"github.com/arnodel/featurestream/source"
	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const mediaTypeText = "text/plain"

// An outputFormat is a document format the items can be served in.
type outputFormat struct {
	name        string // value of the f parameter
	contentType string
	mediaType   string // media type of the encoded document
	jpv         bool
}

var (
	formatGeoJSON = outputFormat{name: "json", contentType: stage.MediaTypeGeoJSON, mediaType: stage.MediaTypeGeoJSON}
	formatJSONFG  = outputFormat{name: "jsonfg", contentType: stage.MediaTypeJSONFG, mediaType: stage.MediaTypeJSONFG}
	formatJPV     = outputFormat{name: "jpv", contentType: mediaTypeText + "; charset=utf-8", mediaType: stage.MediaTypeGeoJSON, jpv: true}
)

// negotiate picks the output format from the f parameter, or else from the
// Accept header.
func negotiate(c *gin.Context) (outputFormat, bool) {
	switch f := c.Query("f"); f {
	case "json", "geojson":
		return formatGeoJSON, true
	case "jsonfg":
		return formatJSONFG, true
	case "jpv":
		return formatJPV, true
	case "":
	default:
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("unknown format %q", f))
		return outputFormat{}, false
	}
	switch c.NegotiateFormat(stage.MediaTypeGeoJSON, stage.MediaTypeJSONFG, gin.MIMEJSON, mediaTypeText) {
	case stage.MediaTypeGeoJSON, gin.MIMEJSON:
		return formatGeoJSON, true
	case stage.MediaTypeJSONFG:
		return formatJSONFG, true
	case mediaTypeText:
		return formatJPV, true
	}
	abortWithError(c, http.StatusNotAcceptable, "no acceptable media type")
	return outputFormat{}, false
}

// A request holds the encoding settings of an items request.
type request struct {
	opts   *stage.Options
	filter *source.Filter
	pretty bool
	format outputFormat
}

// linkParams are the request parameters kept in the links of a page.
var linkParams = []string{"properties", "flatten", "pretty", "filter"}

func (s *Server) parseRequest(c *gin.Context, coll *config.CollectionConfig, single bool) (*request, error) {
	f, ok := negotiate(c)
	if !ok {
		return nil, nil
	}
	req := &request{format: f, opts: coll.Options(s.Config.Server, f.mediaType)}
	opts := req.opts
	opts.Format = c.Query("f")
	opts.Single = single
	opts.Query = url.Values{}
	for _, k := range linkParams {
		if v, ok := c.GetQueryArray(k); ok {
			opts.Query[k] = v
		}
	}
	if !single {
		if v, ok := c.GetQuery("limit"); ok {
			limit, err := strconv.Atoi(v)
			if err != nil || limit < 1 {
				return nil, fmt.Errorf("invalid limit %q", v)
			}
			opts.Limit = min(limit, s.Config.Server.MaxLimit)
		}
		if v, ok := c.GetQuery("offset"); ok {
			offset, err := strconv.Atoi(v)
			if err != nil || offset < 0 {
				return nil, fmt.Errorf("invalid offset %q", v)
			}
			opts.Offset = offset
		}
	}
	if v, ok := c.GetQuery("properties"); ok {
		opts.Properties = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				opts.Properties = append(opts.Properties, p)
			}
		}
	}
	if v, ok := c.GetQuery("flatten"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid flatten %q", v)
		}
		opts.Flatten = b
	}
	if v, ok := c.GetQuery("pretty"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid pretty %q", v)
		}
		req.pretty = b
	}
	if v := c.Query("filter"); v != "" {
		filter, err := source.CompileFilter(v)
		if err != nil {
			return nil, err
		}
		req.filter = filter
	}
	return req, nil
}

func (s *Server) collection(c *gin.Context) *config.CollectionConfig {
	id := c.Param("collectionId")
	coll := s.Config.Collection(id)
	if coll == nil {
		abortWithError(c, http.StatusNotFound, fmt.Sprintf("unknown collection %q", id))
	}
	return coll
}

func (s *Server) getItems(c *gin.Context) {
	if coll := s.collection(c); coll != nil {
		s.serveFeatures(c, coll, "")
	}
}

func (s *Server) getItem(c *gin.Context) {
	if coll := s.collection(c); coll != nil {
		s.serveFeatures(c, coll, c.Param("featureId"))
	}
}

// serveFeatures streams the features of a collection, or the single feature
// with the given id, to the client.  Nothing is buffered beyond the output
// buffer, so an error may happen after the response has started: the
// connection is then aborted so that the client cannot take the truncated
// document for a complete one.
func (s *Server) serveFeatures(c *gin.Context, coll *config.CollectionConfig, featureID string) {
	req, err := s.parseRequest(c, coll, featureID != "")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req == nil {
		return
	}

	file, err := s.Open(coll.Source.File)
	if err != nil {
		c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "collection unavailable")
		return
	}
	defer file.Close()

	ctx := c.Request.Context()
	if t := s.Config.Server.RequestTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	stream := token.StartStream(ctx, coll.NewSource(file, featureID))
	defer stream.Close()
	var in token.ReadStream = stream
	for _, filter := range []*source.Filter{coll.FeatureFilter(), req.filter} {
		if filter != nil {
			in = source.NewFilterReadStream(in, filter)
		}
	}

	c.Header("Content-Type", req.format.contentType)
	buf := bufio.NewWriterSize(c.Writer, 32<<10)
	printer := &format.DefaultPrinter{Writer: buf, IndentSize: -1}
	var out token.WriteStream
	switch {
	case req.format.jpv:
		printer.IndentSize = 0
		out = jpv.NewWriter(printer, nil)
	case req.pretty:
		printer.IndentSize = 2
		out = jsonenc.NewWriter(printer, nil, false)
	default:
		out = jsonenc.NewWriter(printer, nil, true)
	}

	n, err := s.Encoder.Encode(ctx, req.opts, in, out)
	switch {
	case err == nil && featureID != "" && n == 0:
		// Nothing was written, the buffer is dropped.
		abortWithError(c, http.StatusNotFound, fmt.Sprintf("unknown feature %q", featureID))
	case err == nil:
		if err := buf.Flush(); err != nil {
			s.Logger.Debug("Client went away", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
		}
	case geojson.IsSinkError(err) || errors.Is(err, context.Canceled):
		c.Error(err)
	case c.Writer.Written():
		c.Error(err)
		panic(http.ErrAbortHandler)
	default:
		c.Error(err)
		abortWithError(c, http.StatusInternalServerError, "encoding failed")
	}
}

type collectionInfo struct {
	ID          string       `json:"id"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Links       []stage.Link `json:"links"`
}

func (s *Server) collectionInfo(coll *config.CollectionConfig) collectionInfo {
	opts := coll.Options(s.Config.Server, stage.MediaTypeGeoJSON)
	items := opts.ItemsURL(-1)
	return collectionInfo{
		ID:          coll.ID,
		Title:       coll.Title,
		Description: coll.Description,
		Links: []stage.Link{
			{Href: opts.CollectionURL(), Rel: "self", Type: gin.MIMEJSON, Title: coll.Title},
			{Href: items, Rel: "items", Type: stage.MediaTypeGeoJSON, Title: coll.Title},
			{Href: items + "?f=jsonfg", Rel: "items", Type: stage.MediaTypeJSONFG, Title: coll.Title},
		},
	}
}

func (s *Server) listCollections(c *gin.Context) {
	collections := make([]collectionInfo, len(s.Config.Collections))
	for i := range s.Config.Collections {
		collections[i] = s.collectionInfo(&s.Config.Collections[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"collections": collections,
		"links": []stage.Link{
			{Href: s.Config.Server.BaseURL + "/collections", Rel: "self", Type: gin.MIMEJSON},
		},
	})
}

func (s *Server) getCollection(c *gin.Context) {
	if coll := s.collection(c); coll != nil {
		c.JSON(http.StatusOK, s.collectionInfo(coll))
	}
}
