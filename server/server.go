// Package server serves the configured collections over HTTP: collection
// metadata as JSON, and features as GeoJSON, JSON-FG or JPV documents
// streamed straight from the collection files.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/arnodel/featurestream/config"
	"github.com/arnodel/featurestream/encoding/geojson"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	Config  *config.Config
	Encoder *geojson.Encoder
	Logger  *zap.Logger

	// Open opens the source file of a collection, os.Open by default.
	Open func(name string) (io.ReadCloser, error)

	engine *gin.Engine
}

// New returns a server for the collections of cfg.  A nil encoder means one
// with the built-in stages.
func New(cfg *config.Config, encoder *geojson.Encoder, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if encoder == nil {
		encoder = geojson.NewEncoder(nil, logger)
	}
	s := &Server{
		Config:  cfg,
		Encoder: encoder,
		Logger:  logger,
		Open: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(requestID(), requestLogger(s.Logger), recovery(s.Logger))
	r.GET("/collections", s.listCollections)
	r.GET("/collections/:collectionId", s.getCollection)
	r.GET("/collections/:collectionId/items", s.getItems)
	r.GET("/collections/:collectionId/items/:featureId", s.getItem)
	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "not found")
	})
	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Config.Server.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.Logger.Info("Listening", zap.String("address", srv.Addr))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	s.Logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
