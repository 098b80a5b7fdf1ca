// Command featured serves collections of features read from GeoJSON and CSV
// files as GeoJSON, JSON-FG and JPV documents.
//
// Usage:
//
//	featured -config featured.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arnodel/featurestream/config"
	"github.com/arnodel/featurestream/encoding/geojson"
	"github.com/arnodel/featurestream/internal/tracing"
	"github.com/arnodel/featurestream/server"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string
	var address string
	flag.StringVar(&configPath, "config", "featured.yaml", "path to the configuration file")
	flag.StringVar(&address, "addr", "", "address to listen on, overrides server.address")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fatalError("%s\n", err)
	}
	if address != "" {
		cfg.Server.Address = address
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		fatalError("cannot build logger: %s\n", err)
	}
	defer logger.Sync()
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, version, logger)
	if err != nil {
		logger.Fatal("Failed to set up tracing", zap.Error(err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("Failed to shut down tracing", zap.Error(err))
		}
	}()

	for _, coll := range cfg.Collections {
		logger.Info("Serving collection",
			zap.String("id", coll.ID),
			zap.String("file", coll.Source.File),
			zap.String("format", coll.Source.Format))
	}

	srv := server.New(cfg, geojson.NewEncoder(nil, logger), logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error("Server failed", zap.Error(err))
		os.Exit(1)
	}
}

func fatalError(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg, args...)
	os.Exit(1)
}
