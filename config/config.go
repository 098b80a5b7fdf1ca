// Package config loads the YAML configuration of the feature service and
// resolves the settings of each collection into encoding options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/arnodel/featurestream/source"
	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every problem found by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Source formats.
const (
	FormatGeoJSON = "geojson"
	FormatCSV     = "csv"
)

type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Tracing     TracingConfig      `yaml:"tracing"`
	Collections []CollectionConfig `yaml:"collections"`
}

type ServerConfig struct {
	Address string `yaml:"address"`

	// BaseURL prefixes the links written in documents, e.g.
	// "https://example.com/api".
	BaseURL string `yaml:"baseURL"`

	DefaultLimit   int           `yaml:"defaultLimit"`
	MaxLimit       int           `yaml:"maxLimit"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	Environment string  `yaml:"environment"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// A CollectionConfig describes a collection of features read from a file.
type CollectionConfig struct {
	ID          string       `yaml:"id"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Source      SourceConfig `yaml:"source"`

	CRS           string `yaml:"crs"`
	FeatureType   string `yaml:"featureType"`
	FeatureSchema string `yaml:"featureSchema"`

	// Links defaults to true.
	Links *bool `yaml:"links"`

	Flatten            bool   `yaml:"flatten"`
	Separator          string `yaml:"separator"`
	KeepValueArrayOpen bool   `yaml:"keepValueArrayOpen"`

	// Properties is the default selection of properties.
	Properties []string `yaml:"properties"`

	// Filter is an expression features must match to be served.
	Filter string `yaml:"filter"`

	// Roles maps property paths to roles, e.g. "properties.built: instant".
	// A '.' in a property name is escaped with a backslash.
	Roles map[string]string `yaml:"roles"`

	filter *source.Filter
}

type SourceConfig struct {
	File string `yaml:"file"`

	// Format is "geojson" or "csv".  It defaults to the file extension.
	Format string `yaml:"format"`

	// Comma, X and Y are CSV settings, see source.CSVDecoder.
	Comma string `yaml:"comma"`
	X     string `yaml:"x"`
	Y     string `yaml:"y"`
}

// Default returns the configuration used for settings a file leaves out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8080",
			BaseURL:        "http://localhost:8080",
			DefaultLimit:   10,
			MaxLimit:       10000,
			RequestTimeout: time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
		Tracing: TracingConfig{
			Endpoint:    "127.0.0.1:4318",
			ServiceName: "featured",
			Environment: "development",
			SampleRatio: 1,
		},
	}
}

// Load reads the configuration file at path.  Relative source files are
// resolved against the directory of the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	for i := range cfg.Collections {
		src := &cfg.Collections[i].Source
		if src.File != "" && !filepath.IsAbs(src.File) {
			src.File = filepath.Join(dir, src.File)
		}
	}
	return cfg, nil
}

// Parse decodes a YAML configuration over the defaults and validates it.
// Unknown fields are errors.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.Server.BaseURL = strings.TrimSuffix(c.Server.BaseURL, "/")
	for i := range c.Collections {
		coll := &c.Collections[i]
		if coll.Title == "" {
			coll.Title = coll.ID
		}
		if coll.Separator == "" {
			coll.Separator = "."
		}
		if coll.Source.Format == "" {
			switch strings.ToLower(filepath.Ext(coll.Source.File)) {
			case ".csv", ".tsv":
				coll.Source.Format = FormatCSV
			default:
				coll.Source.Format = FormatGeoJSON
			}
		}
	}
}

// Validate reports all the problems of the configuration at once, including
// settings of a collection that conflict with each other.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}
	if c.Server.DefaultLimit <= 0 {
		fail("server.defaultLimit must be positive")
	}
	if c.Server.MaxLimit < c.Server.DefaultLimit {
		fail("server.maxLimit is less than server.defaultLimit")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		fail("logging.level: %s", err)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		fail("tracing.sampleRatio must be between 0 and 1")
	}
	seen := map[string]bool{}
	for i := range c.Collections {
		coll := &c.Collections[i]
		if coll.ID == "" {
			fail("collection %d has no id", i+1)
			continue
		}
		if strings.ContainsAny(coll.ID, "/?#") {
			fail("collection %q: id must not contain '/', '?' or '#'", coll.ID)
		}
		if seen[coll.ID] {
			fail("duplicate collection %q", coll.ID)
		}
		seen[coll.ID] = true
		for _, err := range coll.validate() {
			fail("collection %q: %s", coll.ID, err)
		}
	}
	return errors.Join(errs...)
}

// NewLogger builds the logger described by the configuration: JSON output
// in production, console output in development.
func (l LoggingConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func (c *CollectionConfig) validate() []string {
	var problems []string
	src := c.Source
	if src.File == "" {
		problems = append(problems, "source.file is required")
	}
	switch src.Format {
	case FormatGeoJSON:
		if src.Comma != "" || src.X != "" || src.Y != "" {
			problems = append(problems, "comma, x and y only apply to csv sources")
		}
	case FormatCSV:
		if (src.X == "") != (src.Y == "") {
			problems = append(problems, "source.x and source.y go together")
		}
		if len([]rune(src.Comma)) > 1 {
			problems = append(problems, "source.comma must be a single character")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown source format %q", src.Format))
	}
	if c.FeatureSchema != "" && c.FeatureType == "" {
		problems = append(problems, "featureSchema requires featureType")
	}
	if _, err := c.roles(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Filter != "" {
		filter, err := source.CompileFilter(c.Filter)
		if err != nil {
			problems = append(problems, err.Error())
		}
		c.filter = filter
	}
	return problems
}

// roles parses the role names, checking that temporal roles are either an
// instant or an interval.
func (c *CollectionConfig) roles() (map[string]token.Role, error) {
	if len(c.Roles) == 0 {
		return nil, nil
	}
	roles := make(map[string]token.Role, len(c.Roles))
	count := map[token.Role]int{}
	for path, name := range c.Roles {
		r, err := token.ParseRole(name)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(path, "properties.") {
			return nil, fmt.Errorf("role of %q: only properties take roles", path)
		}
		if r == token.ID || r == token.PrimaryGeometry {
			return nil, fmt.Errorf("role of %q: %s is taken from the source", path, r)
		}
		count[r]++
		roles[token.ParsePath(path).String()] = r
	}
	for _, r := range []token.Role{token.Instant, token.InstantStart, token.InstantEnd} {
		if count[r] > 1 {
			return nil, fmt.Errorf("more than one %s property", r)
		}
	}
	if count[token.Instant] > 0 && count[token.InstantStart]+count[token.InstantEnd] > 0 {
		return nil, errors.New("instant conflicts with instant-start and instant-end")
	}
	return roles, nil
}

// RoleMap returns the roles of properties by path.  The configuration must
// have been validated.
func (c *CollectionConfig) RoleMap() map[string]token.Role {
	roles, _ := c.roles()
	return roles
}

// Options resolves the encoding options of the collection for a media type.
// The request may then refine the selection of properties and the page.
func (c *CollectionConfig) Options(server ServerConfig, mediaType string) *stage.Options {
	return &stage.Options{
		CollectionID:       c.ID,
		CollectionTitle:    c.Title,
		BaseURL:            server.BaseURL,
		MediaType:          mediaType,
		CRS:                c.CRS,
		FeatureType:        c.FeatureType,
		FeatureSchema:      c.FeatureSchema,
		Links:              c.Links == nil || *c.Links,
		Properties:         c.Properties,
		Flatten:            c.Flatten,
		Separator:          c.Separator,
		KeepValueArrayOpen: c.KeepValueArrayOpen,
		Limit:              server.DefaultLimit,
	}
}

// Collection returns the collection with the given id, or nil.
func (c *Config) Collection(id string) *CollectionConfig {
	for i := range c.Collections {
		if c.Collections[i].ID == id {
			return &c.Collections[i]
		}
	}
	return nil
}

// FeatureFilter returns the compiled filter of the collection, nil if there
// is none.  It is set by Validate.
func (c *CollectionConfig) FeatureFilter() *source.Filter {
	return c.filter
}

// NewSource returns a decoder of the collection's format reading from r.  A
// non-empty id selects a single feature.
func (c *CollectionConfig) NewSource(r io.Reader, id string) token.StreamSource {
	roles := c.RoleMap()
	if c.Source.Format == FormatCSV {
		d := source.NewCSVDecoder(r)
		if c.Source.Comma != "" {
			d.Comma = []rune(c.Source.Comma)[0]
		}
		d.X, d.Y = c.Source.X, c.Source.Y
		d.Roles = roles
		d.ID = id
		return d
	}
	d := source.NewGeoJSONDecoder(r)
	d.Roles = roles
	d.ID = id
	return d
}
