package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/arnodel/featurestream/encoding/geojson"
	"github.com/arnodel/featurestream/encoding/jpv"
	"github.com/arnodel/featurestream/encoding/json"
	"github.com/arnodel/featurestream/internal/format"
	"github.com/arnodel/featurestream/source"
	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
)

func main() {
	// Do not handle SIGPIPE, we'll do it ourselves (see the error handling in run).
	signal.Ignore(syscall.SIGPIPE)

	// Display a stack trace on panic
	defer func() {
		if e := recover(); e != nil {
			fmt.Fprintf(os.Stderr, "%s: %s", e, debug.Stack())
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	terminal := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	var stdout io.Writer = os.Stdout
	if terminal {
		stdout = colorable.NewColorableStdout()
	}
	os.Exit(run(ctx, os.Args[1:], os.Stdin, stdout, os.Stderr, terminal))
}

type settings struct {
	inputFormat  string
	outputFormat string
	jsonIndent   int
	jsonCompact  bool
	colorMode    string
	verbose      bool

	opts    stage.Options
	id      string
	filter  string
	props   string
	roles   string
	csvSep  string
	x, y    string
	noLinks bool
}

// run is the whole program, with its inputs and outputs as arguments.  It
// returns the exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, terminal bool) int {
	var s settings
	flags := flag.NewFlagSet("fp", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { printUsage(stderr, flags) }

	flags.StringVar(&s.inputFormat, "in", "auto", "input format: auto, geojson, csv")
	flags.StringVar(&s.outputFormat, "out", "geojson", "output format: geojson, jsonfg, flat, jpv")
	flags.IntVar(&s.jsonIndent, "json-indent", 2, "JSON indentation level (only used when -json-compact is false)")
	flags.BoolVar(&s.jsonCompact, "json-compact", false, "output JSON on a single line")
	flags.StringVar(&s.colorMode, "color", "auto", "colorize output: auto, always, never")
	flags.BoolVar(&s.verbose, "v", false, "log encoding details to stderr")

	flags.StringVar(&s.opts.CollectionID, "collection", "features", "collection id used in links")
	flags.StringVar(&s.opts.CollectionTitle, "title", "", "collection title")
	flags.StringVar(&s.opts.BaseURL, "base-url", "", "base URL of links; no links when empty")
	flags.IntVar(&s.opts.Limit, "limit", 0, "maximum number of features, 0 for all")
	flags.IntVar(&s.opts.Offset, "offset", 0, "number of features to skip")
	flags.StringVar(&s.opts.CRS, "crs", "", "coordinate reference system URI (JSON-FG)")
	flags.StringVar(&s.opts.FeatureType, "feature-type", "", "feature type (JSON-FG)")
	flags.StringVar(&s.opts.FeatureSchema, "feature-schema", "", "feature schema URI (JSON-FG)")
	flags.StringVar(&s.opts.Separator, "separator", ".", "key separator of flattened properties")
	flags.BoolVar(&s.opts.KeepValueArrayOpen, "keep-value-array-open", false, "accept repeated indices for the values of an array")

	flags.StringVar(&s.id, "id", "", "write the single feature with this id")
	flags.StringVar(&s.filter, "filter", "", "only write features matching this expression")
	flags.StringVar(&s.props, "properties", "", "comma-separated properties to keep")
	flags.StringVar(&s.roles, "roles", "", "comma-separated path=role pairs, e.g. properties.built=instant")
	flags.StringVar(&s.csvSep, "csv-comma", ",", "CSV field delimiter")
	flags.StringVar(&s.x, "csv-x", "", "CSV column of point x coordinates")
	flags.StringVar(&s.y, "csv-y", "", "CSV column of point y coordinates")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	fail := func(msg string, args ...any) int {
		fmt.Fprintf(stderr, msg+"\n", args...)
		return 1
	}

	var colorizer *format.Colorizer
	switch s.colorMode {
	case "always":
		colorizer = format.NewDefaultColorizer()
	case "never":
	case "auto":
		if terminal {
			colorizer = format.NewDefaultColorizer()
		}
	default:
		return fail("invalid -color value: %q (use auto, always, or never)", s.colorMode)
	}

	logger := zap.NewNop()
	if s.verbose {
		zc := zap.NewDevelopmentConfig()
		zc.OutputPaths = []string{"stderr"}
		l, err := zc.Build()
		if err != nil {
			return fail("cannot build logger: %s", err)
		}
		logger = l
		defer logger.Sync()
	}

	opts := &s.opts
	opts.MediaType = stage.MediaTypeGeoJSON
	opts.Links = opts.BaseURL != ""
	opts.Single = s.id != ""
	switch s.outputFormat {
	case "geojson", "json", "jpv":
	case "jsonfg":
		opts.MediaType = stage.MediaTypeJSONFG
	case "flat":
		opts.Flatten = true
	default:
		return fail("invalid output format: %q", s.outputFormat)
	}
	for _, p := range strings.Split(s.props, ",") {
		if p = strings.TrimSpace(p); p != "" {
			opts.Properties = append(opts.Properties, p)
		}
	}
	roles, err := parseRoles(s.roles)
	if err != nil {
		return fail("invalid -roles: %s", err)
	}

	// Choose the input decoder
	input := bufio.NewReader(stdin)
	if s.inputFormat == "auto" {
		start, err := input.Peek(1)
		if err == io.EOF {
			return fail("unable to guess format of empty input")
		}
		if err != nil {
			return fail("unable to read input: %s", err)
		}
		s.inputFormat = "csv"
		if bytes.Equal(start, []byte("{")) || isSpace(start[0]) {
			s.inputFormat = "geojson"
		}
	}
	var decoder token.StreamSource
	switch s.inputFormat {
	case "geojson", "json":
		d := source.NewGeoJSONDecoder(input)
		d.Roles, d.ID = roles, s.id
		decoder = d
	case "csv":
		d := source.NewCSVDecoder(input)
		if r := []rune(s.csvSep); len(r) == 1 {
			d.Comma = r[0]
		} else {
			return fail("invalid -csv-comma: %q", s.csvSep)
		}
		d.Roles, d.ID, d.X, d.Y = roles, s.id, s.x, s.y
		decoder = d
	default:
		return fail("invalid input format: %q", s.inputFormat)
	}

	stream := token.StartStream(ctx, decoder)
	defer stream.Close()
	var in token.ReadStream = stream
	if s.filter != "" {
		filter, err := source.CompileFilter(s.filter)
		if err != nil {
			return fail("%s", err)
		}
		in = source.NewFilterReadStream(in, filter)
	}

	// Write the output stream to stdout
	out := bufio.NewWriter(stdout)
	defer out.Flush()

	indentSize := s.jsonIndent
	if s.jsonCompact {
		indentSize = -1
	}
	printer := &format.DefaultPrinter{Writer: out, IndentSize: indentSize}

	// If we are writing to a terminal, flush after each line so user gets feedback early.
	if terminal {
		printer.Flusher = out
	}

	var sink token.WriteStream
	if s.outputFormat == "jpv" {
		printer.IndentSize = 0
		sink = jpv.NewWriter(printer, colorizer)
	} else {
		sink = json.NewWriter(printer, colorizer, s.jsonCompact)
	}

	n, err := geojson.NewEncoder(nil, logger).Encode(ctx, opts, in, sink)
	if err == nil {
		err = out.Flush()
	}
	if err != nil {
		if errors.Is(err, syscall.EPIPE) {
			// stdout is a pipe and something closed it (e.g. 'head' or 'less').
			// In this case we don't want to complain.
			return 0
		}
		return fail("error: %s", err)
	}
	if opts.Single && n == 0 {
		return fail("no feature with id %q", s.id)
	}
	return 0
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func parseRoles(s string) (map[string]token.Role, error) {
	if s == "" {
		return nil, nil
	}
	roles := map[string]token.Role{}
	for _, pair := range strings.Split(s, ",") {
		path, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("expected path=role, got %q", pair)
		}
		r, err := token.ParseRole(name)
		if err != nil {
			return nil, err
		}
		roles[token.ParsePath(path).String()] = r
	}
	return roles, nil
}

func printUsage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprint(w, `fp - feature stream encoder

USAGE:
  fp [options] < features.geojson
  fp [options] < features.csv

DESCRIPTION:
  fp reads features from a GeoJSON document (a Feature, a FeatureCollection
  or a sequence of them) or from a CSV table, and writes them as GeoJSON,
  JSON-FG, flattened GeoJSON or JPV.  Features are encoded one at a time, so
  inputs of any size can be processed.

  CSV headers name properties by path, with 1-based indices for arrays:
    id,name,tags[1],tags[2],contacts[1].email

EXAMPLES:
  fp -out jsonfg -feature-type Lighthouse < lighthouses.geojson
  fp -out flat -properties name,tags < lighthouses.geojson
  fp -filter 'properties.height > 50' -json-compact < lighthouses.geojson
  fp -csv-x lon -csv-y lat -out jpv < buoys.csv

OPTIONS:
`)
	flags.PrintDefaults()
}
