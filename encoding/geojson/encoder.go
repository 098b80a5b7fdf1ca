// Package geojson encodes flat feature event streams as GeoJSON feature
// collections and features, and their JSON-FG variant.
//
// The Encoder reads the events of a feature source and drives them through a
// stage pipeline.  The core writer at the end of the pipeline reconstructs
// the nesting of each feature with a nesting.Tracker and writes it through a
// nesting.Strategy, while the stages write the members of the document that
// do not come from the source: "type", "links", "numberMatched"...
package geojson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/arnodel/featurestream/internal/format"
	"github.com/arnodel/featurestream/nesting"
	"github.com/arnodel/featurestream/stage"
	"github.com/arnodel/featurestream/token"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerName is the name of the tracer encodings are traced with.
const TracerName = "featurestream/geojson"

var (
	// ErrUnbalanced is returned when a stage did not let a structural action
	// through to the core writer.
	ErrUnbalanced = errors.New("unbalanced document structure")

	// ErrSourceContract is returned when the feature boundaries of the event
	// stream are inconsistent.  Inconsistent property paths are reported
	// with nesting.ErrContractViolation.
	ErrSourceContract = errors.New("feature source contract violation")
)

// IsSinkError reports whether err was caused by writing the output, e.g. a
// client that went away.
func IsSinkError(err error) bool {
	var perr *format.PrinterError
	return errors.As(err, &perr)
}

// An Encoder encodes feature streams.  It holds no per encoding state and can
// be used concurrently.
type Encoder struct {
	Registry *stage.Registry
	Logger   *zap.Logger
	Tracer   trace.Tracer
}

// NewEncoder returns an encoder running the stages of registry, or of
// DefaultRegistry() if registry is nil.
func NewEncoder(registry *stage.Registry, logger *zap.Logger) *Encoder {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{
		Registry: registry,
		Logger:   logger,
		Tracer:   otel.Tracer(TracerName),
	}
}

// Encode writes the document made of the features read from in to out and
// returns the number of features written.
//
// Any error aborts the encoding: what was already written to out is left as
// is.  Errors writing to out are recognised by IsSinkError.
func (e *Encoder) Encode(ctx context.Context, opts *stage.Options, in token.ReadStream, out token.WriteStream) (n int, err error) {
	ctx, span := e.Tracer.Start(ctx, "geojson.Encode",
		trace.WithAttributes(
			attribute.String("collection.id", opts.CollectionID),
			attribute.String("media_type", opts.MediaType),
			attribute.Bool("single", opts.Single),
		))
	defer span.End()

	start := time.Now()
	enc := e.newEncoding(opts, out)
	var page *token.PageReadStream
	if !opts.Single {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		page = token.NewPageReadStream(in, opts.Offset, limit)
		in = page
	}
	err = enc.run(ctx, in, page)
	n = enc.ctx.Features

	span.SetAttributes(attribute.Int("features", n))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.Logger.Error("Encoding failed",
			zap.String("collection", opts.CollectionID),
			zap.Int("features", n),
			zap.Bool("sink", IsSinkError(err)),
			zap.Error(err))
		return n, err
	}
	e.Logger.Debug("Encoded features",
		zap.String("collection", opts.CollectionID),
		zap.String("mediaType", opts.MediaType),
		zap.Int("features", n),
		zap.Duration("duration", time.Since(start)))
	return n, nil
}

// An encoding is the state of one call to Encode.  It is also the core writer
// terminating the pipeline.
type encoding struct {
	ctx       *stage.Context
	pipeline  *stage.Pipeline
	tracker   *nesting.Tracker
	strategy  nesting.Strategy
	open      []bool // containers applied to the strategy, true for arrays
	inFeature bool
}

func (e *Encoder) newEncoding(opts *stage.Options, out token.WriteStream) *encoding {
	var strategy nesting.Strategy = nesting.NewTokenStrategy(out)
	if opts.Flatten {
		sep := opts.Separator
		if sep == "" {
			sep = "."
		}
		strategy = nesting.NewFlattening(strategy, sep, 1)
	}
	enc := &encoding{
		ctx:      stage.NewContext(opts, out, e.Logger),
		tracker:  nesting.NewTracker(nesting.Options{KeepValueArrayOpen: opts.KeepValueArrayOpen}),
		strategy: strategy,
	}
	enc.pipeline = stage.NewPipeline(enc, e.Registry.Instantiate(opts)...)
	return enc
}

func (enc *encoding) run(ctx context.Context, in token.ReadStream, page *token.PageReadStream) (err error) {
	defer format.CatchPrinterError(&err)
	if err := enc.fire(stage.Start); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := in.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading features: %w", err)
		}
		if err := enc.event(ev); err != nil {
			return err
		}
	}
	if enc.inFeature {
		return fmt.Errorf("%w: feature %d has no end", ErrSourceContract, enc.ctx.Features)
	}
	if page != nil {
		enc.ctx.Matched = page.Matched()
	}
	return enc.fire(stage.End)
}

func (enc *encoding) event(ev token.Event) error {
	c := enc.ctx
	switch ev.Kind {
	case token.FeatureStart:
		if enc.inFeature {
			return fmt.Errorf("%w: feature %d starts inside feature %d", ErrSourceContract, c.Features+1, c.Features)
		}
		if c.Options.Single && c.Features > 0 {
			return fmt.Errorf("%w: more than one feature in a single feature document", ErrSourceContract)
		}
		enc.inFeature = true
		enc.tracker.Reset()
		c.ResetFeature()
		c.Features++
		return enc.fire(stage.FeatureStart)
	case token.Property:
		if !enc.inFeature {
			return fmt.Errorf("%w: property %s outside of a feature", ErrSourceContract, ev.Path)
		}
		if ev.Value == nil {
			return fmt.Errorf("%w: property %s has no value", ErrSourceContract, ev.Path)
		}
		c.Path, c.Indices, c.Value, c.Role = ev.Path, ev.Indices, ev.Value, ev.Role
		if ev.Role == token.ID {
			c.FeatureID = ev.Value
		}
		return enc.fire(stage.Value)
	case token.FeatureEnd:
		if !enc.inFeature {
			return fmt.Errorf("%w: end of feature without a start", ErrSourceContract)
		}
		enc.inFeature = false
		if err := enc.structure(enc.tracker.Close().Closes); err != nil {
			return err
		}
		if enc.depth() != 0 {
			return fmt.Errorf("%w: %d containers left open", ErrUnbalanced, enc.depth())
		}
		if err := enc.fire(stage.PropertiesEnd); err != nil {
			return err
		}
		return enc.fire(stage.FeatureEnd)
	default:
		return fmt.Errorf("%w: unknown event %s", ErrSourceContract, ev.Kind)
	}
}

func (enc *encoding) fire(h stage.Hook) error {
	return enc.pipeline.Fire(h, enc.ctx)
}

// structure fires the hooks of the given structural actions, checking that
// each of them reached the core writer.
func (enc *encoding) structure(actions []nesting.Action) error {
	for _, a := range actions {
		var h stage.Hook
		want := enc.depth() + 1
		switch a.Kind {
		case nesting.OpenObject, nesting.OpenObjectInArray:
			h = stage.ObjectStart
		case nesting.OpenArray:
			h = stage.ArrayStart
		case nesting.CloseObject:
			h = stage.ObjectEnd
			want = enc.depth() - 1
		case nesting.CloseArray:
			h = stage.ArrayEnd
			want = enc.depth() - 1
		default:
			return fmt.Errorf("%w: unexpected %s", ErrUnbalanced, a)
		}
		enc.ctx.Action = a
		enc.ctx.Depth = enc.depth()
		if err := enc.fire(h); err != nil {
			return err
		}
		if enc.depth() != want {
			return fmt.Errorf("%w: %s did not reach the writer", ErrUnbalanced, a)
		}
	}
	return nil
}

// OnValue opens the structure leading to the value and writes it.
func (enc *encoding) OnValue(c *stage.Context, _ stage.Next) error {
	tr, err := enc.tracker.Track(c.Path, c.Indices)
	if err != nil {
		return err
	}
	if err := enc.structure(tr.Closes); err != nil {
		return err
	}
	n := len(tr.Opens)
	if n == 0 {
		return fmt.Errorf("%w: no field for %s", ErrUnbalanced, c.Path)
	}
	if err := enc.structure(tr.Opens[:n-1]); err != nil {
		return err
	}
	c.Action = tr.Opens[n-1]
	c.Depth = enc.depth()
	enc.strategy.OpenField(c.Action.Key)
	c.Out.Put(c.Value)
	return nil
}

func (enc *encoding) OnObjectStart(c *stage.Context, _ stage.Next) error {
	return enc.apply(c.Action)
}

func (enc *encoding) OnArrayStart(c *stage.Context, _ stage.Next) error {
	return enc.apply(c.Action)
}

func (enc *encoding) OnObjectEnd(c *stage.Context, _ stage.Next) error {
	return enc.apply(c.Action)
}

func (enc *encoding) OnArrayEnd(c *stage.Context, _ stage.Next) error {
	return enc.apply(c.Action)
}

func (enc *encoding) depth() int {
	return len(enc.open)
}

// apply passes a structural action to the strategy.  A close must match the
// last container opened, so that a misbehaving stage is reported as an error
// rather than corrupting the document.
func (enc *encoding) apply(a nesting.Action) error {
	switch a.Kind {
	case nesting.CloseObject, nesting.CloseArray:
		n := len(enc.open)
		if n == 0 || enc.open[n-1] != (a.Kind == nesting.CloseArray) {
			return fmt.Errorf("%w: %s without a matching open", ErrUnbalanced, a)
		}
		enc.open = enc.open[:n-1]
	default:
		enc.open = append(enc.open, a.Kind == nesting.OpenArray)
	}
	nesting.Apply(enc.strategy, a)
	return nil
}
