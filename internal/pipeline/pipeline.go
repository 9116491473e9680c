// Package pipeline wires one source connector to one destination.
//
// # Overview
//
// A run reads the destination checkpoint, discovers the source catalog and
// selects the configured streams, starts a read resuming from the
// checkpoint and hands the resulting message stream to the destination
// loader. Errors from either side are returned unchanged; the caller decides
// how to report them.
//
// # Basic Usage
//
//	p, err := pipeline.Build(ctx, "faker_to_bq", def, pipeline.BuildOptions{Logger: log})
//	if err != nil {
//		return err
//	}
//	defer p.Close(ctx)
//
//	runner, err := pipeline.NewRunner(def.RemoteRunner)
//	if err != nil {
//		return err
//	}
//	result, err := runner.Run(ctx, p)
package pipeline

import (
	"context"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pulsar/pkg/config"
	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/destination/sinks"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/logger"
	"github.com/ajitpratap0/pulsar/pkg/metrics"
	"github.com/ajitpratap0/pulsar/pkg/observability"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
	"github.com/ajitpratap0/pulsar/pkg/source"
)

// Source is the part of the source driver a run needs.
type Source interface {
	BuildConfiguredCatalog(ctx context.Context, selection []string) (*protocol.ConfiguredCatalog, error)
	Extract(ctx context.Context, catalog *protocol.ConfiguredCatalog, state json.RawMessage) (*source.MessageStream, error)
}

// Pipeline is one configured connection ready to run.
type Pipeline struct {
	Name        string
	Source      Source
	Destination destination.Destination
	// Streams selects the streams to read; empty reads all of them.
	Streams []string
	Logger  *zap.Logger
}

// Result summarizes a completed run.
type Result struct {
	// State is the checkpoint the read resumed from.
	State    json.RawMessage
	Messages int64
	Records  int64
	Duration time.Duration
}

// Run executes the pipeline once in the current process.
func (p *Pipeline) Run(ctx context.Context) (result *Result, err error) {
	log := logger.OrNop(p.Logger).With(zap.String("connection", p.Name))
	ctx, span := observability.StartSpan(ctx, "pipeline.run", attribute.String("connection", p.Name))
	start := time.Now()
	tracker := metrics.NewThroughputTracker(p.Name)
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.RunsTotal.WithLabelValues(p.Name, status).Inc()
		observability.EndSpan(span, err)
	}()

	log.Info("starting pipeline", zap.Strings("streams", p.Streams))

	state, err := p.Destination.GetState(ctx)
	if err != nil {
		return nil, err
	}
	log.Debug("resuming from checkpoint", zap.ByteString("state", state))

	catalog, err := p.Source.BuildConfiguredCatalog(ctx, p.Streams)
	if err != nil {
		return nil, err
	}

	stream, err := p.Source.Extract(ctx, catalog, state)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	counted := &countingSource{src: stream, tracker: tracker}
	if err := p.Destination.Load(ctx, counted); err != nil {
		return nil, err
	}

	result = &Result{
		State:    state,
		Messages: counted.messages,
		Records:  tracker.Count(),
		Duration: time.Since(start),
	}
	span.SetAttributes(attribute.Int64("records", result.Records))

	log.Info("pipeline completed",
		zap.Int64("records_processed", result.Records),
		zap.Int64("messages", result.Messages),
		zap.Duration("duration", result.Duration),
		zap.Float64("throughput_rps", tracker.GetAndReset()))
	return result, nil
}

// Close releases the destination.
func (p *Pipeline) Close(ctx context.Context) error {
	if p.Destination == nil {
		return nil
	}
	return p.Destination.Close(ctx)
}

type countingSource struct {
	src      destination.MessageSource
	tracker  *metrics.ThroughputTracker
	messages int64
}

func (c *countingSource) Next(ctx context.Context) (*protocol.Message, error) {
	msg, err := c.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	c.messages++
	if msg.Type == protocol.TypeRecord {
		c.tracker.Increment(1)
	}
	return msg, nil
}

// BuildOptions are process-level settings for Build.
type BuildOptions struct {
	Logger *zap.Logger
	// Stdout receives the print destination output.
	Stdout io.Writer
	// TempDir is the parent of the source artifact directories.
	TempDir string
}

// NewSource creates the source driver described by def.
func NewSource(def *config.Definition, opts BuildOptions) (*source.Driver, error) {
	policy, err := source.ParseParsePolicy(def.Source.ParsePolicy)
	if err != nil {
		return nil, err
	}
	cfg := def.Source.Config
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	return source.New(source.Options{
		Executable:  def.Source.Executable,
		DockerImage: def.Source.DockerImage,
		Config:      cfg,
		Policy:      policy,
		Logger:      opts.Logger,
		TempDir:     opts.TempDir,
	})
}

// Build validates def and opens its source and destination.
func Build(ctx context.Context, name string, def *config.Definition, opts BuildOptions) (*Pipeline, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	src, err := NewSource(def, opts)
	if err != nil {
		return nil, err
	}
	dest, err := sinks.Open(ctx, def.Destination.Connector, def.Destination.Config, sinks.Options{
		Logger: opts.Logger,
		Stdout: opts.Stdout,
	})
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Name:        name,
		Source:      src,
		Destination: dest,
		Streams:     def.Source.Streams,
		Logger:      opts.Logger,
	}, nil
}
