// Package sinks builds a destination from its connector name and
// configuration section.
package sinks

import (
	"context"
	"io"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/destination/bigquery"
	"github.com/ajitpratap0/pulsar/pkg/destination/mongodb"
	"github.com/ajitpratap0/pulsar/pkg/destination/objectstore"
	"github.com/ajitpratap0/pulsar/pkg/destination/print"
	"github.com/ajitpratap0/pulsar/pkg/destination/sqlwarehouse"
	"github.com/ajitpratap0/pulsar/pkg/logger"
)

// Options are process-level settings passed to every sink.
type Options struct {
	Logger *zap.Logger
	// Stdout receives the print sink output; os.Stdout when nil.
	Stdout io.Writer
}

// New opens the sink of kind configured by cfg and returns a Loader over it.
func New(ctx context.Context, kind destination.Kind, cfg map[string]interface{}, opts Options) (*destination.Loader, error) {
	log := logger.OrNop(opts.Logger).With(zap.String("destination", string(kind)))

	var common destination.CommonConfig
	if err := destination.DecodeConfig(cfg, &common); err != nil {
		return nil, err
	}

	storage, err := open(ctx, kind, cfg, opts, log)
	if err != nil {
		return nil, err
	}
	log.Info("destination opened", zap.Int("buffer_size_max", common.BufferSizeMax))
	return destination.NewLoader(storage, destination.LoaderOptions{
		BufferSizeMax: common.BufferSizeMax,
		Logger:        log,
	}), nil
}

func open(ctx context.Context, kind destination.Kind, cfg map[string]interface{}, opts Options, log *zap.Logger) (destination.Storage, error) {
	switch kind {
	case destination.KindPrint:
		return print.New(opts.Stdout), nil

	case destination.KindBigQuery:
		var c bigquery.Config
		if err := destination.DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		return bigquery.Open(ctx, c, log)

	case destination.KindSQLWarehouse:
		var c sqlwarehouse.Config
		if err := destination.DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		return sqlwarehouse.Open(ctx, c, log)

	case destination.KindMongoDB:
		var c mongodb.Config
		if err := destination.DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		return mongodb.Open(ctx, c, log)

	case destination.KindObjectStore:
		var c objectstore.Config
		if err := destination.DecodeConfig(cfg, &c); err != nil {
			return nil, err
		}
		return objectstore.Open(ctx, c, log)

	default:
		_, err := destination.ParseKind(string(kind))
		return nil, err
	}
}

// SampleFields returns the annotated configuration entries of kind.
func SampleFields(kind destination.Kind) ([]destination.SampleField, error) {
	switch kind {
	case destination.KindPrint:
		return print.SampleFields(), nil
	case destination.KindBigQuery:
		return bigquery.SampleFields(), nil
	case destination.KindSQLWarehouse:
		return sqlwarehouse.SampleFields(), nil
	case destination.KindMongoDB:
		return mongodb.SampleFields(), nil
	case destination.KindObjectStore:
		return objectstore.SampleFields(), nil
	default:
		_, err := destination.ParseKind(string(kind))
		return nil, err
	}
}

// SampleConfig renders the sample configuration of kind as a YAML mapping.
func SampleConfig(kind destination.Kind) (*yaml.Node, error) {
	fields, err := SampleFields(kind)
	if err != nil {
		return nil, err
	}
	return destination.SampleNode(fields)
}

// Open validates kind and opens it; a convenience for callers holding the
// connector name as text.
func Open(ctx context.Context, connector string, cfg map[string]interface{}, opts Options) (*destination.Loader, error) {
	kind, err := destination.ParseKind(connector)
	if err != nil {
		return nil, err
	}
	return New(ctx, kind, cfg, opts)
}
