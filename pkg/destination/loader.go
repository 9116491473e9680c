package destination

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/logger"
	"github.com/ajitpratap0/pulsar/pkg/metrics"
	"github.com/ajitpratap0/pulsar/pkg/observability"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
)

// DefaultBufferSizeMax is the record count above which a buffer is flushed.
const DefaultBufferSizeMax = 10000

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	BufferSizeMax int
	Logger        *zap.Logger
	// Now and NewID replace the clock and row id generator in tests.
	Now   func() time.Time
	NewID func() string
}

// Loader implements Destination on top of a Storage. Tables created by one
// Load are remembered for later loads on the same Loader. Load calls must
// not run concurrently.
type Loader struct {
	storage       Storage
	bufferSizeMax int
	logger        *zap.Logger
	now           func() time.Time
	newID         func() string

	created map[string]bool
}

var _ Destination = (*Loader)(nil)

// NewLoader creates a Loader writing to storage.
func NewLoader(storage Storage, opts LoaderOptions) *Loader {
	if opts.BufferSizeMax <= 0 {
		opts.BufferSizeMax = DefaultBufferSizeMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	return &Loader{
		storage:       storage,
		bufferSizeMax: opts.BufferSizeMax,
		logger:        logger.OrNop(opts.Logger).With(zap.String("component", "loader")),
		now:           func() time.Time { return opts.Now().UTC() },
		newID:         opts.NewID,
		created:       make(map[string]bool),
	}
}

// Storage returns the underlying storage.
func (l *Loader) Storage() Storage {
	return l.storage
}

// GetState returns the latest persisted checkpoint, or {} when there is none.
func (l *Loader) GetState(ctx context.Context) (json.RawMessage, error) {
	state, err := l.storage.GetState(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to read checkpoint")
	}
	if len(state) == 0 || string(state) == "null" {
		return json.RawMessage(json.EmptyObject), nil
	}
	return state, nil
}

// Close closes the storage.
func (l *Loader) Close(ctx context.Context) error {
	return l.storage.Close(ctx)
}

// load is the state of one Load call. Nothing in it outlives the call.
type load struct {
	*Loader
	jobStartedAt   time.Time
	sliceStartedAt time.Time
	stream         string
	open           bool
	buffer         []Row
}

// Load consumes messages until io.EOF. Records are buffered per stream and
// flushed when the stream changes, when the buffer grows past the
// configured maximum, before every STATE row, and at the end. LOG and
// TRACE messages are written to the logs table as they arrive. Errors from
// messages are returned unchanged; storage failures are destination errors.
func (l *Loader) Load(ctx context.Context, messages MessageSource) error {
	started := l.now()
	run := &load{Loader: l, jobStartedAt: started, sliceStartedAt: started}
	count := 0

	for {
		msg, err := messages.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		count++

		switch msg.Type {
		case protocol.TypeRecord:
			if err := run.record(ctx, msg.Record); err != nil {
				return err
			}
		case protocol.TypeState:
			if err := run.checkpoint(ctx, msg.State); err != nil {
				return err
			}
		case protocol.TypeLog:
			if err := run.write(ctx, LogsTable, []Row{run.row(msg.Log.Payload, nil)}, metrics.ReasonDiagnostic); err != nil {
				return err
			}
		case protocol.TypeTrace:
			if err := run.write(ctx, LogsTable, []Row{run.row(msg.Trace.Payload, msg.Trace.ExtractedAt())}, metrics.ReasonDiagnostic); err != nil {
				return err
			}
		case protocol.TypeControl:
			// ignored
		default:
			return errors.Wrap(
				errors.Newf(errors.ErrorTypeCapability, "message type %s is not managed", msg.Type),
				errors.ErrorTypeDestination, "cannot load message",
			).WithDetail("line", string(msg.Raw))
		}
	}

	if err := run.flush(ctx, metrics.ReasonEndOfStream); err != nil {
		return err
	}
	l.logger.Debug("load finished", zap.Int("messages", count), zap.Duration("duration", l.now().Sub(started)))
	return nil
}

func (r *load) record(ctx context.Context, rec *protocol.Record) error {
	// An empty stream name is still a stream of its own.
	if !r.open || rec.Stream != r.stream {
		if r.open {
			if err := r.flush(ctx, metrics.ReasonStreamChange); err != nil {
				return err
			}
			r.sliceStartedAt = r.now()
		}
		r.stream, r.open = rec.Stream, true
	}

	r.buffer = append(r.buffer, r.row(rec.Data, rec.ExtractedAt()))
	if len(r.buffer) > r.bufferSizeMax {
		return r.flush(ctx, metrics.ReasonBufferFull)
	}
	return nil
}

func (r *load) checkpoint(ctx context.Context, state *protocol.State) error {
	if err := r.flush(ctx, metrics.ReasonCheckpoint); err != nil {
		return err
	}
	if err := r.write(ctx, StatesTable, []Row{r.row(state.Payload, nil)}, metrics.ReasonCheckpoint); err != nil {
		return err
	}
	r.sliceStartedAt = r.now()

	metrics.CheckpointsTotal.Inc()
	r.logger.Info("checkpoint persisted", zap.String("stream", r.stream))
	return nil
}

// flush writes the open buffer, if any, to the current stream's table.
func (r *load) flush(ctx context.Context, reason string) error {
	if len(r.buffer) == 0 {
		return nil
	}
	rows := r.buffer
	r.buffer = nil
	return r.write(ctx, RecordTable(r.stream), rows, reason)
}

func (r *load) row(data json.RawMessage, extractedAt *time.Time) Row {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Row{
		RawID:          r.newID(),
		JobStartedAt:   r.jobStartedAt,
		SliceStartedAt: r.sliceStartedAt,
		ExtractedAt:    extractedAt,
		Data:           data,
	}
}

// write materializes table on first use and appends rows stamped with the
// load time.
func (l *Loader) write(ctx context.Context, table string, rows []Row, reason string) (err error) {
	ctx, span := observability.StartSpan(ctx, "destination.flush",
		attribute.String("table", table),
		attribute.Int("rows", len(rows)),
		attribute.String("reason", reason),
	)
	defer func() { observability.EndSpan(span, err) }()

	if !l.created[table] {
		if err := l.storage.CreateTable(ctx, table); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, "failed to create table").WithDetail("table", table)
		}
		l.created[table] = true
	}

	loadedAt := l.now()
	for i := range rows {
		rows[i].LoadedAt = loadedAt
	}

	timer := metrics.NewTimer()
	if err := l.storage.WriteRows(ctx, table, rows); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to write rows").
			WithDetail("table", table).
			WithDetail("rows", len(rows))
	}
	metrics.FlushLatency.WithLabelValues(table).Observe(timer.Stop().Seconds())
	metrics.RowsFlushed.WithLabelValues(table).Add(float64(len(rows)))
	metrics.FlushesTotal.WithLabelValues(reason).Inc()

	l.logger.Debug("flushed rows", zap.String("table", table), zap.Int("rows", len(rows)), zap.String("reason", reason))
	return nil
}
