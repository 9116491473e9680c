// Package metrics provides Prometheus instrumentation for Pulsar runs.
//
// # Overview
//
// Every metric is registered on Registry rather than the Prometheus default
// registry, so embedding Pulsar in another process does not collide with
// the host's collectors. Serve them with Handler:
//
//	http.Handle("/metrics", metrics.Handler())
//
// # Basic Usage
//
//	metrics.MessagesRead.WithLabelValues("RECORD").Inc()
//
//	timer := metrics.NewTimer()
//	flush(rows)
//	metrics.FlushLatency.WithLabelValues(table).Observe(timer.Stop().Seconds())
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every Pulsar collector.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Flush reasons used as the `reason` label of FlushesTotal.
const (
	ReasonStreamChange = "stream_change"
	ReasonBufferFull   = "buffer_full"
	ReasonCheckpoint   = "checkpoint"
	ReasonEndOfStream  = "end_of_stream"
	ReasonDiagnostic   = "diagnostic"
)

var (
	// MessagesRead counts protocol messages yielded by source drivers.
	// Labels: type (RECORD, STATE, LOG, TRACE, ...)
	MessagesRead = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsar_messages_read_total",
			Help: "Total number of protocol messages read from sources",
		},
		[]string{"type"},
	)

	// NoiseLines counts non-protocol stdout lines seen under the lenient policy.
	NoiseLines = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsar_noise_lines_total",
			Help: "Total number of non-protocol lines read from sources",
		},
	)

	// RowsFlushed counts rows written to destination tables.
	// Labels: table
	RowsFlushed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsar_rows_flushed_total",
			Help: "Total number of rows flushed to destination tables",
		},
		[]string{"table"},
	)

	// FlushesTotal counts flush operations by trigger.
	// Labels: reason (stream_change, buffer_full, checkpoint, end_of_stream, diagnostic)
	FlushesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsar_flushes_total",
			Help: "Total number of buffer flushes",
		},
		[]string{"reason"},
	)

	// FlushLatency tracks how long a single storage write takes, in seconds.
	// Labels: table
	FlushLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsar_flush_latency_seconds",
			Help:    "Latency of destination writes in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"table"},
	)

	// CheckpointsTotal counts persisted checkpoints.
	CheckpointsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsar_checkpoints_total",
			Help: "Total number of checkpoints persisted",
		},
	)

	// RunsTotal counts pipeline runs by outcome.
	// Labels: connection, status (success/failure)
	RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsar_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"connection", "status"},
	)

	// Throughput tracks records per second of the last completed run.
	// Labels: connection
	Throughput = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pulsar_throughput_records_per_second",
			Help: "Records per second of the last completed run",
		},
		[]string{"connection"},
	)
)

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Timer measures a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer started. It may be called
// more than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker counts records for one connection and publishes the
// rate to Throughput. Safe for concurrent use.
type ThroughputTracker struct {
	mu         sync.Mutex
	count      int64
	lastReset  time.Time
	connection string
}

// NewThroughputTracker creates a tracker labelled with connection.
func NewThroughputTracker(connection string) *ThroughputTracker {
	return &ThroughputTracker{lastReset: time.Now(), connection: connection}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// Count returns the records counted since the last reset.
func (t *ThroughputTracker) Count() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// GetAndReset publishes and returns the records-per-second rate since the
// last reset, then starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}
	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.connection).Set(throughput)
	return throughput
}
