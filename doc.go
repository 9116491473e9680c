// Package pulsar is an extract-load tool for sources speaking the Airbyte
// protocol.
//
// A source connector is an external program, run directly or as a Docker
// image, that answers spec, check, discover and read actions with a stream
// of newline-delimited JSON messages. Pulsar drives that program, turns its
// output into typed messages and replays them into a destination: records
// land in one raw table per stream, checkpoints in a states table, and every
// run resumes from the last checkpoint the destination holds.
//
// # Architecture
//
// The extract-load core has two halves joined by a pull-based stream:
//
//	pkg/source       - runs the connector process and yields protocol messages
//	pkg/destination  - buffers records per table and flushes on checkpoints
//
// internal/pipeline wires them together for one run. There is no concurrency
// inside a run: the loader asks for the next message only after it is done
// with the current one, so the connector is throttled by its output pipe.
//
// # Quick Start
//
//	def, _ := conn.Definition()
//	p, err := pipeline.Build(ctx, "faker", def, pipeline.BuildOptions{Logger: log})
//	if err != nil {
//		return err
//	}
//	defer p.Close(ctx)
//	result, err := p.Run(ctx)
//
// # Key Packages
//
//	pkg/protocol     - message model, catalogs, sample configuration builder
//	pkg/source       - source driver and launchers
//	pkg/destination  - loader, storage contract and sinks
//	pkg/compression  - codecs for object store payloads
//	pkg/config       - connection documents and the connection store
//	pkg/errors       - structured error kinds
//	pkg/logger       - structured logging
//	pkg/metrics      - Prometheus collectors
//	pkg/observability - OpenTelemetry tracing
//
// # Destinations
//
//   - print: rows written to standard output
//   - bigquery: streaming inserts into day-partitioned tables
//   - sqlwarehouse: sqlite, PostgreSQL, MySQL, Snowflake and SQL Server
//   - mongodb: one collection per table
//   - objectstore: compressed JSONL objects on GCS or S3
package pulsar
