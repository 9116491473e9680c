// Package destination defines the destination contract and the Loader that
// replays a protocol message stream into a sink.
//
// A sink only implements Storage: create a table if it is absent, append
// rows, and read back the checkpoint. The Loader owns buffering, flush
// boundaries, row stamping and table memoization, so every sink gets the
// same checkpoint durability guarantee: all records emitted before a STATE
// message are written before the state row is.
package destination

import (
	"context"
	"strings"
	"time"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
)

// Table names.
const (
	RecordTablePrefix = "_airbyte_raw_"
	StatesTable       = "_airbyte_states"
	LogsTable         = "_airbyte_logs"
)

// RecordTable returns the table holding the records of stream.
func RecordTable(stream string) string {
	return RecordTablePrefix + stream
}

// Column names of every destination table.
const (
	ColumnRawID          = "_airbyte_raw_id"
	ColumnJobStartedAt   = "_airbyte_job_started_at"
	ColumnSliceStartedAt = "_airbyte_slice_started_at"
	ColumnExtractedAt    = "_airbyte_extracted_at"
	ColumnLoadedAt       = "_airbyte_loaded_at"
	ColumnData           = "_airbyte_data"
)

// ColumnType is the logical type of a destination column.
type ColumnType string

const (
	ColumnTypeString    ColumnType = "string"
	ColumnTypeTimestamp ColumnType = "timestamp"
	ColumnTypeJSON      ColumnType = "json"
)

// Column describes one column of the fixed destination schema.
type Column struct {
	Name        string
	Type        ColumnType
	Description string
	Nullable    bool
}

// Columns is the schema shared by record, state and log tables.
var Columns = []Column{
	{ColumnRawID, ColumnTypeString, "Record uuid generated at ingestion", false},
	{ColumnJobStartedAt, ColumnTypeTimestamp, "Extract-load job start timestamp", false},
	{ColumnSliceStartedAt, ColumnTypeTimestamp, "When incremental mode is used, data records are emitted by chunks a.k.a. slices. At the end of each slice, a state record is emitted to store a checkpoint. This column stores the timestamp when the slice started", false},
	{ColumnExtractedAt, ColumnTypeTimestamp, "Record extract timestamp from source", true},
	{ColumnLoadedAt, ColumnTypeTimestamp, "Record ingestion timestamp", false},
	{ColumnData, ColumnTypeJSON, "Record data as json", false},
}

// Row is one stamped destination row. All timestamps are UTC.
type Row struct {
	RawID          string
	JobStartedAt   time.Time
	SliceStartedAt time.Time
	ExtractedAt    *time.Time
	LoadedAt       time.Time
	Data           json.RawMessage
}

// Map returns the row keyed by column name with RFC 3339 timestamps and
// the data column as JSON text.
func (r Row) Map() map[string]interface{} {
	m := map[string]interface{}{
		ColumnRawID:          r.RawID,
		ColumnJobStartedAt:   FormatTime(r.JobStartedAt),
		ColumnSliceStartedAt: FormatTime(r.SliceStartedAt),
		ColumnExtractedAt:    nil,
		ColumnLoadedAt:       FormatTime(r.LoadedAt),
		ColumnData:           string(r.Data),
	}
	if r.ExtractedAt != nil {
		m[ColumnExtractedAt] = FormatTime(*r.ExtractedAt)
	}
	return m
}

// FormatTime renders t the way every sink stores timestamps as text.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Storage is the capability a sink provides to the Loader.
type Storage interface {
	// CreateTable creates table with the fixed schema if it does not exist.
	CreateTable(ctx context.Context, table string) error
	// WriteRows appends rows to table.
	WriteRows(ctx context.Context, table string, rows []Row) error
	// GetState returns the latest checkpoint, or an empty object.
	GetState(ctx context.Context) (json.RawMessage, error)
	// Close releases client resources.
	Close(ctx context.Context) error
}

// MessageSource is a pull-based stream of protocol messages; it returns
// io.EOF after the last one.
type MessageSource interface {
	Next(ctx context.Context) (*protocol.Message, error)
}

// Destination is what the orchestrator runs against.
type Destination interface {
	GetState(ctx context.Context) (json.RawMessage, error)
	Load(ctx context.Context, messages MessageSource) error
	Close(ctx context.Context) error
}

// Kind selects a destination implementation.
type Kind string

const (
	KindPrint        Kind = "print"
	KindBigQuery     Kind = "bigquery"
	KindSQLWarehouse Kind = "sqlwarehouse"
	KindMongoDB      Kind = "mongodb"
	KindObjectStore  Kind = "objectstore"
)

// Kinds lists every destination kind.
func Kinds() []Kind {
	return []Kind{KindPrint, KindBigQuery, KindSQLWarehouse, KindMongoDB, KindObjectStore}
}

// ParseKind validates a connector name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == strings.TrimSpace(s) {
			return k, nil
		}
	}
	names := make([]string, 0, len(Kinds()))
	for _, k := range Kinds() {
		names = append(names, string(k))
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "destination connector %q is not supported, must be one of %s", s, strings.Join(names, ", "))
}
