// Package bigquery implements the BigQuery destination. Tables are day
// partitioned on the load timestamp and filled with streaming inserts.
package bigquery

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/logger"
)

// Config is the BigQuery destination configuration.
type Config struct {
	destination.CommonConfig
	// Dataset is fully qualified as PROJECT.DATASET.
	Dataset         string `json:"dataset"`
	CredentialsFile string `json:"credentials_file"`
	Location        string `json:"location"`
}

// Target splits Dataset into its project and dataset ids.
func (c Config) Target() (project, dataset string, err error) {
	ref := strings.TrimSpace(strings.ReplaceAll(c.Dataset, "`", ""))
	if ref == "" {
		return "", "", errors.New(errors.ErrorTypeConfig, "dataset argument must be defined")
	}
	parts := strings.Split(ref, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Newf(errors.ErrorTypeConfig, "dataset %q must be like project.dataset", c.Dataset)
	}
	return parts[0], parts[1], nil
}

// Storage writes rows to BigQuery tables of one dataset.
type Storage struct {
	client  *bigquery.Client
	dataset *bigquery.Dataset
	project string
	id      string
	logger  *zap.Logger
}

var _ destination.Storage = (*Storage)(nil)

// Open creates the BigQuery client for cfg.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Storage, error) {
	project, dataset, err := cfg.Target()
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to create BigQuery client")
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}

	return &Storage{
		client:  client,
		dataset: client.Dataset(dataset),
		project: project,
		id:      dataset,
		logger: logger.OrNop(log).With(
			zap.String("component", "bigquery"),
			zap.String("dataset", project+"."+dataset),
		),
	}, nil
}

// Schema is the BigQuery schema of every destination table.
func Schema() bigquery.Schema {
	schema := make(bigquery.Schema, 0, len(destination.Columns))
	for _, c := range destination.Columns {
		schema = append(schema, &bigquery.FieldSchema{
			Name:        c.Name,
			Type:        fieldType(c.Type),
			Description: c.Description,
			Required:    !c.Nullable,
		})
	}
	return schema
}

func fieldType(t destination.ColumnType) bigquery.FieldType {
	switch t {
	case destination.ColumnTypeTimestamp:
		return bigquery.TimestampFieldType
	case destination.ColumnTypeJSON:
		return bigquery.JSONFieldType
	default:
		return bigquery.StringFieldType
	}
}

// TableMetadata returns the metadata table is created with.
func TableMetadata(table string) *bigquery.TableMetadata {
	return &bigquery.TableMetadata{
		Description: fmt.Sprintf("%s records ingested by pulsar", table),
		Schema:      Schema(),
		TimePartitioning: &bigquery.TimePartitioning{
			Field: destination.ColumnLoadedAt,
			Type:  bigquery.DayPartitioningType,
		},
	}
}

// CreateTable implements destination.Storage.
func (s *Storage) CreateTable(ctx context.Context, table string) error {
	err := s.dataset.Table(table).Create(ctx, TableMetadata(table))
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return errors.Wrapf(err, errors.ErrorTypeDestination, "failed to create table %s", table)
	}
	s.logger.Debug("table ready", zap.String("table", table))
	return nil
}

// saver adapts a Row to bigquery.ValueSaver. The row id doubles as the
// insert id so retried inserts are deduplicated.
type saver destination.Row

func (r saver) Save() (map[string]bigquery.Value, string, error) {
	values := map[string]bigquery.Value{
		destination.ColumnRawID:          r.RawID,
		destination.ColumnJobStartedAt:   r.JobStartedAt,
		destination.ColumnSliceStartedAt: r.SliceStartedAt,
		destination.ColumnLoadedAt:       r.LoadedAt,
		destination.ColumnData:           string(r.Data),
	}
	if r.ExtractedAt != nil {
		values[destination.ColumnExtractedAt] = *r.ExtractedAt
	}
	return values, r.RawID, nil
}

// WriteRows implements destination.Storage.
func (s *Storage) WriteRows(ctx context.Context, table string, rows []destination.Row) error {
	if len(rows) == 0 {
		return nil
	}
	savers := make([]bigquery.ValueSaver, len(rows))
	for i, row := range rows {
		savers[i] = saver(row)
	}
	if err := s.dataset.Table(table).Inserter().Put(ctx, savers); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeDestination, "could not insert rows to BigQuery table %s", table)
	}
	return nil
}

// StatesQuery returns the newest-first checkpoint query.
func (s *Storage) StatesQuery() string {
	return fmt.Sprintf(
		"SELECT TO_JSON_STRING(%s) AS data FROM `%s.%s.%s` ORDER BY %s DESC",
		destination.ColumnData, s.project, s.id, destination.StatesTable, destination.ColumnLoadedAt,
	)
}

// GetState implements destination.Storage. A missing states table reads as
// no checkpoint.
func (s *Storage) GetState(ctx context.Context) (json.RawMessage, error) {
	it, err := s.client.Query(s.StatesQuery()).Read(ctx)
	if err != nil {
		if hasStatus(err, http.StatusNotFound) {
			return json.RawMessage(json.EmptyObject), nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to query states")
	}

	var payloads []json.RawMessage
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to read states")
		}
		if len(row) == 0 {
			continue
		}
		if data, ok := row[0].(string); ok {
			payloads = append(payloads, json.RawMessage(data))
		}
	}
	return destination.ResolveNewestFirst(payloads), nil
}

// Close implements destination.Storage.
func (s *Storage) Close(context.Context) error {
	if err := s.client.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to close BigQuery client")
	}
	return nil
}

func hasStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// SampleFields returns the annotated sample configuration.
func SampleFields() []destination.SampleField {
	return append(destination.CommonSampleFields(),
		destination.SampleField{Name: "dataset", Value: "", Comment: "REQUIRED | string | Destination dataset. Must be fully qualified with project like `PROJECT.DATASET`"},
		destination.SampleField{Name: "credentials_file", Value: "", Comment: "OPTIONAL | string | service account key file (defaults to application default credentials)"},
		destination.SampleField{Name: "location", Value: "", Comment: "OPTIONAL | string | job location such as EU or US"},
	)
}
