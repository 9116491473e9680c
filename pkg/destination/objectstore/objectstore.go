// Package objectstore implements a destination writing each flushed batch
// as a JSON lines object to GCS or S3.
//
// Layout under the configured prefix:
//
//	<table>/_schema.json
//	<table>/<loaded_at>-<uuid>.jsonl[.gz|.zst|.lz4|.s2]
//
// Object names sort by load time, which is what GetState relies on.
package objectstore

import (
	"bufio"
	"bytes"
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pulsar/pkg/compression"
	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/logger"
)

const (
	ProviderGCS = "gcs"
	ProviderS3  = "s3"

	schemaObject  = "_schema.json"
	keyTimeLayout = "20060102T150405.000000000Z"
)

// Config is the object store destination configuration.
type Config struct {
	destination.CommonConfig
	Provider        string `json:"provider"`
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix"`
	Compression     string `json:"compression"`
	CredentialsFile string `json:"credentials_file"`
	Region          string `json:"region"`
	Endpoint        string `json:"endpoint"`
	PathStyle       bool   `json:"path_style"`
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGCS, ProviderS3:
	default:
		return errors.Newf(errors.ErrorTypeConfig, "objectstore provider %q must be gcs or s3", c.Provider)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New(errors.ErrorTypeConfig, "objectstore destination requires a bucket")
	}
	_, err := compression.ParseAlgorithm(c.Compression)
	return err
}

// Open connects to the bucket described by cfg.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	algorithm, _ := compression.ParseAlgorithm(cfg.Compression)
	codec, err := compression.NewCodec(algorithm, compression.Default)
	if err != nil {
		return nil, err
	}

	var bucket Bucket
	switch cfg.Provider {
	case ProviderGCS:
		bucket, err = NewGCSBucket(ctx, cfg.Bucket, cfg.CredentialsFile)
	case ProviderS3:
		bucket, err = NewS3Bucket(ctx, cfg.Bucket, S3Options{Region: cfg.Region, Endpoint: cfg.Endpoint, PathStyle: cfg.PathStyle})
	}
	if err != nil {
		return nil, err
	}
	return New(bucket, cfg.Prefix, codec, log), nil
}

// Storage writes rows as objects in a Bucket.
type Storage struct {
	bucket Bucket
	prefix string
	codec  compression.Codec
	logger *zap.Logger
	newID  func() string
}

var _ destination.Storage = (*Storage)(nil)

// New creates a Storage over bucket. A nil codec stores plain JSON lines.
func New(bucket Bucket, prefix string, codec compression.Codec, log *zap.Logger) *Storage {
	if codec == nil {
		codec, _ = compression.NewCodec(compression.None, compression.Default)
	}
	return &Storage{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		codec:  codec,
		logger: logger.OrNop(log).With(zap.String("component", "objectstore"), zap.String("compression", string(codec.Algorithm()))),
		newID:  func() string { return uuid.New().String() },
	}
}

func (s *Storage) key(parts ...string) string {
	if s.prefix != "" {
		parts = append([]string{s.prefix}, parts...)
	}
	return path.Join(parts...)
}

// CreateTable implements destination.Storage by writing the table's schema
// marker.
func (s *Storage) CreateTable(ctx context.Context, table string) error {
	data, err := json.Marshal(destination.Columns)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode schema")
	}
	if err := s.bucket.Put(ctx, s.key(table, schemaObject), data, "application/json"); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeDestination, "failed to create table %s", table)
	}
	return nil
}

// ObjectKey returns the name of a batch loaded at loadedAt.
func (s *Storage) ObjectKey(table string, loadedAt time.Time, id string) string {
	return s.key(table, loadedAt.UTC().Format(keyTimeLayout)+"-"+id+".jsonl"+s.codec.Extension())
}

// WriteRows implements destination.Storage. Each call produces one object.
func (s *Storage) WriteRows(ctx context.Context, table string, rows []destination.Row) error {
	if len(rows) == 0 {
		return nil
	}
	var buf bytes.Buffer
	w, err := s.codec.NewWriter(&buf)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create compressor")
	}
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row.Map()); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, "failed to encode row")
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to compress rows")
	}

	key := s.ObjectKey(table, rows[0].LoadedAt, s.newID())
	if err := s.bucket.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeDestination, "failed to upload %s", key)
	}
	s.logger.Debug("object written", zap.String("key", key), zap.Int("rows", len(rows)), zap.Int("bytes", buf.Len()))
	return nil
}

// GetState implements destination.Storage.
func (s *Storage) GetState(ctx context.Context) (json.RawMessage, error) {
	keys, err := s.bucket.List(ctx, s.key(destination.StatesTable)+"/")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to list states")
	}

	var payloads []json.RawMessage
	for i := len(keys) - 1; i >= 0; i-- {
		if path.Base(keys[i]) == schemaObject {
			continue
		}
		rows, err := s.readObject(ctx, keys[i])
		if err != nil {
			return nil, err
		}
		for j := len(rows) - 1; j >= 0; j-- {
			payloads = append(payloads, rows[j])
		}
	}
	return destination.ResolveNewestFirst(payloads), nil
}

// readObject returns the data column of every line of key in order.
func (s *Storage) readObject(ctx context.Context, key string) ([]json.RawMessage, error) {
	raw, err := s.bucket.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeDestination, "failed to download %s", key)
	}
	r, err := compression.ForExtension(key).NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeDestination, "failed to decompress %s", key)
	}
	defer r.Close()

	var out []json.RawMessage
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 128*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var row struct {
			Data string `json:"_airbyte_data"`
		}
		if err := json.Unmarshal(line, &row); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeDestination, "malformed row in %s", key)
		}
		out = append(out, json.RawMessage(row.Data))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeDestination, "failed to read %s", key)
	}
	return out, nil
}

// Close implements destination.Storage.
func (s *Storage) Close(context.Context) error {
	if err := s.bucket.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to close bucket client")
	}
	return nil
}

// SampleFields returns the annotated sample configuration.
func SampleFields() []destination.SampleField {
	return append(destination.CommonSampleFields(),
		destination.SampleField{Name: "provider", Value: ProviderGCS, Comment: "REQUIRED | string | gcs or s3"},
		destination.SampleField{Name: "bucket", Value: "", Comment: "REQUIRED | string | destination bucket"},
		destination.SampleField{Name: "prefix", Value: "pulsar", Comment: "OPTIONAL | string | key prefix of every object"},
		destination.SampleField{Name: "compression", Value: string(compression.Gzip), Comment: "OPTIONAL | string | none, gzip, zstd, lz4 or s2"},
		destination.SampleField{Name: "credentials_file", Value: "", Comment: "OPTIONAL | string | GCS service account key file"},
		destination.SampleField{Name: "region", Value: "", Comment: "OPTIONAL | string | S3 region"},
		destination.SampleField{Name: "endpoint", Value: "", Comment: "OPTIONAL | string | S3-compatible endpoint url"},
	)
}
