// Package mongodb implements a destination writing one collection per
// table to a MongoDB database.
package mongodb

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/logger"
)

// namespaceExists is the server code returned when a collection already exists.
const namespaceExists = 48

// Config is the MongoDB destination configuration.
type Config struct {
	destination.CommonConfig
	URI      string `json:"uri"`
	Database string `json:"database"`
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URI) == "" {
		return errors.New(errors.ErrorTypeConfig, "mongodb destination requires a uri")
	}
	if strings.TrimSpace(c.Database) == "" {
		return errors.New(errors.ErrorTypeConfig, "mongodb destination requires a database")
	}
	return nil
}

// Storage writes rows as documents.
type Storage struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

var _ destination.Storage = (*Storage)(nil)

// Open connects to the server and verifies it answers.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Storage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to connect to mongodb")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to ping mongodb")
	}
	return &Storage{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger.OrNop(log).With(zap.String("component", "mongodb"), zap.String("database", cfg.Database)),
	}, nil
}

// CreateTable implements destination.Storage. The states collection also
// gets a descending index on the load timestamp.
func (s *Storage) CreateTable(ctx context.Context, table string) error {
	if err := s.db.CreateCollection(ctx, table); err != nil && !isNamespaceExists(err) {
		return errors.Wrapf(err, errors.ErrorTypeDestination, "failed to create collection %s", table)
	}
	if table == destination.StatesTable {
		_, err := s.db.Collection(table).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: destination.ColumnLoadedAt, Value: -1}},
		})
		if err != nil {
			return errors.Wrapf(err, errors.ErrorTypeDestination, "failed to index collection %s", table)
		}
	}
	s.logger.Debug("collection ready", zap.String("collection", table))
	return nil
}

func isNamespaceExists(err error) bool {
	var cmdErr mongo.CommandError
	return errors.As(err, &cmdErr) && cmdErr.Code == namespaceExists
}

// document converts a row to BSON. The data column keeps the JSON text
// verbatim.
func document(row destination.Row) bson.D {
	var extracted interface{}
	if row.ExtractedAt != nil {
		extracted = *row.ExtractedAt
	}
	return bson.D{
		{Key: "_id", Value: row.RawID},
		{Key: destination.ColumnRawID, Value: row.RawID},
		{Key: destination.ColumnJobStartedAt, Value: row.JobStartedAt},
		{Key: destination.ColumnSliceStartedAt, Value: row.SliceStartedAt},
		{Key: destination.ColumnExtractedAt, Value: extracted},
		{Key: destination.ColumnLoadedAt, Value: row.LoadedAt},
		{Key: destination.ColumnData, Value: string(row.Data)},
	}
}

// WriteRows implements destination.Storage.
func (s *Storage) WriteRows(ctx context.Context, table string, rows []destination.Row) error {
	if len(rows) == 0 {
		return nil
	}
	docs := make([]interface{}, len(rows))
	for i, row := range rows {
		docs[i] = document(row)
	}
	if _, err := s.db.Collection(table).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeDestination, "failed to insert into %s", table)
	}
	return nil
}

// GetState implements destination.Storage.
func (s *Storage) GetState(ctx context.Context) (json.RawMessage, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: destination.ColumnLoadedAt, Value: -1}}).
		SetProjection(bson.D{{Key: destination.ColumnData, Value: 1}})
	cur, err := s.db.Collection(destination.StatesTable).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to query states")
	}
	defer cur.Close(ctx)

	var payloads []json.RawMessage
	for cur.Next(ctx) {
		var doc struct {
			Data string `bson:"_airbyte_data"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to decode state document")
		}
		payloads = append(payloads, json.RawMessage(doc.Data))
	}
	if err := cur.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDestination, "failed to read states")
	}
	return destination.ResolveNewestFirst(payloads), nil
}

// Close implements destination.Storage.
func (s *Storage) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to disconnect from mongodb")
	}
	return nil
}

// SampleFields returns the annotated sample configuration.
func SampleFields() []destination.SampleField {
	return append(destination.CommonSampleFields(),
		destination.SampleField{Name: "uri", Value: "mongodb://localhost:27017", Comment: "REQUIRED | string | connection string"},
		destination.SampleField{Name: "database", Value: "", Comment: "REQUIRED | string | database receiving one collection per table"},
	)
}
