package mongodb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
)

func TestDocument(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := document(destination.Row{
		RawID:          "id-1",
		JobStartedAt:   now,
		SliceStartedAt: now,
		LoadedAt:       now,
		Data:           json.RawMessage(`{"a":1}`),
	})

	m := doc.Map()
	assert.Equal(t, "id-1", m["_id"])
	assert.Equal(t, "id-1", m[destination.ColumnRawID])
	assert.Nil(t, m[destination.ColumnExtractedAt])
	assert.Equal(t, `{"a":1}`, m[destination.ColumnData])
	assert.Len(t, doc, len(destination.Columns)+1)
}

func TestIsNamespaceExists(t *testing.T) {
	assert.True(t, isNamespaceExists(mongo.CommandError{Code: 48, Name: "NamespaceExists"}))
	assert.True(t, isNamespaceExists(fmt.Errorf("create: %w", mongo.CommandError{Code: 48})))
	assert.False(t, isNamespaceExists(mongo.CommandError{Code: 13}))
	assert.False(t, isNamespaceExists(fmt.Errorf("boom")))
}

func TestConfigValidate(t *testing.T) {
	for _, cfg := range []Config{{}, {URI: "mongodb://localhost"}, {Database: "raw"}} {
		err := cfg.Validate()
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	}
	ok := Config{URI: "mongodb://localhost", Database: "raw"}
	assert.NoError(t, ok.Validate())
}

// TestMongoDBRoundTrip runs against a live server named by
// PULSAR_TEST_MONGODB_URI.
func TestMongoDBRoundTrip(t *testing.T) {
	uri := os.Getenv("PULSAR_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("PULSAR_TEST_MONGODB_URI not set")
	}
	ctx := context.Background()
	database := fmt.Sprintf("pulsar_test_%d", time.Now().UnixNano())

	s, err := Open(ctx, Config{URI: uri, Database: database}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(ctx)
		_ = s.Close(ctx)
	})

	loader := destination.NewLoader(s, destination.LoaderOptions{Logger: zaptest.NewLogger(t)})
	src := &destination.SliceSource{}
	for _, line := range []string{
		`{"type":"RECORD","record":{"stream":"users","data":{"id":1}}}`,
		`{"type":"STATE","state":{"data":{"cursor":1}}}`,
		`{"type":"RECORD","record":{"stream":"users","data":{"id":2}}}`,
		`{"type":"STATE","state":{"data":{"cursor":2}}}`,
	} {
		msg, err := protocol.Decode([]byte(line))
		require.NoError(t, err)
		src.Messages = append(src.Messages, msg)
	}
	require.NoError(t, loader.Load(ctx, src))
	require.NoError(t, s.CreateTable(ctx, "_airbyte_raw_users"), "existing collections are accepted")

	n, err := s.db.Collection("_airbyte_raw_users").CountDocuments(ctx, map[string]interface{}{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	state, err := loader.GetState(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cursor":2}`, string(state))
}
