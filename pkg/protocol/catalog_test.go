package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
)

const discovered = `{"streams":[
	{"name":"users","json_schema":{"type":"object"},"supported_sync_modes":["full_refresh","incremental"],"default_cursor_field":["updated_at"],"x-vendor":true},
	{"name":"orders","json_schema":{"type":"object"},"supported_sync_modes":["full_refresh"]}
]}`

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	var c Catalog
	require.NoError(t, json.Unmarshal([]byte(discovered), &c))
	return &c
}

func TestBuildConfiguredCatalogAllStreams(t *testing.T) {
	configured, err := BuildConfiguredCatalog(testCatalog(t), nil)
	require.NoError(t, err)
	require.Len(t, configured.Streams, 2)

	users := configured.Streams[0]
	assert.Equal(t, "users", users.Stream.Name)
	assert.Equal(t, SyncModeIncremental, users.SyncMode)
	assert.Equal(t, DestinationSyncModeAppend, users.DestinationSyncMode)
	assert.Equal(t, []string{"updated_at"}, users.CursorField)

	orders := configured.Streams[1]
	assert.Equal(t, SyncModeFullRefresh, orders.SyncMode)
	assert.Equal(t, []string{}, orders.CursorField)
}

func TestBuildConfiguredCatalogSelection(t *testing.T) {
	configured, err := BuildConfiguredCatalog(testCatalog(t), []string{" orders ", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, configured.StreamNames())
}

func TestBuildConfiguredCatalogUnknownStream(t *testing.T) {
	_, err := BuildConfiguredCatalog(testCatalog(t), []string{"users", "invoices", "accounts"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	assert.Contains(t, err.Error(), "accounts, invoices")

	available, ok := errors.Detail(err, "available")
	require.True(t, ok)
	assert.Equal(t, []string{"users", "orders"}, available)
}

func TestConfiguredCatalogKeepsStreamVerbatim(t *testing.T) {
	configured, err := BuildConfiguredCatalog(testCatalog(t), []string{"users"})
	require.NoError(t, err)

	out, err := json.Marshal(configured)
	require.NoError(t, err)

	var decoded struct {
		Streams []struct {
			Stream              map[string]interface{} `json:"stream"`
			SyncMode            string                 `json:"sync_mode"`
			DestinationSyncMode string                 `json:"destination_sync_mode"`
			CursorField         []string               `json:"cursor_field"`
		} `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded.Streams, 1)
	assert.Equal(t, true, decoded.Streams[0].Stream["x-vendor"])
	assert.Equal(t, "incremental", decoded.Streams[0].SyncMode)
	assert.Equal(t, "append", decoded.Streams[0].DestinationSyncMode)
}

func TestEmptyCursorFieldSerializesAsArray(t *testing.T) {
	configured, err := BuildConfiguredCatalog(testCatalog(t), []string{"orders"})
	require.NoError(t, err)
	out, err := json.Marshal(configured.Streams[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"cursor_field":[]`)
}

func TestParseStreamSelection(t *testing.T) {
	assert.Equal(t, []string{"users", "orders"}, ParseStreamSelection(" users, orders ,,"))
	assert.Nil(t, ParseStreamSelection(""))
}
