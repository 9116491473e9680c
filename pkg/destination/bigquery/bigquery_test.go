package bigquery

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
)

func TestConfigTarget(t *testing.T) {
	tests := []struct {
		dataset string
		project string
		id      string
		wantErr bool
	}{
		{dataset: "my-project.raw", project: "my-project", id: "raw"},
		{dataset: " `my-project.raw` ", project: "my-project", id: "raw"},
		{dataset: "", wantErr: true},
		{dataset: "raw", wantErr: true},
		{dataset: "a.b.c", wantErr: true},
		{dataset: ".raw", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.dataset, func(t *testing.T) {
			project, id, err := Config{Dataset: tt.dataset}.Target()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.project, project)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestTableMetadata(t *testing.T) {
	meta := TableMetadata(destination.StatesTable)
	require.NotNil(t, meta.TimePartitioning)
	assert.Equal(t, destination.ColumnLoadedAt, meta.TimePartitioning.Field)
	assert.Equal(t, bigquery.DayPartitioningType, meta.TimePartitioning.Type)
	assert.Equal(t, "_airbyte_states records ingested by pulsar", meta.Description)

	require.Len(t, meta.Schema, len(destination.Columns))
	byName := map[string]*bigquery.FieldSchema{}
	for _, f := range meta.Schema {
		byName[f.Name] = f
	}
	assert.Equal(t, bigquery.StringFieldType, byName[destination.ColumnRawID].Type)
	assert.Equal(t, bigquery.TimestampFieldType, byName[destination.ColumnLoadedAt].Type)
	assert.Equal(t, bigquery.JSONFieldType, byName[destination.ColumnData].Type)
	assert.False(t, byName[destination.ColumnExtractedAt].Required)
	assert.True(t, byName[destination.ColumnData].Required)
	assert.Equal(t, "Record ingestion timestamp", byName[destination.ColumnLoadedAt].Description)
}

func TestSaver(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	row := destination.Row{
		RawID:          "id-1",
		JobStartedAt:   now,
		SliceStartedAt: now,
		LoadedAt:       now.Add(time.Second),
		Data:           json.RawMessage(`{"a":1}`),
	}

	values, insertID, err := saver(row).Save()
	require.NoError(t, err)
	assert.Equal(t, "id-1", insertID)
	assert.Equal(t, `{"a":1}`, values[destination.ColumnData])
	assert.NotContains(t, values, destination.ColumnExtractedAt)

	row.ExtractedAt = &now
	values, _, err = saver(row).Save()
	require.NoError(t, err)
	assert.Equal(t, now, values[destination.ColumnExtractedAt])
}

func TestHasStatus(t *testing.T) {
	conflict := &googleapi.Error{Code: http.StatusConflict}
	assert.True(t, hasStatus(conflict, http.StatusConflict))
	assert.True(t, hasStatus(fmt.Errorf("create: %w", conflict), http.StatusConflict))
	assert.False(t, hasStatus(conflict, http.StatusNotFound))
	assert.False(t, hasStatus(fmt.Errorf("plain"), http.StatusNotFound))
}

func TestStatesQuery(t *testing.T) {
	s := &Storage{project: "p", id: "d"}
	assert.Equal(t,
		"SELECT TO_JSON_STRING(_airbyte_data) AS data FROM `p.d._airbyte_states` ORDER BY _airbyte_loaded_at DESC",
		s.StatesQuery(),
	)
}

func TestSampleFields(t *testing.T) {
	node, err := destination.SampleNode(SampleFields())
	require.NoError(t, err)
	var names []string
	for i := 0; i < len(node.Content); i += 2 {
		names = append(names, node.Content[i].Value)
	}
	assert.Equal(t, []string{"buffer_size_max", "dataset", "credentials_file", "location"}, names)
}
