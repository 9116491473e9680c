package print

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
)

func TestPrintDestination(t *testing.T) {
	var out bytes.Buffer
	loader := destination.NewLoader(New(&out), destination.LoaderOptions{})

	var msgs []*protocol.Message
	for _, line := range []string{
		`{"type":"RECORD","record":{"stream":"users","data":{"name":"<Ada>"}}}`,
		`{"type":"STATE","state":{"data":{"cursor":1}}}`,
	} {
		msg, err := protocol.Decode([]byte(line))
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	require.NoError(t, loader.Load(context.Background(), &destination.SliceSource{Messages: msgs}))

	text := out.String()
	assert.Contains(t, text, "_AIRBYTE_RAW_USERS\n")
	assert.Contains(t, text, "_AIRBYTE_STATES\n")
	assert.Contains(t, text, `"_airbyte_data":"{\"name\":\"<Ada>\"}"`)

	var printed map[string]interface{}
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "{") {
			require.NoError(t, json.Unmarshal([]byte(line), &printed))
			break
		}
	}
	assert.Nil(t, printed[destination.ColumnExtractedAt])
	loadedAt, err := time.Parse(time.RFC3339Nano, printed[destination.ColumnLoadedAt].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), loadedAt, time.Minute)

	state, err := loader.GetState(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(state))
}
