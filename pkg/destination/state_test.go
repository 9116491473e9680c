package destination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/pulsar/pkg/json"
)

func TestResolveState(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	at := func(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }
	streamState := func(name string, cursor int) json.RawMessage {
		data, _ := json.Marshal(map[string]interface{}{
			"type": "STREAM",
			"stream": map[string]interface{}{
				"stream_descriptor": map[string]string{"name": name},
				"stream_state":      map[string]int{"cursor": cursor},
			},
		})
		return data
	}

	tests := []struct {
		name string
		rows []StateRow
		want string
	}{
		{name: "no rows", want: `{}`},
		{
			name: "legacy data member",
			rows: []StateRow{
				{Data: json.RawMessage(`{"data":{"cursor":1}}`), LoadedAt: at(1)},
				{Data: json.RawMessage(`{"data":{"cursor":5}}`), LoadedAt: at(2)},
			},
			want: `{"cursor":5}`,
		},
		{
			name: "bare payload",
			rows: []StateRow{{Data: json.RawMessage(`{"cursor":5}`), LoadedAt: at(1)}},
			want: `{"cursor":5}`,
		},
		{
			name: "latest per stream aggregated",
			rows: []StateRow{
				{Data: streamState("users", 1), LoadedAt: at(1)},
				{Data: streamState("orders", 7), LoadedAt: at(2)},
				{Data: streamState("users", 3), LoadedAt: at(3)},
			},
			want: `[` + string(streamState("users", 3)) + `,` + string(streamState("orders", 7)) + `]`,
		},
		{
			name: "global wrapped",
			rows: []StateRow{
				{Data: json.RawMessage(`{"type":"GLOBAL","global":{"shared_state":{"lsn":1}}}`), LoadedAt: at(1)},
				{Data: json.RawMessage(`{"type":"GLOBAL","global":{"shared_state":{"lsn":2}}}`), LoadedAt: at(2)},
			},
			want: `[{"type":"GLOBAL","global":{"shared_state":{"lsn":2}}}]`,
		},
		{
			name: "most recent shape wins",
			rows: []StateRow{
				{Data: streamState("users", 1), LoadedAt: at(1)},
				{Data: json.RawMessage(`{"data":{"cursor":9}}`), LoadedAt: at(5)},
			},
			want: `{"cursor":9}`,
		},
		{
			name: "equal load times prefer the later row",
			rows: []StateRow{
				{Data: json.RawMessage(`{"data":{"cursor":1}}`), LoadedAt: at(1)},
				{Data: json.RawMessage(`{"data":{"cursor":2}}`), LoadedAt: at(1)},
			},
			want: `{"cursor":2}`,
		},
		{
			name: "equal load times per stream",
			rows: []StateRow{
				{Data: streamState("users", 1), LoadedAt: at(1)},
				{Data: streamState("users", 2), LoadedAt: at(1)},
			},
			want: `[` + string(streamState("users", 2)) + `]`,
		},
		{
			name: "equal load times for global",
			rows: []StateRow{
				{Data: json.RawMessage(`{"type":"GLOBAL","global":{"shared_state":{"lsn":1}}}`), LoadedAt: at(1)},
				{Data: json.RawMessage(`{"type":"GLOBAL","global":{"shared_state":{"lsn":2}}}`), LoadedAt: at(1)},
			},
			want: `[{"type":"GLOBAL","global":{"shared_state":{"lsn":2}}}]`,
		},
		{
			name: "unparseable rows are skipped",
			rows: []StateRow{
				{Data: json.RawMessage(`not json`), LoadedAt: at(9)},
				{Data: json.RawMessage(`{"data":{"cursor":1}}`), LoadedAt: at(1)},
			},
			want: `{"cursor":1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, string(ResolveState(tt.rows)))
		})
	}
}

func TestResolveNewestFirst(t *testing.T) {
	got := ResolveNewestFirst([]json.RawMessage{
		json.RawMessage(`{"data":{"cursor":3}}`),
		json.RawMessage(`{"data":{"cursor":2}}`),
	})
	assert.JSONEq(t, `{"cursor":3}`, string(got))
	assert.JSONEq(t, `{}`, string(ResolveNewestFirst(nil)))
}
