package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	data, err := Marshal(map[string]string{"q": "a<b&c"})
	require.NoError(t, err)
	assert.Equal(t, `{"q":"a<b&c"}`, string(data))
}

func TestRawMessageRoundTripIsVerbatim(t *testing.T) {
	var doc struct {
		State RawMessage `json:"state"`
	}
	require.NoError(t, Unmarshal([]byte(`{"state":{"b":1,"a":[2,3]}}`), &doc))
	assert.Equal(t, `{"b":1,"a":[2,3]}`, string(doc.State))
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"", true},
		{"null", true},
		{"{}", true},
		{" { } ", true},
		{"[ ]", true},
		{`{"cursor":5}`, false},
		{`[{"type":"STREAM"}]`, false},
		{"0", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEmpty(RawMessage(tt.raw)))
		})
	}
}

func TestCompact(t *testing.T) {
	out, err := Compact([]byte("{ \"a\" : 1 }"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(out))
	assert.True(t, Valid(out))
}
