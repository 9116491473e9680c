package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pulsar/pkg/errors"
)

const fakerSpec = `{
  "type": "object",
  "required": ["count"],
  "properties": {
    "count": {"type": "integer", "title": "Count", "default": 1000},
    "seed": {"type": "integer", "title": "Seed"},
    "api_key": {"type": "string", "description": "Key used to\n authenticate"},
    "region": {"type": ["null", "string"], "examples": ["eu-west-1", "us-east-1"]},
    "streams": {"type": "array", "items": {"type": "string"}},
    "verbose": {"type": "boolean"},
    "credentials": {
      "title": "Authentication",
      "oneOf": [
        {"type": "object", "required": ["auth_type"], "properties": {
          "auth_type": {"const": "oauth"},
          "client_id": {"type": "string"}
        }},
        {"type": "object", "properties": {"auth_type": {"const": "token"}}}
      ]
    }
  }
}`

func TestSampleConfig(t *testing.T) {
	node, err := SampleConfig([]byte(fakerSpec))
	require.NoError(t, err)

	out, err := yaml.Marshal(node)
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, "count: 1000 # REQUIRED | integer | Count")
	assert.Contains(t, text, "seed: 0 # OPTIONAL | integer | Seed")
	assert.Contains(t, text, `api_key: "" # OPTIONAL | string | Key used to authenticate`)
	assert.Contains(t, text, `region: "eu-west-1" # OPTIONAL | string`)
	assert.Contains(t, text, "streams: [] # OPTIONAL | array")
	assert.Contains(t, text, "verbose: false # OPTIONAL | boolean")
	assert.Contains(t, text, "credentials:")
	assert.Contains(t, text, "# OPTIONAL | object | Authentication")
	assert.Contains(t, text, `auth_type: "oauth" # REQUIRED | const`)

	var decoded map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, 1000, decoded["count"])
	assert.Equal(t, map[string]interface{}{"auth_type": "oauth", "client_id": ""}, decoded["credentials"])
}

func TestSampleConfigKeepsPropertyOrder(t *testing.T) {
	node, err := SampleConfig([]byte(`{"type":"object","properties":{"zeta":{"type":"string"},"alpha":{"type":"string"}}}`))
	require.NoError(t, err)
	require.Len(t, node.Content, 4)
	assert.Equal(t, "zeta", node.Content[0].Value)
	assert.Equal(t, "alpha", node.Content[2].Value)
}

func TestSampleConfigEmptySchema(t *testing.T) {
	node, err := SampleConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, yaml.MappingNode, node.Kind)
	assert.Empty(t, node.Content)
}

func TestSampleConfigRejectsNonObject(t *testing.T) {
	_, err := SampleConfig([]byte(`["a"]`))
	assert.Error(t, err)

	_, err = SampleConfig([]byte(`{"type":"string"}`))
	assert.Error(t, err)
}

func TestSampleConfigInvalidJSON(t *testing.T) {
	_, err := SampleConfig([]byte(`{"type": "object", "properties": `))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSourceProtocol))
	assert.Contains(t, err.Error(), "not valid JSON")
}

func TestSampleConfigIndentedSchema(t *testing.T) {
	node, err := SampleConfig([]byte("{\n\t\"type\" : \"object\",\n\t\"properties\" : {\n\t\t\"host\" : {\"type\" : \"string\", \"default\" : \"localhost\"}\n\t}\n}\n"))
	require.NoError(t, err)
	require.Len(t, node.Content, 2)
	assert.Equal(t, "host", node.Content[0].Value)
	assert.Equal(t, "localhost", node.Content[1].Value)
}
