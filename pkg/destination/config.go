package destination

import (
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
)

// CommonConfig holds the settings every destination accepts.
type CommonConfig struct {
	BufferSizeMax int `json:"buffer_size_max"`
}

// DecodeConfig decodes a destination configuration section into v through
// its JSON field tags.
func DecodeConfig(raw map[string]interface{}, v interface{}) error {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "destination config is not serializable")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid destination config")
	}
	return nil
}

// SampleField is one annotated entry of a generated destination config.
type SampleField struct {
	Name    string
	Value   interface{}
	Comment string
}

// CommonSampleFields are the sample entries shared by every destination.
func CommonSampleFields() []SampleField {
	return []SampleField{{
		Name:    "buffer_size_max",
		Value:   DefaultBufferSizeMax,
		Comment: "OPTIONAL | integer | maximum number of records in buffer before writing to destination (defaults to 10000 when not specified)",
	}}
}

// SampleNode renders fields as a YAML mapping with line comments.
func SampleNode(fields []SampleField) (*yaml.Node, error) {
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range fields {
		var value yaml.Node
		if err := value.Encode(f.Value); err != nil {
			return nil, errors.Wrapf(err, errors.ErrorTypeInternal, "failed to encode sample field %s", f.Name)
		}
		if value.Kind == yaml.ScalarNode && value.Tag == "!!str" {
			value.Style = yaml.DoubleQuotedStyle
		}
		value.LineComment = "# " + f.Comment
		out.Content = append(out.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Name}, &value)
	}
	return out, nil
}
