package protocol

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
)

// SampleConfig builds a placeholder configuration from a connector's JSON
// schema. Every property gets its default, first example, const, or a typed
// zero value, and is annotated with a line comment of the form
// "REQUIRED | string | Title". For oneOf and anyOf the first branch is used.
// Property order follows the schema document.
func SampleConfig(schema json.RawMessage) (*yaml.Node, error) {
	if json.IsEmpty(schema) {
		return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
	}

	// JSON is YAML; decoding into a node tree keeps property order.
	compact, err := json.Compact(schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceProtocol, "connection specification is not valid JSON")
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(compact, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSourceProtocol, "failed to parse connection specification")
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New(errors.ErrorTypeSourceProtocol, "connection specification must be an object")
	}

	sample := sampleValue(doc.Content[0])
	if sample.Kind != yaml.MappingNode {
		return nil, errors.Newf(errors.ErrorTypeSourceProtocol, "connection specification describes a %s, not an object", schemaType(doc.Content[0]))
	}
	return sample, nil
}

func sampleValue(schema *yaml.Node) *yaml.Node {
	for _, key := range []string{"oneOf", "anyOf"} {
		if branches := lookup(schema, key); branches != nil && branches.Kind == yaml.SequenceNode && len(branches.Content) > 0 {
			return sampleValue(branches.Content[0])
		}
	}
	if def := lookup(schema, "default"); def != nil {
		return block(def)
	}
	if examples := lookup(schema, "examples"); examples != nil && examples.Kind == yaml.SequenceNode && len(examples.Content) > 0 {
		return block(examples.Content[0])
	}
	if c := lookup(schema, "const"); c != nil {
		return block(c)
	}

	switch schemaType(schema) {
	case "object":
		return sampleObject(schema)
	case "array":
		return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	case "integer", "number":
		return scalar("!!int", "0")
	case "boolean":
		return scalar("!!bool", "false")
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "", Style: yaml.DoubleQuotedStyle}
	}
}

func sampleObject(schema *yaml.Node) *yaml.Node {
	out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	props := lookup(schema, "properties")
	if props == nil || props.Kind != yaml.MappingNode {
		return out
	}

	required := map[string]bool{}
	if req := lookup(schema, "required"); req != nil {
		for _, n := range req.Content {
			required[n.Value] = true
		}
	}

	for i := 0; i+1 < len(props.Content); i += 2 {
		name, prop := props.Content[i].Value, props.Content[i+1]
		key := scalar("!!str", name)
		value := sampleValue(prop)
		comment := annotation(prop, required[name])
		if value.Kind == yaml.ScalarNode || value.Style == yaml.FlowStyle {
			value.LineComment = comment
		} else {
			key.LineComment = comment
		}
		out.Content = append(out.Content, key, value)
	}
	return out
}

func annotation(prop *yaml.Node, required bool) string {
	label := "OPTIONAL"
	if required {
		label = "REQUIRED"
	}
	parts := []string{label, schemaType(prop)}
	for _, key := range []string{"title", "description"} {
		if n := lookup(prop, key); n != nil && n.Value != "" {
			parts = append(parts, strings.Join(strings.Fields(n.Value), " "))
			break
		}
	}
	return fmt.Sprintf("# %s", strings.Join(parts, " | "))
}

func schemaType(schema *yaml.Node) string {
	for _, key := range []string{"oneOf", "anyOf"} {
		if branches := lookup(schema, key); lookup(schema, "type") == nil && branches != nil && len(branches.Content) > 0 {
			return schemaType(branches.Content[0])
		}
	}
	t := lookup(schema, "type")
	switch {
	case t == nil:
		if lookup(schema, "properties") != nil {
			return "object"
		}
		if c := lookup(schema, "const"); c != nil {
			return "const"
		}
		return "string"
	case t.Kind == yaml.SequenceNode:
		for _, n := range t.Content {
			if n.Value != "null" {
				return n.Value
			}
		}
		return "null"
	default:
		return t.Value
	}
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// block copies n, switching collections from JSON flow style to block style.
func block(n *yaml.Node) *yaml.Node {
	out := *n
	out.Line, out.Column = 0, 0
	if out.Kind != yaml.ScalarNode {
		out.Style = 0
		if len(n.Content) == 0 {
			out.Style = yaml.FlowStyle
		}
	} else if out.Tag == "!!str" {
		out.Style = yaml.DoubleQuotedStyle
	}
	out.Content = make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		out.Content[i] = block(c)
	}
	return &out
}
