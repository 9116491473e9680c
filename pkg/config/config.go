package config

import (
	"bytes"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pulsar/pkg/errors"
)

// Streams is a stream selection. It decodes from a comma separated string
// or a sequence and encodes as a comma separated string.
type Streams []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Streams) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*s = nil
			return nil
		}
		*s = splitStreams(node.Value)
		return nil
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return err
		}
		*s = splitStreams(strings.Join(names, ","))
		return nil
	default:
		return errors.Newf(errors.ErrorTypeConfig, "line %d: streams must be a string or a list", node.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (s Streams) MarshalYAML() (interface{}, error) {
	if len(s) == 0 {
		return nil, nil
	}
	return strings.Join(s, ","), nil
}

func splitStreams(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// SourceSection configures the source connector.
type SourceSection struct {
	Executable  string                 `yaml:"executable,omitempty"`
	DockerImage string                 `yaml:"docker_image,omitempty"`
	Config      map[string]interface{} `yaml:"config"`
	Streams     Streams                `yaml:"streams,omitempty"`
	ParsePolicy string                 `yaml:"parse_policy,omitempty"`
}

// DestinationSection configures the destination sink.
type DestinationSection struct {
	Connector string                 `yaml:"connector"`
	Config    map[string]interface{} `yaml:"config"`
}

// RunnerSection selects how the pipeline is executed. Config is kept
// verbatim for the runner.
type RunnerSection struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Definition is a decoded pipeline definition.
type Definition struct {
	Source       SourceSection      `yaml:"source"`
	Destination  DestinationSection `yaml:"destination"`
	RemoteRunner RunnerSection      `yaml:"remote_runner"`
}

// Validate checks the fields every run needs.
func (d *Definition) Validate() error {
	if d.Source.Executable == "" && d.Source.DockerImage == "" {
		return errors.New(errors.ErrorTypeConfig, "source.executable or source.docker_image must be set")
	}
	if d.Source.Executable != "" && d.Source.DockerImage != "" {
		return errors.New(errors.ErrorTypeConfig, "source.executable and source.docker_image are mutually exclusive")
	}
	if strings.TrimSpace(d.Destination.Connector) == "" {
		return errors.New(errors.ErrorTypeConfig, "destination.connector must be set")
	}
	return nil
}

// Connection is a pipeline definition document. It keeps the YAML node
// tree, comments included, so edits preserve everything they do not touch.
type Connection struct {
	Name string
	doc  yaml.Node
}

// Parse reads a connection document.
func Parse(name string, data []byte) (*Connection, error) {
	c := &Connection{Name: name}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "connection %q is empty", name)
	}
	if err := yaml.Unmarshal(data, &c.doc); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to parse connection %q", name)
	}
	if root := c.root(); root == nil || root.Kind != yaml.MappingNode {
		return nil, errors.Newf(errors.ErrorTypeConfig, "connection %q must be a mapping", name)
	}
	return c, nil
}

// FromDefinition builds a connection document from def.
func FromDefinition(name string, def *Definition) (*Connection, error) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode connection")
	}
	return Parse(name, data)
}

func (c *Connection) root() *yaml.Node {
	if c.doc.Kind != yaml.DocumentNode || len(c.doc.Content) == 0 {
		return nil
	}
	return c.doc.Content[0]
}

// Definition decodes the document with ${VAR} references substituted from
// the environment.
func (c *Connection) Definition() (*Definition, error) {
	raw, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal([]byte(substituteEnvVars(string(raw))), &def); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "invalid connection %q", c.Name)
	}
	if def.RemoteRunner.Type == "" {
		def.RemoteRunner.Type = "direct"
	}
	return &def, nil
}

// Bytes encodes the document.
func (c *Connection) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&c.doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode connection")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode connection")
	}
	return buf.Bytes(), nil
}

// SetStreams replaces source.streams, keeping its comment.
func (c *Connection) SetStreams(streams []string) error {
	names := splitStreams(strings.Join(streams, ","))
	if len(names) == 0 {
		return errors.New(errors.ErrorTypeConfig, "streams must not be empty")
	}
	return c.setSourceValue("streams", strings.Join(names, ","))
}

// SetExecutable replaces the source command and drops any docker image.
func (c *Connection) SetExecutable(executable string) error {
	if err := c.setSourceValue("executable", executable); err != nil {
		return err
	}
	source := mappingValue(c.root(), "source")
	deleteMappingKey(source, "docker_image")
	return nil
}

func (c *Connection) setSourceValue(key, value string) error {
	source := mappingValue(c.root(), "source")
	if source == nil || source.Kind != yaml.MappingNode {
		return errors.Newf(errors.ErrorTypeConfig, "connection %q has no source section", c.Name)
	}
	setScalar(source, key, value)
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
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

func setScalar(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key {
			continue
		}
		comment := m.Content[i+1].LineComment
		if comment == "" {
			// "key: # comment" attaches the comment to the key.
			comment = m.Content[i].LineComment
			m.Content[i].LineComment = ""
		}
		m.Content[i+1] = &yaml.Node{
			Kind:        yaml.ScalarNode,
			Tag:         "!!str",
			Value:       value,
			LineComment: comment,
		}
		return
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}

func deleteMappingKey(m *yaml.Node, key string) {
	if m == nil {
		return
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}
