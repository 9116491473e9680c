package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/pulsar/pkg/errors"
)

// Template describes a connection to generate. The *Config nodes are
// annotated samples such as protocol.SampleConfig output; nil renders an
// empty mapping.
type Template struct {
	// Exactly one of Executable and DockerImage is set.
	Executable   string
	DockerImage  string
	SourceConfig *yaml.Node

	Destination       string
	Destinations      []string
	DestinationConfig *yaml.Node

	Runner       string
	Runners      []string
	RunnerConfig *yaml.Node
}

const pregenerated = "# PREGENERATED | object | PLEASE UPDATE this pre-generated config"

// NewFromTemplate renders t as a commented connection document.
func NewFromTemplate(name string, t Template) (*Connection, error) {
	if (t.Executable == "") == (t.DockerImage == "") {
		return nil, errors.New(errors.ErrorTypeConfig, "exactly one of executable and docker image must be given")
	}
	if t.Destination == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "destination connector must be given")
	}
	if t.Runner == "" {
		t.Runner = "direct"
	}

	source := mapping()
	if t.Executable != "" {
		add(source, "executable", quoted(t.Executable, "# GENERATED | string | Command to launch the source"))
	} else {
		add(source, "docker_image", quoted(t.DockerImage, "# GENERATED | string | Docker image of the source"))
	}
	addSection(source, "config", t.SourceConfig, pregenerated)
	add(source, "streams", &yaml.Node{
		Kind:        yaml.ScalarNode,
		Tag:         "!!null",
		LineComment: "# OPTIONAL | string | Comma-separated list of streams to retrieve. If missing, all streams are retrieved from source.",
	})

	dest := mapping()
	add(dest, "connector", quoted(t.Destination, fmt.Sprintf("# GENERATED | string | A Pulsar destination connector. Must be one of [%s]", strings.Join(t.Destinations, ", "))))
	addSection(dest, "config", t.DestinationConfig, pregenerated)

	runner := mapping()
	add(runner, "type", quoted(t.Runner, fmt.Sprintf("# GENERATED | string | Runner type. Must be one of [%s]", strings.Join(t.Runners, ", "))))
	addSection(runner, "config", t.RunnerConfig, pregenerated)

	root := mapping()
	add(root, "source", source)
	add(root, "destination", dest)
	add(root, "remote_runner", runner)

	conn := &Connection{Name: name, doc: yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}}
	data, err := conn.Bytes()
	if err != nil {
		return nil, err
	}
	return Parse(name, data)
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func quoted(value, comment string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, Style: yaml.DoubleQuotedStyle, LineComment: comment}
}

func add(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

// addSection adds a nested mapping with the comment on its key.
func addSection(m *yaml.Node, key string, value *yaml.Node, comment string) {
	if value == nil || (value.Kind == yaml.MappingNode && len(value.Content) == 0) {
		empty := mapping()
		empty.Style = yaml.FlowStyle
		empty.LineComment = comment
		add(m, key, empty)
		return
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key, LineComment: comment}
	m.Content = append(m.Content, k, value)
}
