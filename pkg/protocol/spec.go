package protocol

import "github.com/ajitpratap0/pulsar/pkg/json"

// ConnectorSpecification is the result of the spec action.
type ConnectorSpecification struct {
	DocumentationURL        string          `json:"documentationUrl,omitempty"`
	ChangelogURL            string          `json:"changelogUrl,omitempty"`
	ConnectionSpecification json.RawMessage `json:"connectionSpecification"`
	SupportsIncremental     bool            `json:"supportsIncremental,omitempty"`
}

// ConnectionStatus values.
const (
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
)

// ConnectionStatus is the result of the check action.
type ConnectionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Succeeded reports whether the check passed.
func (c *ConnectionStatus) Succeeded() bool {
	return c.Status == StatusSucceeded
}
