// Package protocol defines the line-delimited message protocol spoken by
// source connectors: the Message tagged union, the catalog types, and the
// connector specification.
//
// One protocol line decodes into exactly one Message. The payload of every
// variant is kept verbatim next to its typed view, so state and log
// documents can be persisted and replayed without reinterpretation.
package protocol

import (
	stderrors "errors"
	"time"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
)

// Type is the message discriminator carried in the `type` field.
type Type string

const (
	TypeRecord           Type = "RECORD"
	TypeState            Type = "STATE"
	TypeLog              Type = "LOG"
	TypeTrace            Type = "TRACE"
	TypeSpec             Type = "SPEC"
	TypeCatalog          Type = "CATALOG"
	TypeConnectionStatus Type = "CONNECTION_STATUS"
	TypeControl          Type = "CONTROL"
)

// ErrNotProtocol is returned by Decode for lines that are not protocol
// messages at all (plain text, JSON scalars, objects without a type).
var ErrNotProtocol = stderrors.New("line is not a protocol message")

// Message is one unit of connector output. Exactly one of the payload
// pointers matching Type is set; unknown types carry only Raw.
type Message struct {
	Type             Type
	Record           *Record
	State            *State
	Log              *Log
	Trace            *Trace
	Spec             *ConnectorSpecification
	Catalog          *Catalog
	ConnectionStatus *ConnectionStatus
	Control          json.RawMessage

	// Raw is the line the message was decoded from.
	Raw []byte
	// Synthetic marks a LOG built from a non-protocol diagnostic line.
	Synthetic bool
}

// Record is one row of a stream.
type Record struct {
	Stream    string          `json:"stream"`
	Namespace string          `json:"namespace,omitempty"`
	Data      json.RawMessage `json:"data"`
	// EmittedAt is the extraction time in epoch milliseconds.
	EmittedAt *int64 `json:"emitted_at,omitempty"`
}

// ExtractedAt returns the extraction timestamp, or nil when the source did not send one.
func (r *Record) ExtractedAt() *time.Time {
	if r.EmittedAt == nil {
		return nil
	}
	t := time.UnixMilli(*r.EmittedAt).UTC()
	return &t
}

// State is an opaque checkpoint. Payload is the `state` object as emitted.
type State struct {
	Payload json.RawMessage
}

// Data returns the legacy `data` member of the state, or nil.
func (s *State) Data() json.RawMessage {
	var v struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(s.Payload, &v); err != nil {
		return nil
	}
	return v.Data
}

// Log is a diagnostic message from the connector.
type Log struct {
	Level   string `json:"level"`
	Message string `json:"message"`

	Payload json.RawMessage `json:"-"`
}

// Trace is a structured event from the connector, possibly an error.
type Trace struct {
	Type      string          `json:"type"`
	EmittedAt *float64        `json:"emitted_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`

	Payload json.RawMessage `json:"-"`
}

// IsError reports whether the trace signals a fatal condition.
func (t *Trace) IsError() bool {
	return t.Type == "ERROR" || !json.IsEmpty(t.Error)
}

// ExtractedAt returns the trace emission time, or nil.
func (t *Trace) ExtractedAt() *time.Time {
	if t.EmittedAt == nil {
		return nil
	}
	ts := time.UnixMilli(int64(*t.EmittedAt)).UTC()
	return &ts
}

type envelope struct {
	Type             *Type                   `json:"type"`
	Record           *Record                 `json:"record"`
	State            json.RawMessage         `json:"state"`
	Log              json.RawMessage         `json:"log"`
	Trace            json.RawMessage         `json:"trace"`
	Spec             *ConnectorSpecification `json:"spec"`
	Catalog          *Catalog                `json:"catalog"`
	ConnectionStatus *ConnectionStatus       `json:"connectionStatus"`
	Control          json.RawMessage         `json:"control"`
}

// Decode parses one protocol line. It returns ErrNotProtocol when the line
// is not a typed JSON object, and a source protocol error when the line is
// typed but its payload is missing or malformed.
func Decode(line []byte) (*Message, error) {
	if len(line) == 0 || line[0] != '{' {
		return nil, ErrNotProtocol
	}
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, ErrNotProtocol
	}
	if env.Type == nil || *env.Type == "" {
		return nil, ErrNotProtocol
	}

	raw := make([]byte, len(line))
	copy(raw, line)
	msg := &Message{Type: *env.Type, Raw: raw}

	switch msg.Type {
	case TypeRecord:
		if env.Record == nil {
			return nil, malformed(msg, "record")
		}
		msg.Record = env.Record
	case TypeState:
		if len(env.State) == 0 || string(env.State) == "null" {
			return nil, malformed(msg, "state")
		}
		msg.State = &State{Payload: env.State}
	case TypeLog:
		if len(env.Log) == 0 {
			return nil, malformed(msg, "log")
		}
		log := &Log{Payload: env.Log}
		if err := json.Unmarshal(env.Log, log); err != nil {
			return nil, malformed(msg, "log")
		}
		msg.Log = log
	case TypeTrace:
		if len(env.Trace) == 0 {
			return nil, malformed(msg, "trace")
		}
		trace := &Trace{Payload: env.Trace}
		if err := json.Unmarshal(env.Trace, trace); err != nil {
			return nil, malformed(msg, "trace")
		}
		msg.Trace = trace
	case TypeSpec:
		if env.Spec == nil {
			return nil, malformed(msg, "spec")
		}
		msg.Spec = env.Spec
	case TypeCatalog:
		if env.Catalog == nil {
			return nil, malformed(msg, "catalog")
		}
		msg.Catalog = env.Catalog
	case TypeConnectionStatus:
		if env.ConnectionStatus == nil {
			return nil, malformed(msg, "connectionStatus")
		}
		msg.ConnectionStatus = env.ConnectionStatus
	case TypeControl:
		msg.Control = env.Control
	}
	return msg, nil
}

// NoiseLog wraps a non-protocol output line as a LOG message so it stays
// visible to operators.
func NoiseLog(line []byte) *Message {
	text := string(line)
	payload, _ := json.Marshal(map[string]string{"level": "INFO", "message": text})
	raw := make([]byte, len(line))
	copy(raw, line)
	return &Message{
		Type:      TypeLog,
		Log:       &Log{Level: "INFO", Message: text, Payload: payload},
		Raw:       raw,
		Synthetic: true,
	}
}

// Payload returns the verbatim payload document of the message variant.
func (m *Message) Payload() json.RawMessage {
	switch {
	case m.Record != nil:
		return m.Record.Data
	case m.State != nil:
		return m.State.Payload
	case m.Log != nil:
		return m.Log.Payload
	case m.Trace != nil:
		return m.Trace.Payload
	}
	return nil
}

func malformed(msg *Message, field string) error {
	return errors.Newf(errors.ErrorTypeSourceProtocol, "%s message has no valid %q payload", msg.Type, field).
		WithDetail("line", string(msg.Raw))
}
