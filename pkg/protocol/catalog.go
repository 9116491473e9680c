package protocol

import (
	"sort"
	"strings"

	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
)

// SyncMode selects how a stream is read.
type SyncMode string

const (
	SyncModeFullRefresh SyncMode = "full_refresh"
	SyncModeIncremental SyncMode = "incremental"
)

// DestinationSyncModeAppend is the only destination mode the loader supports.
const DestinationSyncModeAppend = "append"

// Stream is a named collection exposed by a source. The discovered document
// is retained and re-emitted unchanged in the configured catalog.
type Stream struct {
	Name                    string          `json:"name"`
	Namespace               string          `json:"namespace,omitempty"`
	JSONSchema              json.RawMessage `json:"json_schema,omitempty"`
	SupportedSyncModes      []SyncMode      `json:"supported_sync_modes,omitempty"`
	SourceDefinedCursor     bool            `json:"source_defined_cursor,omitempty"`
	DefaultCursorField      []string        `json:"default_cursor_field,omitempty"`
	SourceDefinedPrimaryKey [][]string      `json:"source_defined_primary_key,omitempty"`

	raw json.RawMessage
}

type streamFields Stream

// UnmarshalJSON keeps the discovered document verbatim.
func (s *Stream) UnmarshalJSON(data []byte) error {
	var fields streamFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*s = Stream(fields)
	s.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the discovered document when there is one.
func (s Stream) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	return json.Marshal(streamFields(s))
}

// Supports reports whether the stream declares the sync mode.
func (s *Stream) Supports(mode SyncMode) bool {
	for _, m := range s.SupportedSyncModes {
		if m == mode {
			return true
		}
	}
	return false
}

// Catalog is the discover result: every stream the source exposes.
type Catalog struct {
	Streams []Stream `json:"streams"`
}

// StreamNames returns the stream names in discovery order.
func (c *Catalog) StreamNames() []string {
	names := make([]string, 0, len(c.Streams))
	for _, s := range c.Streams {
		names = append(names, s.Name)
	}
	return names
}

// ConfiguredStream is one selected stream with its sync settings.
type ConfiguredStream struct {
	Stream              Stream   `json:"stream"`
	SyncMode            SyncMode `json:"sync_mode"`
	DestinationSyncMode string   `json:"destination_sync_mode"`
	CursorField         []string `json:"cursor_field"`
}

// ConfiguredCatalog is the catalog passed to a read action.
type ConfiguredCatalog struct {
	Streams []ConfiguredStream `json:"streams"`
}

// StreamNames returns the configured stream names.
func (c *ConfiguredCatalog) StreamNames() []string {
	names := make([]string, 0, len(c.Streams))
	for _, s := range c.Streams {
		names = append(names, s.Stream.Name)
	}
	return names
}

// BuildConfiguredCatalog selects streams from catalog. An empty selection
// selects every stream. Each stream reads incrementally when it supports it,
// appends at the destination, and uses its default cursor field. Unknown
// names in selection are a configuration error.
func BuildConfiguredCatalog(catalog *Catalog, selection []string) (*ConfiguredCatalog, error) {
	if catalog == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "catalog is required")
	}

	wanted := make(map[string]bool, len(selection))
	for _, name := range selection {
		if name = strings.TrimSpace(name); name != "" {
			wanted[name] = false
		}
	}

	configured := &ConfiguredCatalog{Streams: make([]ConfiguredStream, 0, len(catalog.Streams))}
	for _, stream := range catalog.Streams {
		if len(wanted) > 0 {
			if _, ok := wanted[stream.Name]; !ok {
				continue
			}
			wanted[stream.Name] = true
		}

		mode := SyncModeFullRefresh
		if stream.Supports(SyncModeIncremental) {
			mode = SyncModeIncremental
		}
		cursor := stream.DefaultCursorField
		if cursor == nil {
			cursor = []string{}
		}
		configured.Streams = append(configured.Streams, ConfiguredStream{
			Stream:              stream,
			SyncMode:            mode,
			DestinationSyncMode: DestinationSyncModeAppend,
			CursorField:         cursor,
		})
	}

	var missing []string
	for name, found := range wanted {
		if !found {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errors.Newf(errors.ErrorTypeConfig, "streams not exposed by source: %s", strings.Join(missing, ", ")).
			WithDetail("available", catalog.StreamNames())
	}
	return configured, nil
}

// ParseStreamSelection splits a comma-separated stream list.
func ParseStreamSelection(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
