package destination

import (
	"time"

	"github.com/ajitpratap0/pulsar/pkg/json"
)

// StateRow is one persisted checkpoint row.
type StateRow struct {
	Data     json.RawMessage
	LoadedAt time.Time
}

type statePayload struct {
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
	Stream *struct {
		Descriptor struct {
			Name      string `json:"name"`
			Namespace string `json:"namespace"`
		} `json:"stream_descriptor"`
	} `json:"stream"`
}

// ResolveState turns persisted checkpoint rows into the state document to
// resume from. Three shapes are recognised:
//
//   - STREAM: the latest payload of each stream, aggregated into an array
//   - GLOBAL: the latest GLOBAL payload, wrapped in an array
//   - legacy: the latest other payload; its "data" member when it has one,
//     otherwise the payload itself
//
// When several shapes are present the most recently loaded one wins. Rows
// are expected in append order, so of two rows loaded at the same instant
// the later one wins. No rows yield {}.
func ResolveState(rows []StateRow) json.RawMessage {
	type candidate struct {
		state    json.RawMessage
		loadedAt time.Time
		ok       bool
	}
	var legacy, global candidate
	streams := map[string]StateRow{}
	var streamOrder []string

	for _, row := range rows {
		var p statePayload
		if err := json.Unmarshal(row.Data, &p); err != nil {
			continue
		}
		switch {
		case p.Type == "STREAM" && p.Stream != nil:
			name := p.Stream.Descriptor.Name
			prev, seen := streams[name]
			if !seen {
				streamOrder = append(streamOrder, name)
			}
			if !seen || !row.LoadedAt.Before(prev.LoadedAt) {
				streams[name] = row
			}
		case p.Type == "GLOBAL":
			if !global.ok || !row.LoadedAt.Before(global.loadedAt) {
				global = candidate{state: row.Data, loadedAt: row.LoadedAt, ok: true}
			}
		default:
			state := row.Data
			if len(p.Data) > 0 && string(p.Data) != "null" {
				state = p.Data
			}
			if !legacy.ok || !row.LoadedAt.Before(legacy.loadedAt) {
				legacy = candidate{state: state, loadedAt: row.LoadedAt, ok: true}
			}
		}
	}

	var best candidate
	if len(streams) > 0 {
		states := make([]json.RawMessage, 0, len(streams))
		var latest time.Time
		for _, name := range streamOrder {
			row := streams[name]
			states = append(states, row.Data)
			if row.LoadedAt.After(latest) {
				latest = row.LoadedAt
			}
		}
		if aggregated, err := json.Marshal(states); err == nil {
			best = candidate{state: aggregated, loadedAt: latest, ok: true}
		}
	}
	if global.ok && (!best.ok || global.loadedAt.After(best.loadedAt)) {
		wrapped, err := json.Marshal([]json.RawMessage{global.state})
		if err == nil {
			best = candidate{state: wrapped, loadedAt: global.loadedAt, ok: true}
		}
	}
	if legacy.ok && (!best.ok || legacy.loadedAt.After(best.loadedAt)) {
		best = legacy
	}

	if !best.ok {
		return json.RawMessage(json.EmptyObject)
	}
	return best.state
}

// ResolveNewestFirst is ResolveState for stores that return checkpoint
// payloads already ordered by load time, newest first.
func ResolveNewestFirst(payloads []json.RawMessage) json.RawMessage {
	rows := make([]StateRow, len(payloads))
	base := time.Unix(0, 0).UTC()
	for i, p := range payloads {
		rows[i] = StateRow{Data: p, LoadedAt: base.Add(time.Duration(len(payloads)-i) * time.Millisecond)}
	}
	return ResolveState(rows)
}
