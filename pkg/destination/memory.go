package destination

import (
	"context"
	"io"
	"sync"

	"github.com/ajitpratap0/pulsar/pkg/json"
	"github.com/ajitpratap0/pulsar/pkg/protocol"
)

// Operation is one call recorded by MemoryStorage.
type Operation struct {
	// Kind is "create" or "write".
	Kind  string
	Table string
	Rows  []Row
}

// MemoryStorage keeps tables in memory and records every call made to it.
// It is safe for concurrent use.
type MemoryStorage struct {
	mu     sync.Mutex
	tables map[string][]Row
	ops    []Operation

	// Fail, when set, is consulted before every call; a non-nil result is
	// returned instead of performing it.
	Fail func(op Operation) error
}

var _ Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{tables: make(map[string][]Row)}
}

// CreateTable implements Storage.
func (m *MemoryStorage) CreateTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := Operation{Kind: "create", Table: table}
	if m.Fail != nil {
		if err := m.Fail(op); err != nil {
			return err
		}
	}
	m.ops = append(m.ops, op)
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = nil
	}
	return nil
}

// WriteRows implements Storage.
func (m *MemoryStorage) WriteRows(_ context.Context, table string, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	op := Operation{Kind: "write", Table: table, Rows: append([]Row(nil), rows...)}
	if m.Fail != nil {
		if err := m.Fail(op); err != nil {
			return err
		}
	}
	m.ops = append(m.ops, op)
	m.tables[table] = append(m.tables[table], rows...)
	return nil
}

// GetState implements Storage.
func (m *MemoryStorage) GetState(context.Context) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[StatesTable]
	states := make([]StateRow, 0, len(rows))
	for _, r := range rows {
		states = append(states, StateRow{Data: r.Data, LoadedAt: r.LoadedAt})
	}
	return ResolveState(states), nil
}

// Close implements Storage.
func (m *MemoryStorage) Close(context.Context) error { return nil }

// Rows returns the rows written to table.
func (m *MemoryStorage) Rows(table string) []Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Row(nil), m.tables[table]...)
}

// Tables returns the names of the created tables.
func (m *MemoryStorage) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	return names
}

// Operations returns the recorded calls in order.
func (m *MemoryStorage) Operations() []Operation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Operation(nil), m.ops...)
}

// SliceSource is a MessageSource over a fixed list of messages. Err, when
// set, is returned after the last message instead of io.EOF.
type SliceSource struct {
	Messages []*protocol.Message
	Err      error
	pos      int
}

// Next implements MessageSource.
func (s *SliceSource) Next(ctx context.Context) (*protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.Messages) {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, io.EOF
	}
	msg := s.Messages[s.pos]
	s.pos++
	return msg, nil
}
