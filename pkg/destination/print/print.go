// Package print implements the console destination. Rows are written as
// JSON lines grouped under a table banner; no checkpoint is kept.
package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ajitpratap0/pulsar/pkg/destination"
	"github.com/ajitpratap0/pulsar/pkg/errors"
	"github.com/ajitpratap0/pulsar/pkg/json"
)

// Config is the print destination configuration.
type Config struct {
	destination.CommonConfig
}

// Storage writes rows to an io.Writer.
type Storage struct {
	mu sync.Mutex
	w  io.Writer
}

var _ destination.Storage = (*Storage)(nil)

// New creates a Storage writing to w, or to stdout when w is nil.
func New(w io.Writer) *Storage {
	if w == nil {
		w = os.Stdout
	}
	return &Storage{w: w}
}

// CreateTable implements destination.Storage. Nothing is materialized.
func (s *Storage) CreateTable(context.Context, string) error { return nil }

// WriteRows implements destination.Storage.
func (s *Storage) WriteRows(_ context.Context, table string, rows []destination.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := fmt.Fprintf(s.w, "\n%s\n%s\n", strings.Repeat("-", 100), strings.ToUpper(table)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeDestination, "failed to print rows")
	}
	enc := json.NewEncoder(s.w)
	for _, row := range rows {
		if err := enc.Encode(row.Map()); err != nil {
			return errors.Wrap(err, errors.ErrorTypeDestination, "failed to print row")
		}
	}
	return nil
}

// GetState implements destination.Storage. The console keeps no checkpoint.
func (s *Storage) GetState(context.Context) (json.RawMessage, error) {
	return json.RawMessage(json.EmptyObject), nil
}

// Close implements destination.Storage.
func (s *Storage) Close(context.Context) error { return nil }

// SampleFields returns the annotated sample configuration.
func SampleFields() []destination.SampleField {
	return destination.CommonSampleFields()
}
