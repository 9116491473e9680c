// Package strings provides pooled builders for statements and payloads
// assembled on every flush.
package strings

import (
	"sync"
)

// Builder is an append-only byte buffer that can be handed back to a pool.
type Builder struct {
	buf []byte
}

// NewBuilder creates a builder with capacity bytes preallocated.
func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

// WriteString appends s.
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends c.
func (b *Builder) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns a copy of the content; the builder may be reused after.
func (b *Builder) String() string {
	return string(b.buf)
}

// Len returns the number of bytes written.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Cap returns the capacity of the underlying buffer.
func (b *Builder) Cap() int {
	return cap(b.buf)
}

// Reset empties the builder and keeps its buffer.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// Grow makes room for n more bytes.
func (b *Builder) Grow(n int) {
	if cap(b.buf)-len(b.buf) < n {
		grown := make([]byte, len(b.buf), 2*cap(b.buf)+n)
		copy(grown, b.buf)
		b.buf = grown
	}
}

// BuilderSize selects a pool by expected output size.
type BuilderSize int

const (
	Small  BuilderSize = iota // < 1KB
	Medium                    // 1KB - 16KB
	Large                     // 16KB+
)

// maxPooledCap keeps builders that grew very large out of the pools.
const maxPooledCap = 4 << 20

var pools = [...]*sync.Pool{
	Small:  {New: func() interface{} { return NewBuilder(1024) }},
	Medium: {New: func() interface{} { return NewBuilder(16 * 1024) }},
	Large:  {New: func() interface{} { return NewBuilder(64 * 1024) }},
}

func pool(size BuilderSize) *sync.Pool {
	if size < Small || size > Large {
		return pools[Small]
	}
	return pools[size]
}

// GetBuilder returns an empty pooled builder of the given size class.
func GetBuilder(size BuilderSize) *Builder {
	b := pool(size).Get().(*Builder)
	b.Reset()
	return b
}

// PutBuilder returns b to its pool.
func PutBuilder(b *Builder, size BuilderSize) {
	if b == nil || b.Cap() > maxPooledCap {
		return
	}
	b.Reset()
	pool(size).Put(b)
}
