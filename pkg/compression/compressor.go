// Package compression provides the streaming codecs used for object store
// files.
//
// # Basic Usage
//
//	codec, err := compression.NewCodec(compression.Zstd, compression.Default)
//	w, err := codec.NewWriter(dst)
//	_, err = w.Write(lines)
//	err = w.Close()
//
// Objects are named with codec.Extension() so a reader can pick the codec
// back with ForExtension.
package compression

import (
	"bytes"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/pulsar/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None writes data unchanged
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// S2 represents s2 stream compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Algorithms lists the supported algorithms.
func Algorithms() []Algorithm {
	return []Algorithm{None, Gzip, Zstd, LZ4, S2}
}

// Level controls the trade-off between speed and ratio.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Better  Level = 7
	Best    Level = 9
)

// Codec creates compressing writers and decompressing readers.
// Implementations are safe for concurrent use.
type Codec interface {
	// NewWriter returns a writer compressing into w. Close flushes the
	// stream without closing w.
	NewWriter(w io.Writer) (io.WriteCloser, error)
	// NewReader returns a reader decompressing r.
	NewReader(r io.Reader) (io.ReadCloser, error)
	// Extension is the file suffix including the dot, empty for None.
	Extension() string
	Algorithm() Algorithm
}

// ParseAlgorithm validates a configured algorithm name. Empty means None.
func ParseAlgorithm(s string) (Algorithm, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None, nil
	}
	for _, a := range Algorithms() {
		if string(a) == s {
			return a, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q", s).
		WithDetail("allowed", Algorithms())
}

// NewCodec creates the codec for algorithm at level.
func NewCodec(algorithm Algorithm, level Level) (Codec, error) {
	switch algorithm {
	case None, "":
		return noneCodec{}, nil
	case Gzip:
		return gzipCodec{level: mapGzipLevel(level)}, nil
	case Zstd:
		return newZstdCodec(level), nil
	case LZ4:
		return lz4Codec{level: mapLZ4Level(level)}, nil
	case S2:
		return s2Codec{level: level}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unsupported compression %q", algorithm)
	}
}

// ForExtension returns the codec matching the suffix of name.
func ForExtension(name string) Codec {
	ext := path.Ext(name)
	for _, a := range Algorithms() {
		c, _ := NewCodec(a, Default)
		if c.Extension() != "" && c.Extension() == ext {
			return c
		}
	}
	return noneCodec{}
}

// Compress compresses data in memory.
func Compress(c Codec, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := c.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decompresses data in memory.
func Decompress(c Codec, data []byte) ([]byte, error) {
	r, err := c.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type noneCodec struct{}

func (noneCodec) NewWriter(w io.Writer) (io.WriteCloser, error) { return nopWriteCloser{w}, nil }
func (noneCodec) NewReader(r io.Reader) (io.ReadCloser, error)  { return io.NopCloser(r), nil }
func (noneCodec) Extension() string                             { return "" }
func (noneCodec) Algorithm() Algorithm                          { return None }

type gzipCodec struct{ level int }

func (c gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, c.level)
}

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) }
func (gzipCodec) Extension() string                            { return ".gz" }
func (gzipCodec) Algorithm() Algorithm                         { return Gzip }

// zstdCodec pools decoders; encoders are bound to their destination.
type zstdCodec struct {
	level   zstd.EncoderLevel
	decoder *sync.Pool
}

func newZstdCodec(level Level) *zstdCodec {
	return &zstdCodec{
		level: mapZstdLevel(level),
		decoder: &sync.Pool{New: func() interface{} {
			dec, _ := zstd.NewReader(nil)
			return dec
		}},
	}
}

func (c *zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(c.level))
}

func (c *zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec := c.decoder.Get().(*zstd.Decoder)
	if err := dec.Reset(r); err != nil {
		c.decoder.Put(dec)
		return nil, err
	}
	return &pooledDecoder{Decoder: dec, pool: c.decoder}, nil
}

func (*zstdCodec) Extension() string    { return ".zst" }
func (*zstdCodec) Algorithm() Algorithm { return Zstd }

type pooledDecoder struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (d *pooledDecoder) Close() error {
	if d.Decoder == nil {
		return nil
	}
	_ = d.Decoder.Reset(nil)
	d.pool.Put(d.Decoder)
	d.Decoder = nil
	return nil
}

type lz4Codec struct{ level lz4.CompressionLevel }

func (c lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	if err := zw.Apply(lz4.CompressionLevelOption(c.level)); err != nil {
		return nil, err
	}
	return zw, nil
}

func (lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(lz4.NewReader(r)), nil
}

func (lz4Codec) Extension() string    { return ".lz4" }
func (lz4Codec) Algorithm() Algorithm { return LZ4 }

type s2Codec struct{ level Level }

func (c s2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	var opts []s2.WriterOption
	switch {
	case c.level >= Best:
		opts = append(opts, s2.WriterBestCompression())
	case c.level >= Better:
		opts = append(opts, s2.WriterBetterCompression())
	}
	return s2.NewWriter(w, opts...), nil
}

func (s2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(s2.NewReader(r)), nil
}

func (s2Codec) Extension() string    { return ".s2" }
func (s2Codec) Algorithm() Algorithm { return S2 }

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
