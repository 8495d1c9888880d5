// Package compress layers stream compression over archive packers
package compress

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec is a streaming compression algorithm
type Codec interface {
	Name() string
	// NewWriter must not write to w before the first Write or Close
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// None passes bytes through unchanged
type None struct{}

func (None) Name() string { return "none" }

func (None) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func (None) NewReader(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// Gzip compresses with DEFLATE in gzip framing
type Gzip struct {
	// Level is a gzip level; zero means gzip.DefaultCompression
	Level int
}

func (Gzip) Name() string { return "gzip" }

func (g Gzip) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := g.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}

	gw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return nil, err
	}

	return gw, nil
}

func (Gzip) NewReader(r io.Reader) (io.ReadCloser, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}

	return gr, nil
}

// Zstd compresses with Zstandard
type Zstd struct {
	Level zstd.EncoderLevel
}

func (Zstd) Name() string { return "zstd" }

func (z Zstd) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := z.Level
	if level == 0 {
		level = zstd.SpeedDefault
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}

	return enc, nil
}

func (Zstd) NewReader(r io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}

	return dec.IOReadCloser(), nil
}

// Chain stacks codecs. The first codec is applied to the raw stream and the
// last one produces the outermost layer.
type Chain []Codec

func (c Chain) Name() string {
	names := make([]string, len(c))
	for i, codec := range c {
		names[i] = codec.Name()
	}

	return strings.Join(names, ",")
}

func (c Chain) NewWriter(w io.Writer) (io.WriteCloser, error) {
	writers := make([]io.WriteCloser, 0, len(c))

	out := w
	for i := len(c) - 1; i >= 0; i-- {
		cw, err := c[i].NewWriter(out)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s writer: %w", c[i].Name(), err)
		}

		writers = append(writers, cw)
		out = cw
	}

	return &chainWriter{Writer: out, writers: writers}, nil
}

func (c Chain) NewReader(r io.Reader) (io.ReadCloser, error) {
	readers := make([]io.ReadCloser, 0, len(c))

	in := r
	for i := len(c) - 1; i >= 0; i-- {
		cr, err := c[i].NewReader(in)
		if err != nil {
			_ = closeAll(readers)
			return nil, fmt.Errorf("failed to create %s reader: %w", c[i].Name(), err)
		}

		readers = append(readers, cr)
		in = cr
	}

	return &chainReader{Reader: in, readers: readers}, nil
}

// chainWriter writes into the innermost layer; writers is ordered outermost first
type chainWriter struct {
	io.Writer
	writers []io.WriteCloser
}

// Close flushes from the innermost layer outwards
func (w *chainWriter) Close() error {
	for i := len(w.writers) - 1; i >= 0; i-- {
		if err := w.writers[i].Close(); err != nil {
			return err
		}
	}

	return nil
}

type chainReader struct {
	io.Reader
	readers []io.ReadCloser
}

func (r *chainReader) Close() error {
	return closeAll(r.readers)
}

func closeAll(closers []io.ReadCloser) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// Parse builds a codec from a comma separated list such as "gzip" or
// "gzip,zstd". An empty string or "none" disables compression.
func Parse(s string) (Codec, error) {
	var chain Chain

	for _, name := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "", "none":
			continue
		case "gzip", "gz":
			chain = append(chain, Gzip{})
		case "zstd", "zstandard":
			chain = append(chain, Zstd{})
		default:
			return nil, fmt.Errorf("unknown compression %q", name)
		}
	}

	switch len(chain) {
	case 0:
		return None{}, nil
	case 1:
		return chain[0], nil
	default:
		return chain, nil
	}
}
