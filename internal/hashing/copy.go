package hashing

import (
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/spf13/afero"
)

// Size of the buffers used to stream file contents
const bufferSize = 64 * 1024

// bufferPool hands each copying goroutine its own scratch buffer
var bufferPool = sync.Pool{
	New: func() any {
		buffer := make([]byte, bufferSize)
		return &buffer
	},
}

// Writer forwards writes to W and feeds the same bytes into H
type Writer struct {
	W io.Writer
	H hash.Hash
	N int64
}

// NewWriter creates a tee writer over w
func NewWriter(w io.Writer, h hash.Hash) *Writer {
	return &Writer{W: w, H: h}
}

// Write implements io.Writer. Only bytes accepted by W are hashed.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.W.Write(p)
	if n > 0 {
		w.H.Write(p[:n])
		w.N += int64(n)
	}

	return n, err
}

// Sum returns the hash of everything written so far
func (w *Writer) Sum() HashCode {
	return HashCode(w.H.Sum(nil))
}

// Copy streams src into dst while hashing, in a single pass
func Copy(dst io.Writer, src io.Reader, h hash.Hash) (HashCode, int64, error) {
	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	// Hide io.WriterTo (e.g. *os.File) so CopyBuffer uses the pooled buffer
	tee := NewWriter(dst, h)
	if _, err := io.CopyBuffer(tee, readerOnly{src}, *bufPtr); err != nil {
		return nil, tee.N, err
	}

	return tee.Sum(), tee.N, nil
}

type readerOnly struct {
	io.Reader
}

// HashReader hashes everything readable from r
func HashReader(r io.Reader, fn HashFunc) (HashCode, error) {
	code, _, err := Copy(io.Discard, r, fn())
	if err != nil {
		return nil, fmt.Errorf("failed to hash content: %w", err)
	}

	return code, nil
}

// HashFile hashes a file's content
func HashFile(fs afero.Fs, path string, fn HashFunc) (HashCode, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	return HashReader(f, fn)
}
