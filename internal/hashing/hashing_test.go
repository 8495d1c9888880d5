package hashing

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_Deterministic(t *testing.T) {
	build := func() HashCode {
		b := NewBuilder(NewKeyHash())
		b.PutString("compile")
		b.PutHash(HashCode{1, 2, 3})
		b.PutInt(42)
		b.PutBool(true)

		return b.Hash()
	}

	assert.Equal(t, build(), build())
	assert.Len(t, build(), sha256.Size)
}

func TestBuilder_Framing(t *testing.T) {
	b1 := NewBuilder(NewKeyHash())
	b1.PutString("ab")
	b1.PutString("c")

	b2 := NewBuilder(NewKeyHash())
	b2.PutString("a")
	b2.PutString("bc")

	assert.NotEqual(t, b1.Hash(), b2.Hash(), "length prefixes should keep boundaries distinct")
}

func TestBuilder_OrderSensitive(t *testing.T) {
	b1 := NewBuilder(NewKeyHash())
	b1.PutString("a")
	b1.PutString("b")

	b2 := NewBuilder(NewKeyHash())
	b2.PutString("b")
	b2.PutString("a")

	assert.NotEqual(t, b1.Hash(), b2.Hash())
}

func TestBuilder_NilHashDiffersFromEmptyString(t *testing.T) {
	b1 := NewBuilder(NewKeyHash())
	b1.PutHash(nil)
	b1.PutString("x")

	b2 := NewBuilder(NewKeyHash())
	b2.PutString("x")

	assert.NotEqual(t, b1.Hash(), b2.Hash())
}

func TestHashCode_StringRoundTrip(t *testing.T) {
	code := Sum(NewKeyHash, []byte("hello"))

	parsed, err := ParseHashCode(code.String())
	require.NoError(t, err)
	assert.True(t, code.Equal(parsed))

	_, err = ParseHashCode("not-hex")
	assert.Error(t, err)

	assert.True(t, HashCode(nil).IsZero())
	assert.Equal(t, "", HashCode(nil).String())
}

func TestCopy_HashesWhileCopying(t *testing.T) {
	content := bytes.Repeat([]byte("0123456789"), 20_000) // spans several buffers

	var dst bytes.Buffer
	code, n, err := Copy(&dst, bytes.NewReader(content), xxhash.New())
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, dst.Bytes())

	direct := xxhash.New()
	direct.Write(content)
	assert.Equal(t, HashCode(direct.Sum(nil)), code)
}

type writerToReader struct {
	t *testing.T
	r *bytes.Reader
}

func (w *writerToReader) Read(p []byte) (int, error) { return w.r.Read(p) }

func (w *writerToReader) WriteTo(io.Writer) (int64, error) {
	w.t.Fatal("WriteTo must not be used")
	return 0, nil
}

func TestCopy_IgnoresWriterTo(t *testing.T) {
	content := bytes.Repeat([]byte("abc"), 50_000)

	var dst bytes.Buffer
	code, n, err := Copy(&dst, &writerToReader{t: t, r: bytes.NewReader(content)}, xxhash.New())
	require.NoError(t, err)

	assert.Equal(t, int64(len(content)), n)
	assert.Equal(t, content, dst.Bytes())
	assert.Equal(t, Sum(DefaultContentHash, content), code)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if len(p) > w.after {
		return w.after, errors.New("disk full")
	}

	w.after -= len(p)
	return len(p), nil
}

func TestCopy_WriteError(t *testing.T) {
	_, n, err := Copy(&failingWriter{after: 10}, bytes.NewReader(make([]byte, 100)), xxhash.New())
	require.Error(t, err)
	assert.Equal(t, int64(10), n)
}

func TestHashFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join("dir", "file.txt")
	require.NoError(t, afero.WriteFile(fs, path, []byte("test content"), 0o644))

	code, err := HashFile(fs, path, DefaultContentHash)
	require.NoError(t, err)
	assert.Equal(t, Sum(DefaultContentHash, []byte("test content")), code)

	_, err = HashFile(fs, "missing.txt", DefaultContentHash)
	assert.Error(t, err)
}
