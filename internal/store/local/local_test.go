package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/outcache/internal/store"
)

const (
	keyA = "aa11223344556677889900aabbccddeeff00112233445566778899aabbccddee"
	keyB = "bb11223344556677889900aabbccddeeff00112233445566778899aabbccddee"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	return s
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()

	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)

	return string(data)
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	// Miss before anything is stored
	_, err := s.Get(ctx, keyA)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Store and load back
	err = s.Put(ctx, keyA, strings.NewReader("archive bytes"), 13)
	require.NoError(t, err)

	rc, err := s.Get(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", readAll(t, rc))

	// Blob lives under a two character fan-out directory
	_, err = os.Stat(filepath.Join(s.Root(), "objects", "aa", keyA))
	assert.NoError(t, err)

	// Overwrite replaces the content
	err = s.Put(ctx, keyA, strings.NewReader("newer"), -1)
	require.NoError(t, err)

	rc, err = s.Get(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, "newer", readAll(t, rc))
}

func TestStore_PutSizeMismatch(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	err := s.Put(ctx, keyA, strings.NewReader("abc"), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")

	// Nothing committed, no temp files left behind
	_, err = s.Get(ctx, keyA)
	assert.ErrorIs(t, err, store.ErrNotFound)

	files, err := os.ReadDir(filepath.Join(s.Root(), "objects", "aa"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStore_InvalidKey(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	for _, key := range []string{"", "ab", "../../etc/passwd", "zzzz"} {
		err := s.Put(ctx, key, strings.NewReader("x"), 1)
		assert.Error(t, err, "key %q", key)

		_, err = s.Get(ctx, key)
		assert.Error(t, err, "key %q", key)
		assert.NotErrorIs(t, err, store.ErrNotFound)
	}
}

func TestStore_MissingObjectIsMiss(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Put(ctx, keyA, strings.NewReader("x"), 1))
	require.NoError(t, os.Remove(filepath.Join(s.Root(), "objects", "aa", keyA)))

	_, err := s.Get(ctx, keyA)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The stale index record is gone too
	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Entries)
}

func TestStore_StatsAndClear(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Put(ctx, keyA, strings.NewReader("12345"), 5))
	require.NoError(t, s.Put(ctx, keyB, strings.NewReader("123"), 3))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 2, Size: 8}, stats)

	require.NoError(t, s.Clear())

	stats, err = s.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)

	_, err = s.Get(ctx, keyA)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Still usable after clearing
	require.NoError(t, s.Put(ctx, keyA, strings.NewReader("again"), 5))
}

func TestStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	s.now = func() time.Time { return clock }

	require.NoError(t, s.Put(ctx, keyA, strings.NewReader("old"), 3))

	clock = start.Add(48 * time.Hour)
	require.NoError(t, s.Put(ctx, keyB, strings.NewReader("fresh"), 5))

	removed, err := s.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, Stats{Entries: 1, Size: 3}, removed)

	_, err = s.Get(ctx, keyA)
	assert.ErrorIs(t, err, store.ErrNotFound)

	rc, err := s.Get(ctx, keyB)
	require.NoError(t, err)
	assert.Equal(t, "fresh", readAll(t, rc))
}

func TestStore_GetRefreshesAccessTime(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := start
	s.now = func() time.Time { return clock }

	require.NoError(t, s.Put(ctx, keyA, strings.NewReader("x"), 1))

	clock = start.Add(48 * time.Hour)
	rc, err := s.Get(ctx, keyA)
	require.NoError(t, err)
	rc.Close()

	// Recently used, so it survives
	removed, err := s.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed.Entries)

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Created.Equal(start))
	assert.True(t, entries[0].Accessed.Equal(clock))
}

func TestStore_ReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, keyA, strings.NewReader("persisted"), 9))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	rc, err := s.Get(ctx, keyA)
	require.NoError(t, err)
	assert.Equal(t, "persisted", readAll(t, rc))
}
