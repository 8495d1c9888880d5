// Package local provides a Store kept in a directory on the local machine.
//
// Entries are kept in two places:
//
//  1. The blob itself in objects/<first two key characters>/<key>
//  2. An index record (size, creation and last access time) in BoltDB
//
// Blobs are written to a temporary file and renamed into place, so a reader
// never sees a partially written entry.
package local

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/Norgate-AV/outcache/internal/store"
)

const (
	// DefaultDir is the default cache directory name
	DefaultDir = ".outcache"

	// bucketName is the BoltDB bucket name for index records
	bucketName = "entries"

	dbName     = "index.db"
	objectsDir = "objects"
)

var _ store.Store = (*Store)(nil)

// Store keeps cache entries in a local directory
type Store struct {
	db   *bbolt.DB
	root string
	now  func() time.Time
}

// Open opens or creates a store in dir.
// If dir is empty, uses DefaultDir in the current working directory.
func Open(dir string) (*Store, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}

		dir = filepath.Join(cwd, DefaultDir)
	}

	// Ensure cache directory exists
	if err := os.MkdirAll(filepath.Join(dir, objectsDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Open BoltDB
	db, err := bbolt.Open(filepath.Join(dir, dbName), 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	// Create bucket if it doesn't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &Store{
		db:   db,
		root: dir,
		now:  time.Now,
	}, nil
}

// Close closes the index database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Root returns the cache directory
func (s *Store) Root() string {
	return s.root
}

// Get opens the blob for key and refreshes its access time
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := checkKey(key); err != nil {
		return nil, err
	}

	entry, err := s.lookup(key)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, store.ErrNotFound
	}

	f, err := os.Open(s.objectPath(key))
	if os.IsNotExist(err) {
		// Index and objects disagree; forget the entry
		_ = s.forget(key)
		return nil, store.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open cache entry: %w", err)
	}

	entry.Accessed = s.now()
	if err := s.record(*entry); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

// Put stores r under key, replacing any previous entry
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := checkKey(key); err != nil {
		return err
	}

	target := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	if size >= 0 && written != size {
		tmp.Close()
		return fmt.Errorf("cache entry size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}

	now := s.now()

	return s.record(Entry{Key: key, Size: written, Created: now, Accessed: now})
}

// Entries returns the index records of all entries
func (s *Store) Entries() ([]Entry, error) {
	var entries []Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		return b.ForEach(func(_, data []byte) error {
			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}

			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cache index: %w", err)
	}

	return entries, nil
}

// Stats returns the number of entries and their total size
func (s *Store) Stats() (Stats, error) {
	entries, err := s.Entries()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Entries: len(entries)}
	for _, entry := range entries {
		stats.Size += entry.Size
	}

	return stats, nil
}

// Clear removes all entries
func (s *Store) Clear() error {
	// Clear BoltDB
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}

		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache index: %w", err)
	}

	// Remove objects directory
	if err := os.RemoveAll(filepath.Join(s.root, objectsDir)); err != nil {
		return fmt.Errorf("failed to remove cache objects: %w", err)
	}

	return os.MkdirAll(filepath.Join(s.root, objectsDir), 0o755)
}

// Prune removes entries not accessed within maxAge
func (s *Store) Prune(maxAge time.Duration) (Stats, error) {
	entries, err := s.Entries()
	if err != nil {
		return Stats{}, err
	}

	cutoff := s.now().Add(-maxAge)

	var removed Stats
	for _, entry := range entries {
		if !entry.Accessed.Before(cutoff) {
			continue
		}

		if err := os.Remove(s.objectPath(entry.Key)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove cache entry %s: %w", entry.Key, err)
		}

		if err := s.forget(entry.Key); err != nil {
			return removed, err
		}

		removed.Entries++
		removed.Size += entry.Size
	}

	return removed, nil
}

func (s *Store) lookup(key string) (*Entry, error) {
	var entry *Entry

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		data := b.Get([]byte(key))
		if data == nil {
			return nil // Cache miss
		}

		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cache index: %w", err)
	}

	return entry, nil
}

func (s *Store) record(entry Entry) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		return b.Put([]byte(entry.Key), data)
	})
	if err != nil {
		return fmt.Errorf("failed to update cache index: %w", err)
	}

	return nil
}

func (s *Store) forget(key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to update cache index: %w", err)
	}

	return nil
}

// objectPath returns the blob path for a given key
func (s *Store) objectPath(key string) string {
	return filepath.Join(s.root, objectsDir, key[:2], key)
}

// Keys are hex so they are always safe to use as file names
func checkKey(key string) error {
	if len(key) < 4 {
		return fmt.Errorf("invalid cache key %q", key)
	}

	if _, err := hex.DecodeString(key); err != nil {
		return errors.Join(fmt.Errorf("invalid cache key %q", key), err)
	}

	return nil
}
