// Package buildcache loads work unit outputs from a cache entry and stores
// them into one, deciding what counts as a hit, a miss or a fatal failure.
package buildcache

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/afero"

	"github.com/Norgate-AV/outcache/internal/archive"
	"github.com/Norgate-AV/outcache/internal/origin"
	"github.com/Norgate-AV/outcache/internal/outputs"
	"github.com/Norgate-AV/outcache/internal/property"
	"github.com/Norgate-AV/outcache/internal/snapshot"
)

// LoadResult describes a successful load
type LoadResult struct {
	// EntryCount counts every archive entry read, metadata included
	EntryCount int
	// Origin describes the execution that produced the entry
	Origin origin.Metadata
	// Snapshots holds the restored outputs, per property
	Snapshots map[string]snapshot.Snapshot
}

// StoreResult describes a packed entry
type StoreResult struct {
	// EntryCount counts every archive entry written, metadata included
	EntryCount int
	// ArtifactEntryCount leaves out metadata and missing-property markers.
	// Zero means there was nothing worth caching.
	ArtifactEntryCount int
	// Snapshots holds the outputs hashed while packing, per property
	Snapshots map[string]snapshot.Snapshot
}

// LoadCommand restores the outputs of one work unit from a cache entry
type LoadCommand struct {
	Key     string
	Specs   []property.Spec
	Packer  archive.EntryPacker
	Fs      afero.Fs
	Origins *origin.Factory
	Logger  *slog.Logger

	// OnOutputsRemoved is called after a failed load removed the outputs
	OnOutputsRemoved func(specs []property.Spec)

	// LocalState lists scratch paths unrelated to the outputs.
	// They are deleted after every load, successful or not.
	LocalState []string
}

// Load prepares every output location, then unpacks r into them.
//
// When unpacking fails part way, everything already written is removed and
// the unpack error is returned. If removing fails too, the result is an
// *UnrecoverableError.
func (c *LoadCommand) Load(r io.Reader) (LoadResult, error) {
	defer c.deleteLocalState()

	if err := outputs.NewPreparer(c.Fs).PrepareAll(c.Specs); err != nil {
		return LoadResult{}, err
	}

	journal := &archive.Journal{}

	var meta origin.Metadata
	res, err := c.Packer.Unpack(c.Specs, r, c.Origins.Reader(&meta), journal)
	if err != nil {
		return LoadResult{}, c.cleanup(err, journal)
	}

	return LoadResult{
		EntryCount: res.EntryCount,
		Origin:     meta,
		Snapshots:  res.Snapshots,
	}, nil
}

func (c *LoadCommand) cleanup(cause error, journal *archive.Journal) error {
	if err := outputs.NewRemover(c.Fs).RemoveAll(c.Specs, journal); err != nil {
		return &UnrecoverableError{Key: c.Key, Cause: cause, CleanupErr: err}
	}

	if c.OnOutputsRemoved != nil {
		c.OnOutputsRemoved(c.Specs)
	}

	return fmt.Errorf("failed to load cache entry %s: %w", c.Key, cause)
}

func (c *LoadCommand) deleteLocalState() {
	for _, path := range c.LocalState {
		if err := c.Fs.RemoveAll(path); err != nil && !os.IsNotExist(err) {
			logger(c.Logger).Warn("failed to delete local state", "path", path, "error", err)
		}
	}
}

// StoreCommand packs the outputs of one work unit into a cache entry
type StoreCommand struct {
	Key     string
	Specs   []property.Spec
	Packer  archive.EntryPacker
	Origins *origin.Factory

	// Elapsed is how long the work unit took to produce its outputs
	Elapsed time.Duration
}

// Store packs the outputs into w
func (c *StoreCommand) Store(w io.Writer) (StoreResult, error) {
	res, err := c.Packer.Pack(c.Specs, c.Origins.Writer(c.Elapsed), w)
	if err != nil {
		return StoreResult{}, fmt.Errorf("failed to pack cache entry %s: %w", c.Key, err)
	}

	return StoreResult{
		EntryCount:         res.EntryCount,
		ArtifactEntryCount: res.ArtifactEntries(),
		Snapshots:          res.Snapshots,
	}, nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}

	return l
}
