package buildcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	"github.com/Norgate-AV/outcache/internal/store"
	"github.com/Norgate-AV/outcache/internal/telemetry"
)

// Controller moves cache entries between a Store and the commands.
// It keeps no per-key state, so loads and stores for different keys may run
// concurrently. Callers must not run two operations on the same key at once.
type Controller struct {
	store     store.Store
	fs        afero.Fs
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	skipEmpty bool
	now       func() time.Time
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics sets where outcomes are recorded
func WithMetrics(m *telemetry.Metrics) ControllerOption {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithSkipEmpty skips uploading entries that carry no outputs
func WithSkipEmpty(skip bool) ControllerOption {
	return func(c *Controller) {
		c.skipEmpty = skip
	}
}

// WithScratchFs sets the filesystem holding archives while they are packed
func WithScratchFs(fs afero.Fs) ControllerOption {
	return func(c *Controller) {
		c.fs = fs
	}
}

// NewController creates a controller on top of s
func NewController(s store.Store, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:   s,
		fs:      afero.NewOsFs(),
		logger:  slog.Default(),
		metrics: telemetry.Noop(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Load fetches the entry for cmd.Key and restores it.
//
// The boolean reports a hit. A missing entry and any ordinary load failure
// are misses: the outputs have been cleaned and the work unit should run.
// Only an unrecoverable failure or a store error is returned as an error.
func (c *Controller) Load(ctx context.Context, cmd *LoadCommand) (LoadResult, bool, error) {
	start := c.now()

	if cmd.Key == "" {
		return LoadResult{}, false, fmt.Errorf("cannot load without a cache key")
	}

	rc, err := c.store.Get(ctx, cmd.Key)
	if errors.Is(err, store.ErrNotFound) {
		c.logger.Info("cache miss", "key", cmd.Key)
		c.metrics.RecordLoad(ctx, telemetry.OutcomeMiss, 0, 0, c.now().Sub(start))
		return LoadResult{}, false, nil
	}

	if err != nil {
		c.metrics.RecordLoad(ctx, telemetry.OutcomeFailed, 0, 0, c.now().Sub(start))
		return LoadResult{}, false, fmt.Errorf("failed to read cache entry %s: %w", cmd.Key, err)
	}

	defer rc.Close()

	counter := &countingReader{r: rc}
	if cmd.Logger == nil {
		cmd.Logger = c.logger
	}

	result, err := cmd.Load(counter)
	elapsed := c.now().Sub(start)

	switch {
	case err == nil:
		c.logger.Info("cache hit",
			"key", cmd.Key,
			"entries", result.EntryCount,
			"origin", result.Origin.InvocationID,
			"origin_duration", result.Origin.ExecutionDuration,
		)
		c.metrics.RecordLoad(ctx, telemetry.OutcomeHit, result.EntryCount, counter.n, elapsed)
		return result, true, nil

	case errors.Is(err, ErrUnrecoverable):
		c.logger.Error("failed to clean up after cache load", "key", cmd.Key, "error", err)
		c.metrics.RecordLoad(ctx, telemetry.OutcomeUnrecoverable, 0, counter.n, elapsed)
		return LoadResult{}, false, err

	default:
		c.logger.Warn("could not load cache entry, treating as miss", "key", cmd.Key, "error", err)
		c.metrics.RecordLoad(ctx, telemetry.OutcomeMiss, 0, counter.n, elapsed)
		return LoadResult{}, false, nil
	}
}

// Store packs the outputs of cmd and uploads them under cmd.Key.
// The archive is staged in a scratch file so its size is known up front.
func (c *Controller) Store(ctx context.Context, cmd *StoreCommand) (StoreResult, error) {
	start := c.now()

	if cmd.Key == "" {
		return StoreResult{}, fmt.Errorf("cannot store without a cache key")
	}

	tmp, err := afero.TempFile(c.fs, "", "outcache-*.tar")
	if err != nil {
		return StoreResult{}, fmt.Errorf("failed to create scratch file: %w", err)
	}

	defer func() {
		tmp.Close()
		c.fs.Remove(tmp.Name())
	}()

	result, err := cmd.Store(tmp)
	if err != nil {
		c.metrics.RecordStore(ctx, telemetry.OutcomeFailed, 0, 0, c.now().Sub(start))
		return StoreResult{}, err
	}

	if c.skipEmpty && result.ArtifactEntryCount == 0 {
		c.logger.Info("nothing to cache, skipping store", "key", cmd.Key)
		c.metrics.RecordStore(ctx, telemetry.OutcomeSkipped, result.EntryCount, 0, c.now().Sub(start))
		return result, nil
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return StoreResult{}, fmt.Errorf("failed to size cache entry: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return StoreResult{}, fmt.Errorf("failed to rewind cache entry: %w", err)
	}

	if err := c.store.Put(ctx, cmd.Key, tmp, size); err != nil {
		c.metrics.RecordStore(ctx, telemetry.OutcomeFailed, result.EntryCount, 0, c.now().Sub(start))
		return StoreResult{}, fmt.Errorf("failed to write cache entry %s: %w", cmd.Key, err)
	}

	c.logger.Info("stored cache entry",
		"key", cmd.Key,
		"entries", result.EntryCount,
		"artifacts", result.ArtifactEntryCount,
		"size", size,
	)
	c.metrics.RecordStore(ctx, telemetry.OutcomeStored, result.EntryCount, size, c.now().Sub(start))

	return result, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
