package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/sync/errgroup"

	"github.com/Norgate-AV/outcache/internal/archive"
	"github.com/Norgate-AV/outcache/internal/buildcache"
	"github.com/Norgate-AV/outcache/internal/cachekey"
	"github.com/Norgate-AV/outcache/internal/codes"
	"github.com/Norgate-AV/outcache/internal/compress"
	"github.com/Norgate-AV/outcache/internal/config"
	"github.com/Norgate-AV/outcache/internal/executor"
	"github.com/Norgate-AV/outcache/internal/logging"
	"github.com/Norgate-AV/outcache/internal/origin"
	"github.com/Norgate-AV/outcache/internal/property"
	"github.com/Norgate-AV/outcache/internal/store/local"
	"github.com/Norgate-AV/outcache/internal/telemetry"
	"github.com/Norgate-AV/outcache/internal/version"
	"github.com/Norgate-AV/outcache/internal/workunit"
)

// app holds everything a command needs, built from the loaded config
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	fs         afero.Fs
	store      *local.Store
	controller *buildcache.Controller
	origins    *origin.Factory
	runner     *executor.Runner
	provider   *sdkmetric.MeterProvider

	mu  sync.Mutex
	out io.Writer
}

func newApp(cmd *cobra.Command, cfg *config.Config) (*app, error) {
	logger, err := logging.New(cfg.Level, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	s, err := local.Open(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		fs:      afero.NewOsFs(),
		store:   s,
		origins: origin.NewFactory(version.Version),
		runner:  executor.NewRunner(executor.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()), executor.WithLogger(logger)),
		out:     cmd.OutOrStdout(),
	}

	metrics := telemetry.Noop()
	if cfg.Metrics {
		a.provider, err = telemetry.NewStdoutProvider(cmd.ErrOrStderr())
		if err != nil {
			s.Close()
			return nil, err
		}

		metrics, err = telemetry.New(a.provider.Meter(telemetry.ScopeName))
		if err != nil {
			a.Close(cmd.Context())
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	a.controller = buildcache.NewController(s,
		buildcache.WithLogger(logger),
		buildcache.WithMetrics(metrics),
		buildcache.WithSkipEmpty(cfg.SkipEmpty),
	)

	return a, nil
}

// Close flushes metrics and closes the store
func (a *app) Close(ctx context.Context) error {
	var errs []error

	if a.provider != nil {
		errs = append(errs, a.provider.Shutdown(ctx))
	}

	errs = append(errs, a.store.Close())

	return errors.Join(errs...)
}

func (a *app) printf(format string, args ...any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintf(a.out, format, args...)
}

func (a *app) packer() archive.EntryPacker {
	return compress.NewPacker(archive.NewTarPacker(a.fs), a.cfg.Codec)
}

func (a *app) keyFor(u *workunit.Unit) (cachekey.Key, error) {
	var kb cachekey.KeyBuilder = cachekey.NewBuilder()
	if a.cfg.DebugKeys {
		kb = cachekey.NewDebugBuilder(kb, a.logger, slog.LevelInfo, u.Name)
	}

	key, err := u.Key(a.fs, kb)
	if err != nil {
		return cachekey.Key{}, fmt.Errorf("failed to compute cache key for %s: %w", u.Name, err)
	}

	return key, nil
}

func (a *app) loadCommand(u *workunit.Unit, key cachekey.Key, specs []property.Spec) *buildcache.LoadCommand {
	return &buildcache.LoadCommand{
		Key:        key.String(),
		Specs:      specs,
		Packer:     a.packer(),
		Fs:         a.fs,
		Origins:    a.origins,
		Logger:     a.logger.With("unit", u.Name),
		LocalState: u.LocalStatePaths(),
		OnOutputsRemoved: func(specs []property.Spec) {
			a.logger.Debug("removed outputs after failed load", "unit", u.Name, "properties", len(specs))
		},
	}
}

func (a *app) storeCommand(key cachekey.Key, specs []property.Spec, elapsed time.Duration) *buildcache.StoreCommand {
	return &buildcache.StoreCommand{
		Key:     key.String(),
		Specs:   specs,
		Packer:  a.packer(),
		Origins: a.origins,
		Elapsed: elapsed,
	}
}

// loadUnits reads every unit file up front so a typo fails before any work
func (a *app) loadUnits(paths []string) ([]*workunit.Unit, error) {
	units := make([]*workunit.Unit, 0, len(paths))

	for _, path := range paths {
		u, err := workunit.Load(a.fs, path)
		if err != nil {
			return nil, err
		}

		units = append(units, u)
	}

	return units, nil
}

// forEachUnit runs fn for every unit, at most cfg.Jobs at a time
func (a *app) forEachUnit(ctx context.Context, units []*workunit.Unit, fn func(ctx context.Context, u *workunit.Unit) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Jobs)

	for _, u := range units {
		g.Go(func() error {
			return fn(ctx, u)
		})
	}

	return g.Wait()
}

// withUnits loads config and units for a command taking unit files, then
// runs fn with a ready app
func withUnits(cmd *cobra.Command, args []string, fn func(ctx context.Context, a *app, units []*workunit.Unit) error) error {
	cfg, err := config.NewLoader().LoadForUnits(cmd, args)
	if err != nil {
		return codes.WithCode(codes.Usage, err)
	}

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}

	defer a.Close(cmd.Context())

	units, err := a.loadUnits(args)
	if err != nil {
		return codes.WithCode(codes.Usage, err)
	}

	return fn(cmd.Context(), a, units)
}

// withApp loads config from the working directory and runs fn with a ready app
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.NewLoader().LoadForDir(cmd, cwd)
	if err != nil {
		return codes.WithCode(codes.Usage, err)
	}

	a, err := newApp(cmd, cfg)
	if err != nil {
		return err
	}

	defer a.Close(cmd.Context())

	return fn(cmd.Context(), a)
}
