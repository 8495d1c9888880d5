package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/outcache/internal/buildcache"
	"github.com/Norgate-AV/outcache/internal/codes"
	"github.com/Norgate-AV/outcache/internal/workunit"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run UNIT...",
		Short: "Run work units, reusing cached outputs when possible",
		Long: `For each unit file, restore its outputs from the cache when an entry exists.
Otherwise run its command and store the outputs it produced.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUnits(cmd, args, func(ctx context.Context, a *app, units []*workunit.Unit) error {
				return a.forEachUnit(ctx, units, a.run)
			})
		},
	}
}

func (a *app) run(ctx context.Context, u *workunit.Unit) error {
	if len(u.Command) == 0 {
		return codes.WithCode(codes.Usage, fmt.Errorf("%s: no command to run", u.Name))
	}

	key, err := a.keyFor(u)
	if err != nil {
		return err
	}

	specs, err := u.Specs()
	if err != nil {
		return err
	}

	if key.Valid() {
		_, hit, err := a.controller.Load(ctx, a.loadCommand(u, key, specs))
		switch {
		case errors.Is(err, buildcache.ErrUnrecoverable):
			return codes.WithCode(codes.Unrecoverable, err)
		case err != nil:
			a.logger.Warn("cache unavailable, running work unit", "unit", u.Name, "error", err)
		case hit:
			a.printf("%s: FROM-CACHE\n", u.Name)
			return nil
		}
	} else {
		a.logger.Info("cache key is not cacheable, running without cache", "unit", u.Name)
	}

	result, err := a.runner.Run(ctx, u.Dir, u.Command)
	if err != nil {
		return codes.WithCode(codes.CommandFailed, fmt.Errorf("%s: %w", u.Name, err))
	}

	if key.Valid() {
		// A failed store only costs a future hit
		if _, err := a.controller.Store(ctx, a.storeCommand(key, specs, result.Elapsed)); err != nil {
			a.logger.Warn("failed to store outputs", "unit", u.Name, "error", err)
		}
	}

	a.printf("%s: EXECUTED\n", u.Name)

	return nil
}
