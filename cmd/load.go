package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/outcache/internal/buildcache"
	"github.com/Norgate-AV/outcache/internal/codes"
	"github.com/Norgate-AV/outcache/internal/workunit"
)

func newLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load UNIT...",
		Short: "Restore the outputs of work units from the cache",
		Long: `Restore the declared outputs of each unit file from the entry stored under its cache key.
Exits with code 3 if any unit had no usable entry.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUnits(cmd, args, func(ctx context.Context, a *app, units []*workunit.Unit) error {
				var misses atomic.Int64

				err := a.forEachUnit(ctx, units, func(ctx context.Context, u *workunit.Unit) error {
					hit, err := a.load(ctx, u)
					if err != nil {
						return err
					}

					if !hit {
						misses.Add(1)
						a.printf("%s: miss\n", u.Name)
						return nil
					}

					a.printf("%s: hit\n", u.Name)
					return nil
				})
				if err != nil {
					return err
				}

				if n := misses.Load(); n > 0 {
					return codes.WithCode(codes.CacheMiss, fmt.Errorf("%d of %d units not found in cache", n, len(units)))
				}

				return nil
			})
		},
	}
}

// load restores u from the cache. A key that cannot be cached is a miss.
func (a *app) load(ctx context.Context, u *workunit.Unit) (bool, error) {
	key, err := a.keyFor(u)
	if err != nil {
		return false, err
	}

	if !key.Valid() {
		a.logger.Info("cache key is not cacheable", "unit", u.Name)
		return false, nil
	}

	specs, err := u.Specs()
	if err != nil {
		return false, err
	}

	_, hit, err := a.controller.Load(ctx, a.loadCommand(u, key, specs))
	if errors.Is(err, buildcache.ErrUnrecoverable) {
		return false, codes.WithCode(codes.Unrecoverable, err)
	}

	return hit, err
}
