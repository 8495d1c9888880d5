package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/outcache/internal/codes"
	"github.com/Norgate-AV/outcache/internal/workunit"
)

func newStoreCmd() *cobra.Command {
	var elapsed time.Duration

	cmd := &cobra.Command{
		Use:   "store UNIT...",
		Short: "Store the current outputs of work units",
		Long:  `Pack the declared outputs of each unit file as they are now and store them under the unit's cache key.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUnits(cmd, args, func(ctx context.Context, a *app, units []*workunit.Unit) error {
				return a.forEachUnit(ctx, units, func(ctx context.Context, u *workunit.Unit) error {
					key, err := a.keyFor(u)
					if err != nil {
						return err
					}

					if !key.Valid() {
						return codes.WithCode(codes.NotCacheable, fmt.Errorf("%s: cache key is not cacheable", u.Name))
					}

					specs, err := u.Specs()
					if err != nil {
						return err
					}

					result, err := a.controller.Store(ctx, a.storeCommand(key, specs, elapsed))
					if err != nil {
						return err
					}

					a.printf("%s: stored %d entries\n", u.Name, result.EntryCount)
					return nil
				})
			})
		},
	}

	cmd.Flags().DurationVar(&elapsed, "elapsed", 0, "How long producing the outputs took, recorded as origin metadata")

	return cmd
}
