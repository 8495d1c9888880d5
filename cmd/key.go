package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/outcache/internal/workunit"
)

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key UNIT...",
		Short: "Print the cache key of work units",
		Long:  `Compute and print the cache key of each unit file. Keys that cannot be cached print as INVALID.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUnits(cmd, args, func(ctx context.Context, a *app, units []*workunit.Unit) error {
				return a.forEachUnit(ctx, units, func(_ context.Context, u *workunit.Unit) error {
					key, err := a.keyFor(u)
					if err != nil {
						return err
					}

					if !key.Valid() {
						a.printf("%s\t%s\n", key.String(), u.Name)
						return nil
					}

					a.printf("%s\t%s\n", key.Digest(), u.Name)
					return nil
				})
			})
		},
	}
}
