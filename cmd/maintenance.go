package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				stats, err := a.store.Stats()
				if err != nil {
					return err
				}

				a.printf("Cache directory: %s\n", a.store.Root())
				a.printf("Entries: %d\n", stats.Entries)
				a.printf("Total size: %s\n", formatSize(stats.Size))

				return nil
			})
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				if err := a.store.Clear(); err != nil {
					return err
				}

				a.printf("Cache cleared\n")
				return nil
			})
		},
	}
}

func newPruneCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cache entries not used recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			return withApp(cmd, func(_ context.Context, a *app) error {
				removed, err := a.store.Prune(olderThan)
				if err != nil {
					return err
				}

				a.printf("Removed %d entries (%s)\n", removed.Entries, formatSize(removed.Size))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Remove entries not loaded or stored within this duration")

	return cmd
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
