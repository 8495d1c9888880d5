package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/outcache/internal/codes"
	"github.com/Norgate-AV/outcache/internal/version"
)

// NewRootCmd builds the outcache command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "outcache",
		Short:        "Build output cache",
		Long:         `Cache the outputs of build steps by a key derived from their inputs, and restore them instead of running the step again.`,
		SilenceUsage: true,
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)
	rootCmd.PersistentFlags().String("cache-dir", "", "Cache directory (default .outcache)")
	rootCmd.PersistentFlags().String("compression", "", "Archive compression: none, gzip, zstd or a comma separated chain")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: auto, text, json")
	rootCmd.PersistentFlags().Bool("debug-keys", false, "Log every component of each cache key")
	rootCmd.PersistentFlags().IntP("jobs", "j", 0, "Number of work units processed at once")
	rootCmd.PersistentFlags().Bool("skip-empty", false, "Do not store entries without outputs")
	rootCmd.PersistentFlags().Bool("metrics", false, "Write cache metrics to stderr on exit")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(
		newKeyCmd(),
		newStoreCmd(),
		newLoadCmd(),
		newRunCmd(),
		newInspectCmd(),
		newStatsCmd(),
		newClearCmd(),
		newPruneCmd(),
	)

	return rootCmd
}

func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		os.Exit(codes.FromError(err))
	}
}
