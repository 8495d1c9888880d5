package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Norgate-AV/outcache/internal/archive"
	"github.com/Norgate-AV/outcache/internal/cachekey"
	"github.com/Norgate-AV/outcache/internal/codes"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect KEY",
		Short: "List the entries of a stored archive",
		Long:  `List the entries of the archive stored under KEY, given as hex or as a sha256: digest, without unpacking it.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cachekey.ParseDigest(args[0])
			if err != nil {
				return codes.WithCode(codes.Usage, fmt.Errorf("invalid cache key %q: %w", args[0], err))
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				return a.inspect(ctx, key)
			})
		},
	}
}

func (a *app) inspect(ctx context.Context, key string) error {
	rc, err := a.store.Get(ctx, key)
	if err != nil {
		return codes.WithCode(codes.CacheMiss, err)
	}

	defer rc.Close()

	r, err := a.cfg.Codec.NewReader(rc)
	if err != nil {
		return fmt.Errorf("failed to decompress %s with %s: %w", key, a.cfg.Codec.Name(), err)
	}

	defer r.Close()

	entries, err := archive.List(r)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KIND\tPROPERTY\tPATH\tMODE\tSIZE")

	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%#o\t%d\n", e.Kind, e.Property, e.Path, e.Mode, e.Size)
	}

	return w.Flush()
}
