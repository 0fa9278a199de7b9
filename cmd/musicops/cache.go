package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/musicops/cache"
)

func newCacheCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and invalidate cached responses",
	}
	cmd.AddCommand(newCacheStatsCmd(c), newCacheInvalidateCmd(c))
	return cmd
}

func newCacheStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print entry counts per type as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := newApp(cmd.Context(), c.cfg, false)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(a.cache.Stats(cmd.Context()))
		},
	}
}

func newCacheInvalidateCmd(c *cli) *cobra.Command {
	var (
		entryType string
		prefix    string
	)
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Delete entries of one type, optionally by identifier prefix",
		Example: `  musicops cache invalidate --type userRecentTracks
  musicops cache invalidate --type artistInfo --prefix artist=Cher`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			t := cache.EntryType(entryType)
			if _, ok := cache.DefaultTTLs()[t]; !ok {
				return fmt.Errorf("unknown entry type %q", entryType)
			}

			a, err := newApp(cmd.Context(), c.cfg, false)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.close(); err == nil {
					err = cerr
				}
			}()

			before := a.cache.Stats(cmd.Context()).EntriesByType[t]
			a.cache.Invalidate(cmd.Context(), t, prefix)
			after := a.cache.Stats(cmd.Context()).EntriesByType[t]
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d %s entries\n", before-after, t)
			return nil
		},
	}
	cmd.Flags().StringVarP(&entryType, "type", "t", "", "entry type, e.g. userRecentTracks (required)")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "identifier prefix")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
