package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/musicops/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// cli carries state shared by subcommands.
type cli struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "musicops",
		Short: "Caching, rate-limited gateway for music APIs",
		Long: `musicops serves Last.fm tools over HTTP.

Responses are cached in a shared key-value store, callers are held to
per-minute and per-hour budgets, and transient upstream failures are
retried with backoff. The remaining commands inspect and maintain the
store the server uses.

Configuration is read from musicops.yaml (or --config), a .env file and
MUSICOPS_* environment variables.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Context(), c.configPath)
			if err != nil {
				return err
			}
			if cfg.Observe.Version == "dev" {
				cfg.Observe.Version = version
			}
			c.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		newServeCmd(c),
		newCacheCmd(c),
		newRateLimitCmd(c),
		newTokenCmd(c),
	)
	return root
}
