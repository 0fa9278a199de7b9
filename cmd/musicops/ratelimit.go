package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newRateLimitCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect and reset caller rate limits",
		Long: `Inspect and reset caller rate limits.

Identities take the form user:<principal> for authenticated callers and
ip:<address> for anonymous ones.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status <identity>",
			Short: "Print the remaining minute and hour budget as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) (err error) {
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
				return enc.Encode(a.limiter.Remaining(cmd.Context(), args[0]))
			},
		},
		&cobra.Command{
			Use:   "reset <identity>",
			Short: "Clear the counters of one caller",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) (err error) {
				a, err := newApp(cmd.Context(), c.cfg, false)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := a.close(); err == nil {
						err = cerr
					}
				}()

				if err := a.limiter.ResetUserLimits(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset limits for %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
