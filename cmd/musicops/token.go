package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/musicops/auth"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage session tokens",
	}

	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	issue := &cobra.Command{
		Use:     "issue",
		Short:   "Issue a signed session token",
		Example: `  musicops token issue --subject ops --role admin --ttl 24h`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			jwtAuth, err := auth.NewJWTAuthenticator(auth.JWTConfig{
				Secret: []byte(c.cfg.Auth.JWTSecret),
				Issuer: c.cfg.Auth.JWTIssuer,
			})
			if err != nil {
				return err
			}
			token, err := jwtAuth.IssueToken(subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVarP(&subject, "subject", "s", "", "token subject (required)")
	issue.Flags().StringSliceVarP(&roles, "role", "r", nil, "role to grant (repeatable)")
	issue.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("subject")

	cmd.AddCommand(issue)
	return cmd
}
