package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/posture-peek/internal/config"
	"github.com/ZanzyTHEbar/posture-peek/internal/security"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		secret  string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the analyze endpoint",
		Long: `token signs an HS256 bearer token with the server's auth.jwt_secret
(PEEK_AUTH__JWT_SECRET) so clients can call the analyze endpoint when auth is enabled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				secret = cfg.Auth.JWTSecret
			}

			auth := security.NewAuthenticator(secret)
			if auth == nil {
				return fmt.Errorf("no signing secret: pass --secret or set PEEK_AUTH__JWT_SECRET")
			}

			token, err := auth.GenerateToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Token subject, used as the rate limit key")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to auth.jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
