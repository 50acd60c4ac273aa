package commands

import (
	"fmt"
	"time"

	"github.com/benvon/voicenote-intake/internal/services/adminauth"
	"github.com/benvon/voicenote-intake/internal/validation"
	"github.com/spf13/cobra"
)

// NewAdminCmd creates the admin command for minting API tokens.
func NewAdminCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin API access",
	}
	cmd.AddCommand(newAdminTokenCmd(open))
	return cmd
}

func newAdminTokenCmd(open Opener) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin bearer token",
		Long:  "Sign a token with ADMIN_JWT_SECRET for the /api/v1/admin routes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject = validation.SanitizeText(subject)
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			if !env.Config.AdminEnabled() {
				return fmt.Errorf("ADMIN_JWT_SECRET is not set; the admin API is disabled")
			}
			authority, err := adminauth.New(env.Config.AdminJWTSecret, env.Config.AdminJWTIssuer)
			if err != nil {
				return err
			}
			token, err := authority.Mint(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Who the token is for (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
