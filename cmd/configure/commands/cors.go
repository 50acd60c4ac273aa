package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/settings"
	"github.com/spf13/cobra"
)

// NewCorsCmd creates the cors configuration command with list and set subcommands.
func NewCorsCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Manage CORS configuration",
		Long:  "List or update the origins allowed to post voicenotes. The server picks up changes within a minute.",
	}
	cmd.AddCommand(newCorsListCmd(open))
	cmd.AddCommand(newCorsSetCmd(open))
	return cmd
}

func newCorsListCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List current CORS configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			var c models.CorsConfig
			found, err := settings.GetJSON(cmd.Context(), env.Settings, settings.KeyCorsConfig, &c)
			if err != nil {
				return fmt.Errorf("get cors config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !found {
				fmt.Fprintf(out, "No CORS configuration stored; SITE_ORIGINS (%s) applies.\n", env.Config.SiteOrigins)
				return nil
			}
			fmt.Fprintln(out, "CORS configuration:")
			fmt.Fprintf(out, "  Allowed origins: %s\n", strings.Join(c.Origins(), ", "))
			fmt.Fprintf(out, "  Allow credentials: %v\n", c.AllowCredentials)
			fmt.Fprintf(out, "  Max-Age: %d\n", c.MaxAge)
			return nil
		},
	}
}

func newCorsSetCmd(open Opener) *cobra.Command {
	var origins string
	var allowCreds bool
	var maxAge int
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set CORS configuration",
		Long:  "Update CORS allowed origins (comma-separated).",
		RunE: func(cmd *cobra.Command, args []string) error {
			list := models.SplitOrigins(origins)
			if len(list) == 0 {
				return fmt.Errorf("--origins is required (comma-separated list)")
			}
			for _, o := range list {
				if o == "*" {
					continue
				}
				u, err := url.Parse(o)
				if err != nil || u.Scheme == "" || u.Host == "" {
					return fmt.Errorf("invalid origin %q: expected scheme://host", o)
				}
			}
			if maxAge < 0 {
				return fmt.Errorf("--max-age must not be negative")
			}

			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			c := models.CorsConfig{
				AllowedOrigins:   strings.Join(list, ","),
				AllowCredentials: allowCreds,
				MaxAge:           maxAge,
			}
			if err := settings.SetJSON(cmd.Context(), env.Settings, settings.KeyCorsConfig, c); err != nil {
				return fmt.Errorf("set cors config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "CORS configuration updated.")
			return nil
		},
	}
	cmd.Flags().StringVar(&origins, "origins", "", "Comma-separated allowed origins (required)")
	cmd.Flags().BoolVar(&allowCreds, "allow-credentials", false, "Allow credentials")
	cmd.Flags().IntVar(&maxAge, "max-age", 86400, "Access-Control-Max-Age (seconds)")
	return cmd
}
