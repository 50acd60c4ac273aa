package commands

import (
	"fmt"
	"strings"

	"github.com/benvon/voicenote-intake/internal/models"
	"github.com/benvon/voicenote-intake/internal/settings"
	"github.com/benvon/voicenote-intake/internal/validation"
	"github.com/spf13/cobra"
)

// NewRatelimitCmd creates the ratelimit command for the upload burst guard.
func NewRatelimitCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage the upload burst limit",
		Long:  "List or update the per-IP burst rate on the upload route (e.g. 20-M, 100-H). The server picks up changes within a minute.",
	}
	cmd.AddCommand(newRatelimitListCmd(open))
	cmd.AddCommand(newRatelimitSetCmd(open))
	return cmd
}

func newRatelimitListCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the current burst rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			var c models.BurstConfig
			found, err := settings.GetJSON(cmd.Context(), env.Settings, settings.KeyBurstConfig, &c)
			if err != nil {
				return fmt.Errorf("get burst config: %w", err)
			}
			out := cmd.OutOrStdout()
			if !found || c.Rate == "" {
				fmt.Fprintf(out, "No burst rate stored; the server default (%s) applies.\n", env.Config.BurstRate)
				return nil
			}
			fmt.Fprintln(out, "Burst rate configuration:")
			fmt.Fprintf(out, "  Rate: %s\n", c.Rate)
			return nil
		},
	}
}

func newRatelimitSetCmd(open Opener) *cobra.Command {
	var rate string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the burst rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			rate = strings.TrimSpace(rate)
			if rate == "" {
				return fmt.Errorf("--rate is required (e.g. 20-M, 100-H)")
			}
			if err := validation.ValidateBurstRate(rate); err != nil {
				return err
			}
			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			if err := settings.SetJSON(cmd.Context(), env.Settings, settings.KeyBurstConfig, models.BurstConfig{Rate: rate}); err != nil {
				return fmt.Errorf("set burst config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Burst rate updated.")
			return nil
		},
	}
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 20-M, 100-H) (required)")
	return cmd
}
