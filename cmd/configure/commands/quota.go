package commands

import (
	"fmt"
	"strings"

	"github.com/benvon/voicenote-intake/internal/services/quota"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewQuotaCmd creates the quota command with list and reset subcommands.
func NewQuotaCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Inspect and reset daily submission counts",
		Long:  "List today's per-IP submission counts or reset them. Counts live in the settings backend.",
	}
	cmd.AddCommand(newQuotaListCmd(open))
	cmd.AddCommand(newQuotaResetCmd(open))
	return cmd
}

func newQuotaListCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List today's submission counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			limiter := quota.New(env.Settings, env.Config.MaxSubmissionsPerDay)
			entries, err := limiter.Entries(cmd.Context())
			if err != nil {
				return fmt.Errorf("list quota entries: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No submissions recorded today.")
				return nil
			}

			t := newTable()
			t.AppendHeader(table.Row{"Client IP", "Date", "Count", "Remaining"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.ClientID, e.Date, e.Count, max(limiter.Limit()-e.Count, 0)})
			}
			t.AppendFooter(table.Row{"", "", "Limit", limiter.Limit()})
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
}

func newQuotaResetCmd(open Opener) *cobra.Command {
	var ip string
	var all bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset submission counts",
		Long:  "Forget one client's count (--ip) or every count (--all).",
		RunE: func(cmd *cobra.Command, args []string) error {
			ip = strings.TrimSpace(ip)
			if (ip != "") == all {
				return fmt.Errorf("exactly one of --ip or --all is required")
			}
			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			limiter := quota.New(env.Settings, env.Config.MaxSubmissionsPerDay)
			out := cmd.OutOrStdout()
			if all {
				if err := limiter.ResetAll(cmd.Context()); err != nil {
					return fmt.Errorf("reset all quotas: %w", err)
				}
				fmt.Fprintln(out, "All submission counts reset.")
				return nil
			}

			found, err := limiter.Reset(cmd.Context(), ip)
			if err != nil {
				return fmt.Errorf("reset quota for %s: %w", ip, err)
			}
			if !found {
				fmt.Fprintf(out, "No submission count recorded for %s.\n", ip)
				return nil
			}
			fmt.Fprintf(out, "Submission count for %s reset.\n", ip)
			return nil
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "Client IP to reset")
	cmd.Flags().BoolVar(&all, "all", false, "Reset every client")
	return cmd
}
