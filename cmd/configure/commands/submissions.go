package commands

import (
	"errors"
	"fmt"

	"github.com/benvon/voicenote-intake/internal/storage"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewSubmissionsCmd creates the submissions command with list and delete subcommands.
func NewSubmissionsCmd(open Opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submissions",
		Short: "Review stored voicenotes",
		Long:  "List or delete voicenote files in UPLOAD_DIR.",
	}
	cmd.AddCommand(newSubmissionsListCmd(open))
	cmd.AddCommand(newSubmissionsDeleteCmd(open))
	return cmd
}

func newSubmissionsListCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored voicenotes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			subs, err := env.Storage.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list submissions: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, "No voicenotes stored.")
				return nil
			}

			loc := env.Config.Location()
			t := newTable()
			t.AppendHeader(table.Row{"Filename", "Size", "Submitted", "URL"})
			for _, s := range subs {
				t.AppendRow(table.Row{s.Filename, s.Size, s.ModifiedAt.In(loc).Format("2006-01-02 15:04:05 MST"), s.URL})
			}
			t.AppendFooter(table.Row{fmt.Sprintf("%d files", len(subs)), "", "", ""})
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}
}

func newSubmissionsDeleteCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete a stored voicenote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()

			name := args[0]
			if err := env.Storage.Delete(cmd.Context(), name); err != nil {
				switch {
				case errors.Is(err, storage.ErrInvalidName):
					return fmt.Errorf("%q is not a voicenote filename", name)
				case errors.Is(err, storage.ErrNotFound):
					return fmt.Errorf("voicenote %q not found", name)
				default:
					return fmt.Errorf("delete %s: %w", name, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", name)
			return nil
		},
	}
}
