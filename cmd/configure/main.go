package main

import (
	"fmt"
	"os"

	"github.com/benvon/voicenote-intake/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:           "voicenote-configure",
		Short:         "Operator tool for the voicenote intake service",
		Long:          "CLI for submission quotas, the upload burst limit, CORS origins, stored voicenotes and admin tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	open := commands.DefaultOpener
	rootCmd.AddCommand(commands.NewQuotaCmd(open))
	rootCmd.AddCommand(commands.NewRatelimitCmd(open))
	rootCmd.AddCommand(commands.NewCorsCmd(open))
	rootCmd.AddCommand(commands.NewSubmissionsCmd(open))
	rootCmd.AddCommand(commands.NewAdminCmd(open))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
