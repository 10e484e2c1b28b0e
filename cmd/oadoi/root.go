package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for oadoi.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oadoi",
		Short: "Find legal open-access copies of scholarly works",
		Long: `oadoi finds legal open-access copies of scholarly works.

It harvests repository records from OAI-PMH feeds into a local SQLite store,
matches them to works by DOI and title, and picks the best open location of
every work together with its OA color (gold, hybrid, bronze, green, closed).

The database lives in the XDG data directory unless --db-dir is given.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .oadoi in current or home directory)")
	cmd.PersistentFlags().String("db-dir", "",
		"Directory of the SQLite database (default: XDG data directory)")

	cmd.AddCommand(NewResolveCmd())
	cmd.AddCommand(NewImportCmd())
	cmd.AddCommand(NewHarvestCmd())
	cmd.AddCommand(NewFeedsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
