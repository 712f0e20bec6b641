// Package cmd defines and implements the CLI commands for the scholarcrawl
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scholarcrawl",
		Short: "A resilient Google Scholar profile scraper.",
		Long: `scholarcrawl collects publication data from Google Scholar profiles.
It paginates each profile's publication listing, enriches every entry from
its citation detail page, and rides out rate limiting with identity
rotation, exponential backoff, and a process-wide pause when blocks pile up.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML; defaults apply when omitted)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newBatchCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
