package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// newScrapeCmd creates the 'scrape' subcommand for a single profile.
func newScrapeCmd() *cobra.Command {
	var (
		userID string
		name   string
	)
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes one Scholar profile",
		Long: `Scrapes a single Google Scholar profile by user ID and writes the
result to the output directory as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, userID, name)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Scholar profile user ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name used in the output filename")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runScrape(cmd *cobra.Command, userID, name string) error {
	a, err := buildApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, results := a.batch.Run(ctx, []scholar.Author{{UserID: userID, Name: name}})
	if summary.AllFailed() {
		return fmt.Errorf("profile %s failed: %s", userID, results[0].FailureReason)
	}
	a.logger.Info("profile scraped",
		zap.String("user_id", userID),
		zap.Int("publications", len(results[0].Records)),
		zap.Strings("files", summary.Files),
	)
	return nil
}
