package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/citemetric/scholarcrawl/internal/input"
)

// newBatchCmd creates the 'batch' subcommand driven by a roster CSV.
func newBatchCmd() *cobra.Command {
	var inputFile string
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Scrapes every profile in a roster CSV",
		Long: `Reads a CSV of author names and Scholar user IDs and scrapes each
profile with bounded concurrency. A failing profile is recorded and skipped;
the run only fails when no profile succeeds.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, inputFile)
		},
	}
	cmd.Flags().StringVar(&inputFile, "input", "", "roster CSV with name and user-ID columns (required)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func runBatch(cmd *cobra.Command, inputFile string) error {
	authors, err := input.ReadAuthors(inputFile)
	if err != nil {
		return err
	}
	if len(authors) == 0 {
		return fmt.Errorf("roster %s has no usable rows", inputFile)
	}

	a, err := buildApp(cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, _ := a.batch.Run(ctx, authors)
	a.logger.Info("batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration),
	)
	if summary.AllFailed() {
		return fmt.Errorf("all %d profiles failed", summary.Total)
	}
	return nil
}
