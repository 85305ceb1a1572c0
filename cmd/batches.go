package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/export"
	"github.com/fmuoria/ranksense/internal/models"
	"github.com/fmuoria/ranksense/internal/store"
)

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "Inspect stored batches",
}

var batchesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent batches, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withRepo(cmd.Context(), func(ctx context.Context, repo store.Repository) error {
			batches, err := repo.ListBatches(ctx, limit)
			if err != nil {
				return err
			}
			return printBatches(cmd.OutOrStdout(), batches)
		})
	},
}

var batchesShowCmd = &cobra.Command{
	Use:   "show [batch-id]",
	Short: "Print the leaderboard of a batch (the latest completed one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(cmd.Context(), func(ctx context.Context, repo store.Repository) error {
			report, err := loadReport(ctx, repo, args)
			if err != nil {
				return err
			}
			return printLeaderboard(cmd.OutOrStdout(), report, 0)
		})
	},
}

var batchesExportCmd = &cobra.Command{
	Use:   "export [batch-id]",
	Short: "Write a batch to an .xlsx workbook",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return withRepo(cmd.Context(), func(ctx context.Context, repo store.Repository) error {
			report, err := loadReport(ctx, repo, args)
			if err != nil {
				return err
			}
			if output == "" {
				output = "batch-" + report.BatchID
			}
			if err := export.ExportToExcel(report, output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported batch %s\n", report.BatchID)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(batchesCmd)
	batchesCmd.AddCommand(batchesListCmd, batchesShowCmd, batchesExportCmd)

	batchesListCmd.Flags().IntP("limit", "n", store.DefaultListLimit, "number of batches to list")
	batchesExportCmd.Flags().StringP("output", "o", "", "output path (default batch-<id>.xlsx)")
}

// withRepo runs fn against the configured store without building an agent.
func withRepo(ctx context.Context, fn func(context.Context, store.Repository) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}

	repo, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Warn("closing store", zap.Error(err))
		}
	}()

	return fn(ctx, repo)
}

func loadReport(ctx context.Context, repo store.Repository, args []string) (*models.BatchReport, error) {
	if len(args) == 1 {
		return repo.GetBatch(ctx, args[0])
	}
	return repo.LatestBatch(ctx)
}

func printBatches(out io.Writer, batches []models.BatchSummary) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tJOB\tSTATUS\tCANDIDATES\tCREATED")
	for _, b := range batches {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", b.ID, b.JobTitle, b.Status, b.CandidateCount, b.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
