package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/export"
	"github.com/fmuoria/ranksense/internal/models"
)

type analyzeFlags struct {
	jobTitle     string
	jobDesc      string
	jobFile      string
	gmailSubject string
	xlsx         string
	top          int
	asJSON       bool
}

var analyzeOpts analyzeFlags

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Score and rank resumes from files, the uploads directory or Gmail",
	Long: `Without arguments every supported file in the uploads directory is analysed.
Files named Name_CV.ext and Name_CoverLetter.ext are paired per applicant.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return analyze(cmd.Context(), args, analyzeOpts, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	f := analyzeCmd.Flags()
	f.StringVarP(&analyzeOpts.jobTitle, "job-title", "t", "", "job title")
	f.StringVar(&analyzeOpts.jobDesc, "job-desc", "", "free-text job description")
	f.StringVar(&analyzeOpts.jobFile, "job-file", "", "JSON job description with required and nice-to-have lists")
	f.StringVar(&analyzeOpts.gmailSubject, "gmail-subject", "", "fetch attachments of messages with this subject first")
	f.StringVarP(&analyzeOpts.xlsx, "xlsx", "o", "", "also write the report to this .xlsx file")
	f.IntVar(&analyzeOpts.top, "top", 0, "print only the first n candidates")
	f.BoolVar(&analyzeOpts.asJSON, "output-json", false, "print the report as JSON instead of a table")
}

func analyze(ctx context.Context, files []string, opts analyzeFlags, out io.Writer) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if ctx == nil {
		ctx = context.Background()
	}

	job, err := loadJob(opts)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Warn("closing resources", zap.Error(err))
		}
	}()

	rt.agent.SetProgressCallback(func(current, total int, message string) {
		log.Info(message, zap.Int("current", current), zap.Int("total", total))
	})

	var report *models.BatchReport
	switch {
	case opts.gmailSubject != "":
		report, err = rt.agent.IngestFromGmail(ctx, opts.gmailSubject, job)
	case len(files) > 0:
		report, err = rt.agent.AnalyzeFiles(ctx, job, files)
	default:
		report, err = rt.agent.IngestFromUpload(ctx, job)
	}
	if err != nil {
		return err
	}

	if opts.xlsx != "" {
		if err := export.ExportToExcel(report, opts.xlsx); err != nil {
			return err
		}
		log.Info("report exported", zap.String("path", opts.xlsx))
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return printLeaderboard(out, report, opts.top)
}

// loadJob merges --job-file with the title and description flags.
func loadJob(opts analyzeFlags) (models.JobDescription, error) {
	var job models.JobDescription
	if opts.jobFile != "" {
		data, err := os.ReadFile(opts.jobFile)
		if err != nil {
			return job, fmt.Errorf("reading job file: %w", err)
		}
		if err := json.Unmarshal(data, &job); err != nil {
			return job, fmt.Errorf("parsing job file: %w", err)
		}
	}
	if v := strings.TrimSpace(opts.jobTitle); v != "" {
		job.Title = v
	}
	if v := strings.TrimSpace(opts.jobDesc); v != "" {
		job.Description = v
	}
	return job, nil
}

func printLeaderboard(out io.Writer, report *models.BatchReport, top int) error {
	fmt.Fprintf(out, "Batch %s  %s  (%d candidates)\n\n", report.BatchID, report.JobTitle, len(report.Candidates))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tCANDIDATE\tTOPSIS\tTOTAL\tGRADE\tROLE")
	for _, c := range report.Top(top) {
		mark := ""
		if c.Degenerate {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d\t%s\t%.4f%s\t%.1f\t%s\t%s\n", c.Rank, c.Name, c.Topsis, mark, c.Total, c.Grade, c.Role)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, c := range report.Candidates {
		if c.Degenerate {
			fmt.Fprintln(out, "\n* all candidates are identical on every criterion")
			break
		}
	}
	return nil
}
