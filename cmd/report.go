package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture/internal/observability"
	"github.com/xkilldash9x/suture/internal/reporting"
)

func newReportCmd() *cobra.Command {
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report <report-file>",
		Short: "Summarizes a campaign report and optionally converts it",
		Long: `Reads a report written by 'suture repair' (plain or brotli-compressed JSON)
and prints its summary. With --output, the report is re-encoded in the format
given by --to; "-" or "stdout" prints it instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(observability.GetLogger(), cmd.OutOrStdout(), args[0], outputPath, format)
		},
	}

	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the report to this path in the --to format.")
	reportCmd.Flags().StringVarP(&format, "to", "t", reporting.FormatSARIF, "Output format: json, brotli, sarif.")
	return reportCmd
}

func runReport(logger *zap.Logger, out io.Writer, inputPath, outputPath, format string) error {
	report, err := reporting.Read(inputPath)
	if err != nil {
		return err
	}

	if outputPath == "" {
		printCampaignSummary(out, report, "")
		return nil
	}
	if outputPath == "-" {
		outputPath = "stdout"
	}

	reporter, err := reporting.New(format, outputPath, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	if err := reporter.Write(report); err != nil {
		_ = reporter.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := reporter.Close(); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("Report converted.", zap.String("from", inputPath), zap.String("to", outputPath), zap.String("format", format))
	return nil
}
