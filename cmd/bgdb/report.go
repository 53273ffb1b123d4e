package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/bgdb/internal/report"
	"github.com/franz/bgdb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report from the database and event logs",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Mapset and fingerprint counts, and the fingerprint configuration
- Mapsets per game mode
- Stored images not yet indexed (unless --skip-content)
- Fingerprints excluded from search because their set has no metadata
- Extraction and indexing statistics, skip reasons and top errors from the
  latest event log (or --event-log)

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to event log file (default: latest in artifacts)")
	reportCmd.Flags().Bool("skip-content", false, "Do not list the content store")
}

func runReport(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Database: %s", dbPath)

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var contentIDs []string
	if skip, _ := cmd.Flags().GetBool("skip-content"); !skip {
		ctx := context.Background()
		images, err := openContent(ctx)
		if err != nil {
			return err
		}
		if contentIDs, err = images.List(ctx); err != nil {
			return fmt.Errorf("failed to list content store: %w", err)
		}
	}

	artifacts := GetConfigString("artifacts", "artifacts")
	eventLogPath, _ := cmd.Flags().GetString("event-log")
	if eventLogPath == "" {
		eventLogPath = report.LatestEventLog(artifacts)
	}
	if eventLogPath != "" {
		util.InfoLog("Event log: %s", eventLogPath)
	}

	util.InfoLog("Analyzing data...")
	summaryReport, err := report.GenerateSummaryReport(db, contentIDs, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join(artifacts, "reports", timestamp)
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Report saved to: %s", outputPath)
	util.InfoLog("")
	util.InfoLog("Summary:")
	util.InfoLog("  Mapsets: %s", humanize.Comma(int64(summaryReport.Mapsets)))
	util.InfoLog("  Fingerprints: %s", humanize.Comma(int64(summaryReport.Fingerprints)))
	if summaryReport.Unindexed > 0 {
		util.WarnLog("  Not yet indexed: %d (run bgdb index)", summaryReport.Unindexed)
	}
	if len(summaryReport.Orphans) > 0 {
		util.WarnLog("  Fingerprints without metadata: %d", len(summaryReport.Orphans))
	}

	return nil
}
