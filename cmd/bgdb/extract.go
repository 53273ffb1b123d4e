package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/bgdb/internal/extract"
	"github.com/franz/bgdb/internal/scan"
	"github.com/franz/bgdb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract backgrounds and metadata from beatmap archives",
	Long: `Extract the background image and mapset metadata from every .osz archive
in the source directory.

For each archive the first usable difficulty supplies artist, title, creator
and mode; every distinct background referenced by any difficulty is copied
to the content store as "<setID>_<path>".

Archives whose set id already has metadata are skipped, so the command can be
interrupted and resumed. Unreadable archives and archives without a usable
difficulty are counted and skipped.`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("source", "s", "", "songs directory containing .osz archives")
	viper.BindPFlag("source", extractCmd.Flags().Lookup("source"))
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := viper.GetString("source")
	if source == "" {
		return fmt.Errorf("source directory is required (use --source/-s or set in config)")
	}
	if _, err := os.Stat(source); os.IsNotExist(err) {
		return fmt.Errorf("source directory does not exist: %s", source)
	}

	dbPath := viper.GetString("db")
	concurrency := GetConfigInt("concurrency", 8)
	batchSize := GetConfigInt("batch-size", 100)

	util.InfoLog("Opening database: %s", dbPath)
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	images, err := openContent(ctx)
	if err != nil {
		return err
	}

	logger := openEventLogger()
	defer logger.Close()

	processed, err := db.MapsetIDs()
	if err != nil {
		return err
	}

	// Phase 1: Discovery
	util.InfoLog("=== Phase 1: Archive Discovery ===")
	util.InfoLog("Source: %s", source)

	startTime := time.Now()
	scanner := scan.New(&scan.Config{Processed: processed})
	scanResult, err := scanner.Scan(ctx, source)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	scanDuration := time.Since(startTime)

	util.SuccessLog("Discovery complete in %v", scanDuration.Round(time.Millisecond))
	util.InfoLog("  Archives to process: %d", len(scanResult.Archives))
	util.InfoLog("  Already processed: %d", scanResult.Processed)
	if scanResult.Unnamed > 0 {
		util.WarnLog("  Without set id: %d", scanResult.Unnamed)
	}
	if scanResult.Duplicates > 0 {
		util.WarnLog("  Duplicate set ids: %d", scanResult.Duplicates)
	}
	if len(scanResult.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(scanResult.Errors))
	}

	// Phase 2: Extraction
	util.InfoLog("")
	util.InfoLog("=== Phase 2: Background Extraction ===")
	util.InfoLog("Concurrency: %d", concurrency)

	extractor := extract.New(&extract.Config{
		Store:       db,
		Content:     images,
		Concurrency: concurrency,
		BatchSize:   batchSize,
		Logger:      logger,
	})

	extractStart := time.Now()
	result, err := extractor.ExtractAll(ctx, scanResult.Archives, processed)
	if err != nil {
		return fmt.Errorf("extraction interrupted: %w", err)
	}
	extractDuration := time.Since(extractStart)

	util.SuccessLog("Extraction complete in %v", extractDuration.Round(time.Millisecond))
	util.InfoLog("  Archives processed: %s", humanize.Comma(int64(result.ArchivesProcessed)))
	util.InfoLog("  Mapsets inserted: %s", humanize.Comma(int64(result.MapsetsInserted)))
	util.InfoLog("  Images written: %s (%s already stored)",
		humanize.Comma(int64(result.ImagesWritten)), humanize.Comma(int64(result.ImagesExisting)))
	if result.MissingBackgrounds > 0 {
		util.WarnLog("  Missing background entries: %d", result.MissingBackgrounds)
	}
	if result.ContainerErrors > 0 {
		util.WarnLog("  Unreadable archives: %d", result.ContainerErrors)
	}
	if result.NoUsableDifficulty > 0 {
		util.WarnLog("  Without usable difficulty: %d", result.NoUsableDifficulty)
	}
	if len(result.Errors) > 0 {
		util.WarnLog("  Errors: %d", len(result.Errors))
	}

	util.InfoLog("")
	util.InfoLog("Total time: %v", (scanDuration + extractDuration).Round(time.Millisecond))
	util.InfoLog("Next step: bgdb index")

	return nil
}
