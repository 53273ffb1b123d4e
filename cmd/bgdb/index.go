package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/bgdb/internal/index"
	"github.com/franz/bgdb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Fingerprint stored backgrounds that have no fingerprint yet",
	Long: `Compute a perceptual hash for every image in the content store that is not
indexed yet and store it in the database.

The fingerprint configuration (--hash, --hash-size) is recorded on the first
run. Later runs with a different configuration are refused, since fingerprints
of different configurations cannot be compared.

Images that fail to decode are counted and skipped; they are retried on the
next run.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hasher, err := hasherFromConfig()
	if err != nil {
		return err
	}

	dbPath := viper.GetString("db")
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

	concurrency := GetConfigInt("concurrency", 8)
	util.InfoLog("=== Fingerprint Indexing ===")
	util.InfoLog("Hash: %s (%d bits)", hasher.Name(), hasher.Bits())
	util.InfoLog("Concurrency: %d", concurrency)

	indexer := index.New(&index.Config{
		Store:       db,
		Content:     images,
		Hasher:      hasher,
		Concurrency: concurrency,
		BatchSize:   GetConfigInt("batch-size", 100),
		Logger:      logger,
	})

	start := time.Now()
	result, err := indexer.IndexAll(ctx)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	util.SuccessLog("Indexing complete in %v", time.Since(start).Round(time.Millisecond))
	util.InfoLog("  Stored images: %s", humanize.Comma(int64(result.Candidates+result.AlreadyIndexed)))
	util.InfoLog("  Already indexed: %s", humanize.Comma(int64(result.AlreadyIndexed)))
	util.InfoLog("  Newly indexed: %s", humanize.Comma(int64(result.Indexed)))
	if result.DecodeFailures > 0 {
		util.WarnLog("  Decode failures: %d", result.DecodeFailures)
	}
	if result.ReadFailures > 0 {
		util.WarnLog("  Read failures: %d", result.ReadFailures)
	}
	if result.BatchesFailed > 0 {
		util.WarnLog("  Failed batches: %d (rerun to retry)", result.BatchesFailed)
	}

	total, _ := db.CountFingerprints()
	util.InfoLog("")
	util.InfoLog("Fingerprints in database: %s", humanize.Comma(int64(total)))
	util.InfoLog("Next step: bgdb search <image> or bgdb serve")

	return nil
}
