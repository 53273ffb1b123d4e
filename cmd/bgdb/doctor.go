package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/bgdb/internal/content"
	"github.com/franz/bgdb/internal/phash"
	"github.com/franz/bgdb/internal/scan"
	"github.com/franz/bgdb/internal/store"
	"github.com/franz/bgdb/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure bgdb can operate correctly.

This command checks:
- SQLite version
- Database accessibility, integrity and stored fingerprint configuration
- Source directory readability and archive count
- Content store (directory writable, or S3 bucket listable)
- Disk space availability

Use this command to troubleshoot issues before running extract or index.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().String("src", "", "Source directory to check (optional)")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== bgdb Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	results = append(results, checkSQLite())

	hasher, err := hasherFromConfig()
	if err != nil {
		results = append(results, checkResult{name: "Hash configuration", error: true, message: err.Error()})
	} else {
		results = append(results, checkResult{
			name:    "Hash configuration",
			message: fmt.Sprintf("%s (%d bits)", hasher.Name(), hasher.Bits()),
		})
	}

	dbPath := viper.GetString("db")
	results = append(results, checkDatabase(dbPath, hasher))

	srcPath, _ := cmd.Flags().GetString("src")
	if srcPath == "" {
		srcPath = viper.GetString("source")
	}
	if srcPath != "" {
		results = append(results, checkSourceDirectory(srcPath))
		results = append(results, checkDiskSpace(srcPath, "source"))
	}

	cfg := contentConfig()
	if cfg.Backend == "s3" {
		results = append(results, checkS3(&cfg.S3))
	} else {
		results = append(results, checkContentDirectory(cfg.Dir))
		if cfg.Dir != srcPath {
			results = append(results, checkDiskSpace(cfg.Dir, "content"))
		}
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("Some critical checks failed. Please resolve errors before running bgdb.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("All checks passed.")
	}

	return nil
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database accessibility and that its fingerprints
// were built with hasher's configuration. hasher may be nil.
func checkDatabase(dbPath string, hasher *phash.Hasher) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	if hasher != nil {
		if err := db.CheckHashConfig(hasher.Name()); err != nil {
			return checkResult{
				name:    "Database",
				error:   true,
				message: err.Error(),
			}
		}
	}

	mapsets, _ := db.CountMapsets()
	prints, _ := db.CountFingerprints()

	return checkResult{
		name: "Database",
		message: fmt.Sprintf("%s (%s, %s mapsets, %s fingerprints)", dbPath,
			humanize.Bytes(uint64(info.Size())), humanize.Comma(int64(mapsets)), humanize.Comma(int64(prints))),
	}
}

// checkSourceDirectory verifies the songs directory is readable and counts
// top-level archives
func checkSourceDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return checkResult{
			name:    "Source directory",
			error:   true,
			message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}

	archives := 0
	for _, e := range entries {
		if !e.IsDir() && scan.IsArchive(e.Name()) {
			archives++
		}
	}
	if archives == 0 {
		return checkResult{
			name:    "Source directory",
			warning: true,
			message: fmt.Sprintf("%s contains no .osz archives", path),
		}
	}

	return checkResult{
		name:    "Source directory",
		message: fmt.Sprintf("%s (%d archives)", path, archives),
	}
}

// checkContentDirectory verifies the fs content store is writable
func checkContentDirectory(path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    "Content directory",
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    "Content directory",
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    "Content directory",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    "Content directory",
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".bgdb_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Content directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Content directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkS3 verifies the bucket can be listed
func checkS3(cfg *content.S3Config) checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s, err := content.NewS3(ctx, cfg)
	if err != nil {
		return checkResult{
			name:    "Content store (s3)",
			error:   true,
			message: err.Error(),
		}
	}

	ids, err := s.List(ctx)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "timed out listing bucket"
		}
		return checkResult{
			name:    "Content store (s3)",
			error:   true,
			message: msg,
		}
	}

	return checkResult{
		name:    "Content store (s3)",
		message: fmt.Sprintf("s3://%s/%s (%s images)", cfg.Bucket, cfg.Prefix, humanize.Comma(int64(len(ids)))),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))
	usedPercent := float64(usedBytes) / float64(totalBytes) * 100

	// warn below 1 GiB free
	warning := false
	warningMsg := ""
	if availBytes < 1<<30 {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 95 {
		warning = true
		warningMsg = " (>95% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.IBytes(availBytes), warningMsg),
	}
}
