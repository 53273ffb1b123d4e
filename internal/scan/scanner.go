package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/franz/bgdb/internal/util"
)

// ArchiveExtension is the beatmap set archive suffix
const ArchiveExtension = ".osz"

// Archive is a discovered beatmap set archive
type Archive struct {
	SetID int
	Path  string
}

// Scanner discovers archives in a directory tree
type Scanner struct {
	processed map[int]bool
}

// Config holds scanner configuration
type Config struct {
	// Processed holds set ids that already have metadata; their archives are skipped
	Processed map[int]bool
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	processed := cfg.Processed
	if processed == nil {
		processed = make(map[int]bool)
	}
	return &Scanner{processed: processed}
}

// Result represents a scan result
type Result struct {
	Archives   []Archive
	Processed  int // already in the metadata store
	Unnamed    int // no numeric set id prefix
	Duplicates int // same set id as an earlier archive
	Errors     []error
}

// Scan walks sourcePath in lexical order and returns the archives still to process
func (s *Scanner) Scan(ctx context.Context, sourcePath string) (*Result, error) {
	util.InfoLog("Starting scan of: %s", sourcePath)

	result := &Result{Errors: make([]error, 0)}
	seen := make(map[int]string)

	walkErr := filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if path == sourcePath {
				return err
			}
			util.WarnLog("Error accessing path %s: %v", path, err)
			result.Errors = append(result.Errors, fmt.Errorf("access error: %s: %w", path, err))
			return nil
		}
		if d.IsDir() || !IsArchive(path) {
			return nil
		}

		id, ok := ParseSetID(path)
		if !ok {
			util.DebugLog("No set id in archive name: %s", path)
			result.Unnamed++
			return nil
		}
		if s.processed[id] {
			result.Processed++
			return nil
		}
		if first, dup := seen[id]; dup {
			util.WarnLog("Set %d already found at %s, skipping %s", id, first, path)
			result.Duplicates++
			return nil
		}

		seen[id] = path
		result.Archives = append(result.Archives, Archive{SetID: id, Path: path})
		return nil
	})

	if walkErr != nil {
		return result, fmt.Errorf("walk error: %w", walkErr)
	}

	util.SuccessLog("Scan complete: %d archives to process, %d already processed, %d unnamed, %d duplicates",
		len(result.Archives), result.Processed, result.Unnamed, result.Duplicates)

	return result, nil
}

// IsArchive checks for the .osz extension, ignoring case
func IsArchive(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ArchiveExtension)
}

// ParseSetID reads the leading decimal run of the file stem,
// e.g. "11202 Artist - Title.osz" -> 11202
func ParseSetID(path string) (int, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	end := 0
	for end < len(stem) && stem[end] >= '0' && stem[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	if end < len(stem) && stem[end] != ' ' && stem[end] != '_' && stem[end] != '-' {
		return 0, false
	}
	id, err := strconv.Atoi(stem[:end])
	if err != nil {
		return 0, false
	}
	return id, true
}
