package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/bgdb/internal/osu"
	"github.com/franz/bgdb/internal/store"
)

// SummaryReport describes the state of a database and, optionally, one run
type SummaryReport struct {
	GeneratedAt time.Time

	// Store statistics
	Mapsets      int
	Fingerprints int
	HashConfig   string
	Modes        []ModeCount

	// Content store statistics; ContentImages is -1 when not gathered
	ContentImages int
	Unindexed     int

	// Consistency
	Orphans []string

	// Run statistics from the event log
	Extracted      int
	ExtractedBytes int64
	Indexed        int
	Searches       int
	SkipReasons    []ReasonCount
	TopErrors      []ErrorSummary

	DatabasePath string
	EventLogPath string
}

// ModeCount is the number of mapsets in one mode
type ModeCount struct {
	Mode  osu.Mode
	Count int
}

// ReasonCount groups skip events by reason
type ReasonCount struct {
	Reason string
	Count  int
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// orphanLimit bounds how many orphaned fingerprints are listed
const orphanLimit = 50

// GenerateSummaryReport gathers statistics from the database, the list of
// stored content identities (nil to skip) and the event log (empty to skip).
func GenerateSummaryReport(db *store.Store, contentIDs []string, eventLogPath string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:   time.Now(),
		DatabasePath:  db.Path(),
		EventLogPath:  eventLogPath,
		ContentImages: -1,
	}

	var err error
	if report.Mapsets, err = db.CountMapsets(); err != nil {
		return nil, err
	}
	if report.Fingerprints, err = db.CountFingerprints(); err != nil {
		return nil, err
	}
	if report.HashConfig, _, err = db.GetSetting(store.SettingHashConfig); err != nil {
		return nil, err
	}

	modes, err := db.CountMapsetsByMode()
	if err != nil {
		return nil, err
	}
	for mode, n := range modes {
		report.Modes = append(report.Modes, ModeCount{Mode: osu.Mode(mode), Count: n})
	}
	sort.Slice(report.Modes, func(i, j int) bool { return report.Modes[i].Mode < report.Modes[j].Mode })

	if report.Orphans, err = db.OrphanFingerprints(orphanLimit); err != nil {
		return nil, err
	}

	if contentIDs != nil {
		indexed, err := db.FingerprintIdentities()
		if err != nil {
			return nil, err
		}
		report.ContentImages = len(contentIDs)
		for _, id := range contentIDs {
			if !indexed[id] {
				report.Unindexed++
			}
		}
	}

	if eventLogPath != "" {
		if err := report.gatherEvents(eventLogPath, 10); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// gatherEvents aggregates a JSONL event log
func (r *SummaryReport) gatherEvents(path string, limit int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	skips := make(map[string]int)
	errs := make(map[string]int)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			continue
		}
		switch ev.Event {
		case EventExtract:
			r.Extracted++
			r.ExtractedBytes += ev.Bytes
		case EventIndex:
			r.Indexed++
		case EventSearch:
			r.Searches++
		case EventSkip:
			skips[ev.Reason]++
		case EventError:
			errs[ev.Error]++
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}

	for reason, n := range skips {
		r.SkipReasons = append(r.SkipReasons, ReasonCount{Reason: reason, Count: n})
	}
	sort.Slice(r.SkipReasons, func(i, j int) bool { return r.SkipReasons[i].Count > r.SkipReasons[j].Count })

	for msg, n := range errs {
		r.TopErrors = append(r.TopErrors, ErrorSummary{Error: msg, Count: n})
	}
	sort.Slice(r.TopErrors, func(i, j int) bool { return r.TopErrors[i].Count > r.TopErrors[j].Count })
	if len(r.TopErrors) > limit {
		r.TopErrors = r.TopErrors[:limit]
	}
	return nil
}

// LatestEventLog returns the newest events-*.jsonl in dir, or "" if there is none
func LatestEventLog(dir string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, "events-*.jsonl"))
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# bgdb - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}
	md.WriteString("---\n\n")

	md.WriteString("## Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Mapsets | %s |\n", humanize.Comma(int64(report.Mapsets))))
	md.WriteString(fmt.Sprintf("| Fingerprints | %s |\n", humanize.Comma(int64(report.Fingerprints))))
	if report.HashConfig != "" {
		md.WriteString(fmt.Sprintf("| Hash | %s |\n", report.HashConfig))
	}
	if report.ContentImages >= 0 {
		md.WriteString(fmt.Sprintf("| Stored Images | %s |\n", humanize.Comma(int64(report.ContentImages))))
		md.WriteString(fmt.Sprintf("| Not Yet Indexed | %s |\n", humanize.Comma(int64(report.Unindexed))))
	}
	md.WriteString("\n")

	if len(report.Modes) > 0 {
		md.WriteString("## Modes\n\n")
		md.WriteString("| Mode | Mapsets |\n")
		md.WriteString("|------|---------|\n")
		for _, m := range report.Modes {
			md.WriteString(fmt.Sprintf("| %s | %s |\n", m.Mode, humanize.Comma(int64(m.Count))))
		}
		md.WriteString("\n")
	}

	if report.Extracted > 0 || report.Indexed > 0 || report.Searches > 0 || len(report.SkipReasons) > 0 {
		md.WriteString("## Last Run\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Images Extracted | %s (%s) |\n",
			humanize.Comma(int64(report.Extracted)), humanize.Bytes(uint64(report.ExtractedBytes))))
		md.WriteString(fmt.Sprintf("| Images Indexed | %s |\n", humanize.Comma(int64(report.Indexed))))
		if report.Searches > 0 {
			md.WriteString(fmt.Sprintf("| Searches | %s |\n", humanize.Comma(int64(report.Searches))))
		}
		for _, s := range report.SkipReasons {
			md.WriteString(fmt.Sprintf("| Skipped: %s | %d |\n", truncate(s.Reason, 60), s.Count))
		}
		md.WriteString("\n")
	}

	if len(report.Orphans) > 0 {
		md.WriteString("## Consistency\n\n")
		md.WriteString(fmt.Sprintf("%d fingerprint(s) belong to a set with no mapset row and are excluded from search:\n\n", len(report.Orphans)))
		for _, id := range report.Orphans {
			md.WriteString(fmt.Sprintf("- `%s`\n", id))
		}
		md.WriteString("\n")
	}

	if len(report.TopErrors) > 0 {
		md.WriteString("## Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, e := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", e.Count, truncate(e.Error, 120)))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by bgdb*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// truncate shortens s from the middle, keeping both ends
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	start := maxLen/2 - 2
	end := len(s) - (maxLen/2 - 2)
	return s[:start] + "..." + s[end:]
}
