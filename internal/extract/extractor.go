// Package extract pulls the background image and mapset metadata out of
// beatmap set archives.
package extract

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"

	"github.com/franz/bgdb/internal/content"
	"github.com/franz/bgdb/internal/osu"
	"github.com/franz/bgdb/internal/osz"
	"github.com/franz/bgdb/internal/report"
	"github.com/franz/bgdb/internal/scan"
	"github.com/franz/bgdb/internal/store"
	"github.com/franz/bgdb/internal/util"
)

// DefaultBatchSize is the number of mapset rows per insert
const DefaultBatchSize = 100

// Extractor runs the extraction pipeline over many archives
type Extractor struct {
	store       *store.Store
	content     content.Store
	concurrency int
	batchSize   int
	logger      *report.EventLogger
}

// Config holds extractor configuration
type Config struct {
	Store       *store.Store
	Content     content.Store
	Concurrency int
	BatchSize   int
	Logger      *report.EventLogger
}

// New creates a new Extractor
func New(cfg *Config) *Extractor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &Extractor{
		store:       cfg.Store,
		content:     cfg.Content,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		logger:      cfg.Logger,
	}
}

// Result holds the statistics of one run
type Result struct {
	ArchivesProcessed  int // metadata recorded
	AlreadyProcessed   int
	ContainerErrors    int
	NoUsableDifficulty int
	ImagesWritten      int
	ImagesExisting     int
	MissingBackgrounds int
	MapsetsInserted    int
	Errors             []error
}

// archiveOutcome is what one archive contributes
type archiveOutcome struct {
	mapset   *store.Mapset
	written  int
	existing int
	missing  int
}

// ExtractAll processes every archive whose set id is not in processed.
// Failures are confined to the archive they happen in; the returned error is
// only set when ctx is cancelled.
func (e *Extractor) ExtractAll(ctx context.Context, archives []scan.Archive, processed map[int]bool) (*Result, error) {
	result := &Result{Errors: make([]error, 0)}
	var errMu sync.Mutex
	addError := func(err error) {
		errMu.Lock()
		result.Errors = append(result.Errors, err)
		errMu.Unlock()
	}

	todo := make([]scan.Archive, 0, len(archives))
	for _, a := range archives {
		if processed[a.SetID] {
			result.AlreadyProcessed++
			continue
		}
		todo = append(todo, a)
	}

	util.InfoLog("Extracting %d archives (%d already processed)", len(todo), result.AlreadyProcessed)
	if len(todo) == 0 {
		return result, nil
	}

	var (
		archivesOK      atomic.Int64
		containerErrs   atomic.Int64
		noUsable        atomic.Int64
		imagesWritten   atomic.Int64
		imagesExisting  atomic.Int64
		missing         atomic.Int64
		mapsetsInserted int
	)

	progress := util.StartProgress("Extracting", len(todo))
	defer progress.Finish()

	// Batch writer goroutine for mapset rows
	mapsets := make(chan *store.Mapset, e.batchSize)
	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		batch := make([]*store.Mapset, 0, e.batchSize)

		flush := func() {
			if len(batch) == 0 {
				return
			}
			n, err := e.store.InsertMapsetBatch(batch)
			if err != nil {
				util.ErrorLog("Failed to insert mapset batch of %d: %v", len(batch), err)
				e.logger.LogError(report.EventExtract, "", err)
				addError(err)
			} else {
				mapsetsInserted += n
				progress.Describe(fmt.Sprintf("Extracting | %d mapsets saved", mapsetsInserted))
			}
			batch = batch[:0]
		}

		for m := range mapsets {
			batch = append(batch, m)
			if len(batch) >= e.batchSize {
				flush()
			}
		}
		flush()
	}()

	p := pool.New().WithMaxGoroutines(e.concurrency)
	for _, a := range todo {
		p.Go(func() {
			defer progress.Add(1)
			if ctx.Err() != nil {
				return
			}

			out, err := e.extractArchive(ctx, a)
			if err != nil {
				switch {
				case errors.Is(err, util.ErrContainerOpen):
					containerErrs.Add(1)
					e.logger.LogSkip(a.SetID, a.Path, "", "unreadable archive")
				case errors.Is(err, util.ErrNoUsableDifficulty):
					noUsable.Add(1)
					e.logger.LogSkip(a.SetID, a.Path, "", "no usable difficulty")
				default:
					e.logger.LogError(report.EventExtract, a.Path, err)
				}
				util.WarnLog("Skipping %s: %v", a.Path, err)
				addError(err)
				return
			}

			imagesWritten.Add(int64(out.written))
			imagesExisting.Add(int64(out.existing))
			missing.Add(int64(out.missing))
			archivesOK.Add(1)
			mapsets <- out.mapset
		})
	}
	p.Wait()

	close(mapsets)
	writerWg.Wait()

	result.ArchivesProcessed = int(archivesOK.Load())
	result.ContainerErrors = int(containerErrs.Load())
	result.NoUsableDifficulty = int(noUsable.Load())
	result.ImagesWritten = int(imagesWritten.Load())
	result.ImagesExisting = int(imagesExisting.Load())
	result.MissingBackgrounds = int(missing.Load())
	result.MapsetsInserted = mapsetsInserted

	if err := ctx.Err(); err != nil {
		return result, err
	}

	util.SuccessLog("Extraction complete: %d archives, %d images written, %d already stored, %d skipped",
		result.ArchivesProcessed, result.ImagesWritten, result.ImagesExisting, len(result.Errors))
	return result, nil
}

// extractArchive writes the backgrounds of one archive to the content store
// and returns the mapset row to record. A background reference with no
// matching entry is counted, not an error. A failed content write is an
// error so the archive is retried on the next run.
func (e *Extractor) extractArchive(ctx context.Context, a scan.Archive) (*archiveOutcome, error) {
	arc, err := osz.Open(a.Path)
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	var candidates []osu.Candidate
	for entry := range arc.Entries(osz.HasSuffixFold(".osu")) {
		text, err := arc.ReadText(entry)
		if err != nil {
			util.DebugLog("Skipping %s in %s: %v", entry.Name, a.Path, err)
			continue
		}
		candidates = append(candidates, osu.Candidate{Name: entry.Name, Text: text})
	}

	sel, err := osu.Select(candidates)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.Path, err)
	}

	out := &archiveOutcome{
		mapset: &store.Mapset{
			ID:      a.SetID,
			Artist:  sel.Metadata.Artist,
			Title:   sel.Metadata.Title,
			Creator: sel.Metadata.Creator,
			Mode:    int(sel.Metadata.Mode),
		},
	}

	resolved := make(map[string]bool)
	for _, ref := range sel.Backgrounds {
		entry, ok := arc.Lookup(ref)
		if !ok {
			util.DebugLog("Background %q not found in %s", ref, a.Path)
			out.missing++
			continue
		}
		if resolved[entry.Name] {
			continue
		}
		resolved[entry.Name] = true

		identity := content.Identity(a.SetID, entry.Name)
		exists, err := e.content.Exists(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", util.ErrStoreWrite, identity, err)
		}
		if exists {
			out.existing++
			continue
		}

		data, err := arc.ReadBytes(entry)
		if err != nil {
			util.WarnLog("Failed to read %s from %s: %v", entry.Name, a.Path, err)
			out.missing++
			continue
		}

		written, err := e.content.Write(ctx, identity, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", util.ErrStoreWrite, identity, err)
		}
		if !written {
			out.existing++
			continue
		}

		out.written++
		e.logger.LogExtract(a.SetID, a.Path, identity, int64(len(data)))
		util.DebugLog("Extracted %s", identity)
	}

	return out, nil
}
