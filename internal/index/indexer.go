// Package index fingerprints stored background images.
package index

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/franz/bgdb/internal/content"
	"github.com/franz/bgdb/internal/imageio"
	"github.com/franz/bgdb/internal/phash"
	"github.com/franz/bgdb/internal/report"
	"github.com/franz/bgdb/internal/store"
	"github.com/franz/bgdb/internal/util"
)

// DefaultBatchSize is the number of fingerprints per multi-row insert
const DefaultBatchSize = 100

// FingerprintStore is the persistence the indexer needs; *store.Store implements it
type FingerprintStore interface {
	EnsureHashConfig(name string) error
	FingerprintIdentities() (map[string]bool, error)
	InsertFingerprintBatch(rows []*store.Fingerprint) (int, error)
}

// Indexer computes and persists fingerprints
type Indexer struct {
	store       FingerprintStore
	content     content.Store
	hasher      *phash.Hasher
	concurrency int
	batchSize   int
	logger      *report.EventLogger
	onCommit    func()
}

// Config holds indexer configuration
type Config struct {
	Store       FingerprintStore
	Content     content.Store
	Hasher      *phash.Hasher
	Concurrency int
	BatchSize   int
	Logger      *report.EventLogger
	// OnCommit is called after every committed batch, e.g. to invalidate a search cache
	OnCommit func()
}

// New creates a new Indexer
func New(cfg *Config) *Indexer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Hasher == nil {
		cfg.Hasher = phash.Default()
	}

	return &Indexer{
		store:       cfg.Store,
		content:     cfg.Content,
		hasher:      cfg.Hasher,
		concurrency: cfg.Concurrency,
		batchSize:   cfg.BatchSize,
		logger:      cfg.Logger,
		onCommit:    cfg.OnCommit,
	}
}

// Result holds the statistics of one run
type Result struct {
	Candidates     int
	AlreadyIndexed int
	Indexed        int
	DecodeFailures int
	ReadFailures   int
	BatchesFailed  int
	Errors         []error
}

// IndexAll fingerprints every stored image that has no fingerprint yet.
// A store that cannot be reached or was built with another hash
// configuration fails the run; everything else is counted and skipped.
func (ix *Indexer) IndexAll(ctx context.Context) (*Result, error) {
	if err := ix.store.EnsureHashConfig(ix.hasher.Name()); err != nil {
		return nil, err
	}

	identities, err := ix.content.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list content store: %w", err)
	}
	existing, err := ix.store.FingerprintIdentities()
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprint identities: %w", err)
	}

	result := &Result{Errors: make([]error, 0)}
	var errMu sync.Mutex
	addError := func(err error) {
		errMu.Lock()
		result.Errors = append(result.Errors, err)
		errMu.Unlock()
	}

	todo := make([]string, 0, len(identities))
	for _, id := range identities {
		if existing[id] {
			result.AlreadyIndexed++
			continue
		}
		todo = append(todo, id)
	}
	result.Candidates = len(todo)

	util.InfoLog("Fingerprinting %d images with %s (%d already indexed)",
		len(todo), ix.hasher.Name(), result.AlreadyIndexed)
	if len(todo) == 0 {
		return result, nil
	}

	var decodeFailures, readFailures atomic.Int64
	progress := util.StartProgress("Indexing", len(todo))
	defer progress.Finish()

	// Batch writer goroutine; batches commit independently
	rows := make(chan *store.Fingerprint, ix.batchSize)
	var writerWg sync.WaitGroup
	writerWg.Add(1)
	go func() {
		defer writerWg.Done()
		batch := make([]*store.Fingerprint, 0, ix.batchSize)

		flush := func() {
			if len(batch) == 0 {
				return
			}
			n, err := ix.store.InsertFingerprintBatch(batch)
			if err != nil {
				util.ErrorLog("Failed to insert fingerprint batch of %d: %v", len(batch), err)
				ix.logger.LogError(report.EventIndex, "", err)
				result.BatchesFailed++
				addError(err)
			} else {
				result.Indexed += n
				progress.Describe(fmt.Sprintf("Indexing | %d fingerprints saved", result.Indexed))
				if ix.onCommit != nil {
					ix.onCommit()
				}
			}
			batch = batch[:0]
		}

		for r := range rows {
			batch = append(batch, r)
			if len(batch) >= ix.batchSize {
				flush()
			}
		}
		flush()
	}()

	p := pool.New().WithMaxGoroutines(ix.concurrency)
	for _, id := range todo {
		p.Go(func() {
			defer progress.Add(1)
			if ctx.Err() != nil {
				return
			}

			start := time.Now()
			data, err := ix.content.Read(ctx, id)
			if err != nil {
				readFailures.Add(1)
				util.WarnLog("Failed to read %s: %v", id, err)
				ix.logger.LogError(report.EventIndex, id, err)
				addError(err)
				return
			}

			hash, err := ix.Fingerprint(data)
			if err != nil {
				decodeFailures.Add(1)
				util.WarnLog("Skipping %s: %v", id, err)
				ix.logger.LogSkip(0, "", id, err.Error())
				addError(fmt.Errorf("%s: %w", id, err))
				return
			}

			ix.logger.LogIndex(id, ix.hasher.Name(), time.Since(start))
			rows <- &store.Fingerprint{Identity: id, Hash: hash}
		})
	}
	p.Wait()

	close(rows)
	writerWg.Wait()

	result.DecodeFailures = int(decodeFailures.Load())
	result.ReadFailures = int(readFailures.Load())

	if err := ctx.Err(); err != nil {
		return result, err
	}

	util.SuccessLog("Indexing complete: %d fingerprints added, %d undecodable, %d failed batches",
		result.Indexed, result.DecodeFailures, result.BatchesFailed)
	return result, nil
}

// Fingerprint decodes data and hashes it. Decoder or hasher panics come back
// as errors wrapping util.ErrDecode.
func (ix *Indexer) Fingerprint(data []byte) ([]byte, error) {
	img, err := imageio.Decode(data)
	if err != nil {
		return nil, err
	}
	hash, err := ix.hasher.Hash(img)
	if err != nil {
		if errors.Is(err, util.ErrDecode) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", util.ErrDecode, err)
	}
	return hash, nil
}
