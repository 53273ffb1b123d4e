// Package search ranks stored fingerprints by Hamming distance to a query image.
//
// Every query scans the whole fingerprint set. At tens of thousands of
// 256-bit fingerprints that is a few milliseconds, so no index is kept.
package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/franz/bgdb/internal/content"
	"github.com/franz/bgdb/internal/imageio"
	"github.com/franz/bgdb/internal/osu"
	"github.com/franz/bgdb/internal/phash"
	"github.com/franz/bgdb/internal/store"
	"github.com/franz/bgdb/internal/util"
)

const (
	DefaultK          = 10
	DefaultPreviewURL = "https://assets.ppy.sh/beatmaps/%d/covers/raw.jpg"
)

// Store is what the engine reads; *store.Store implements it
type Store interface {
	CheckHashConfig(name string) error
	AllFingerprints() ([]*store.Fingerprint, error)
	GetMapsetsByIDs(ids []int) (map[int]*store.Mapset, error)
	CountMapsets() (int, error)
	CountFingerprints() (int, error)
}

// Config holds engine configuration
type Config struct {
	Store  Store
	Hasher *phash.Hasher
	// Cache keeps the fingerprint set in memory until Invalidate is called
	Cache bool
	// PreviewURL is a format string receiving the set id
	PreviewURL string
}

// Engine answers similarity queries. It is safe for concurrent use.
type Engine struct {
	store      Store
	hasher     *phash.Hasher
	cache      bool
	previewURL string

	mu     sync.RWMutex
	cached []*store.Fingerprint
	// gen is bumped by Invalidate; a load started under an older gen is not cached
	gen uint64
}

// Match is one ranked result joined with its mapset metadata
type Match struct {
	Identity   string   `json:"identity"`
	ImageName  string   `json:"image_name"`
	SetID      int      `json:"set_id"`
	Distance   int      `json:"distance"`
	Similarity float64  `json:"similarity"`
	Artist     string   `json:"artist"`
	Title      string   `json:"title"`
	Creator    string   `json:"creator"`
	Mode       osu.Mode `json:"mode"`
	PreviewURL string   `json:"preview_url"`
}

// Stats summarizes the searchable collection
type Stats struct {
	Mapsets      int    `json:"mapsets"`
	Fingerprints int    `json:"fingerprints"`
	Hash         string `json:"hash"`
}

// New creates an engine
func New(cfg *Config) *Engine {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = phash.Default()
	}
	preview := cfg.PreviewURL
	if preview == "" {
		preview = DefaultPreviewURL
	}
	return &Engine{
		store:      cfg.Store,
		hasher:     hasher,
		cache:      cfg.Cache,
		previewURL: preview,
	}
}

// Hasher returns the configuration queries are fingerprinted with
func (e *Engine) Hasher() *phash.Hasher {
	return e.hasher
}

// Search fingerprints the query image and returns at most k matches,
// closest first. An undecodable query wraps util.ErrQueryDecode.
func (e *Engine) Search(ctx context.Context, query []byte, k int) ([]Match, error) {
	img, err := imageio.Decode(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrQueryDecode, err)
	}
	hash, err := e.hasher.Hash(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrQueryDecode, err)
	}
	return e.SearchHash(ctx, hash, k)
}

type ranked struct {
	fp       *store.Fingerprint
	distance int
}

// SearchHash ranks stored fingerprints against hash. Ties keep store order.
// The top k are joined with mapset metadata; a result whose set has no
// metadata row is dropped.
func (e *Engine) SearchHash(ctx context.Context, hash []byte, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", util.ErrInvalidConfig, k)
	}
	if len(hash) != e.hasher.Len() {
		return nil, fmt.Errorf("%w: query has %d bytes, expected %d", util.ErrHashLengthMismatch, len(hash), e.hasher.Len())
	}

	prints, err := e.fingerprints()
	if err != nil {
		return nil, err
	}

	all := make([]ranked, 0, len(prints))
	skipped := 0
	for _, fp := range prints {
		d, err := phash.Distance(hash, fp.Hash)
		if err != nil {
			skipped++
			continue
		}
		all = append(all, ranked{fp: fp, distance: d})
	}
	if skipped > 0 {
		util.WarnLog("Ignored %d fingerprints of unexpected length", skipped)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(all, func(a, b ranked) int {
		return a.distance - b.distance
	})
	if len(all) > k {
		all = all[:k]
	}

	ids := make([]int, 0, len(all))
	for _, r := range all {
		if id, ok := content.SetID(r.fp.Identity); ok {
			ids = append(ids, id)
		}
	}
	meta, err := e.store.GetMapsetsByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapset metadata: %w", err)
	}

	matches := make([]Match, 0, len(all))
	for _, r := range all {
		id, ok := content.SetID(r.fp.Identity)
		if !ok {
			util.WarnLog("Fingerprint %s has no set id prefix", r.fp.Identity)
			continue
		}
		m, ok := meta[id]
		if !ok {
			util.WarnLog("Fingerprint %s has no mapset row for set %d", r.fp.Identity, id)
			continue
		}
		matches = append(matches, Match{
			Identity:   r.fp.Identity,
			ImageName:  content.ImageName(r.fp.Identity),
			SetID:      id,
			Distance:   r.distance,
			Similarity: phash.Similarity(r.distance, e.hasher.Bits()),
			Artist:     m.Artist,
			Title:      m.Title,
			Creator:    m.Creator,
			Mode:       osu.Mode(m.Mode),
			PreviewURL: e.preview(id),
		})
	}
	return matches, nil
}

func (e *Engine) preview(id int) string {
	if !strings.Contains(e.previewURL, "%d") {
		return e.previewURL
	}
	return fmt.Sprintf(e.previewURL, id)
}

// fingerprints returns the collection, from the cache when enabled
func (e *Engine) fingerprints() ([]*store.Fingerprint, error) {
	var gen uint64
	if e.cache {
		e.mu.RLock()
		cached := e.cached
		gen = e.gen
		e.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
	}

	if err := e.store.CheckHashConfig(e.hasher.Name()); err != nil {
		return nil, err
	}
	prints, err := e.store.AllFingerprints()
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprints: %w", err)
	}
	if prints == nil {
		prints = []*store.Fingerprint{}
	}

	if e.cache {
		e.mu.Lock()
		if e.gen == gen {
			e.cached = prints
		}
		e.mu.Unlock()
	}
	return prints, nil
}

// Invalidate drops the cached fingerprint set; the next query reloads it
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.cached = nil
	e.gen++
	e.mu.Unlock()
}

// Stats counts mapsets and fingerprints
func (e *Engine) Stats() (*Stats, error) {
	mapsets, err := e.store.CountMapsets()
	if err != nil {
		return nil, err
	}
	prints, err := e.store.CountFingerprints()
	if err != nil {
		return nil, err
	}
	return &Stats{Mapsets: mapsets, Fingerprints: prints, Hash: e.hasher.Name()}, nil
}

// IsQueryError reports whether err is the caller's fault rather than the server's
func IsQueryError(err error) bool {
	return errors.Is(err, util.ErrQueryDecode) || errors.Is(err, util.ErrInvalidConfig)
}
