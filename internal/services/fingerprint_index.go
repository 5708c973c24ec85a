package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/codyseavey/tcg-scanner/backend/internal/metrics"
	"github.com/codyseavey/tcg-scanner/backend/internal/models"
)

// ErrFingerprintIndexNotReady is returned by lookups made before the index
// has been loaded or built.
var ErrFingerprintIndexNotReady = errors.New("fingerprint index not loaded")

const (
	fingerprintCacheVersion = 1

	// DefaultSampleLimit bounds how many catalog records are fingerprinted.
	DefaultSampleLimit = 100
)

// FingerprintIndexConfig controls how the visual index is built and cached.
type FingerprintIndexConfig struct {
	// CachePath is the JSON cache file. Empty keeps the index in memory only.
	CachePath string
	Grid      GridSize
	// SampleLimit caps the records fingerprinted. Zero uses
	// DefaultSampleLimit and a negative value takes the whole catalog.
	SampleLimit int
	MaxDistance int
}

// fingerprintCache is the on-disk format. The grid is recorded so a cache
// built with a different grid is detected and rebuilt.
type fingerprintCache struct {
	Version    int                       `json:"version"`
	GridWidth  int                       `json:"grid_width"`
	GridHeight int                       `json:"grid_height"`
	Entries    []models.FingerprintEntry `json:"entries"`
}

// FingerprintStatus describes the index for the status endpoint.
type FingerprintStatus struct {
	Loaded      bool       `json:"loaded"`
	Entries     int        `json:"entries"`
	Grid        GridSize   `json:"grid"`
	MaxDistance int        `json:"max_distance"`
	SampleLimit int        `json:"sample_limit"`
	CachePath   string     `json:"cache_path,omitempty"`
	BuiltAt     *time.Time `json:"built_at,omitempty"`
}

// FingerprintIndex is the visual index over a bounded prefix of the catalog.
// It is built lazily on first use and persisted; later loads read the cache.
type FingerprintIndex struct {
	catalog *CatalogIndex
	fetcher ImageFetcher
	cfg     FingerprintIndexConfig

	// buildMu serializes loads and builds; mu guards the fields below.
	buildMu sync.Mutex
	mu      sync.RWMutex
	entries []models.FingerprintEntry
	loaded  bool
	builtAt *time.Time
}

// NewFingerprintIndex creates an unloaded index. Zero config values fall back
// to the defaults.
func NewFingerprintIndex(catalog *CatalogIndex, fetcher ImageFetcher, cfg FingerprintIndexConfig) *FingerprintIndex {
	if !cfg.Grid.Valid() {
		cfg.Grid = DefaultGrid
	}
	if cfg.SampleLimit == 0 {
		cfg.SampleLimit = DefaultSampleLimit
	}
	if cfg.MaxDistance <= 0 {
		cfg.MaxDistance = DefaultMaxDistance
	}
	return &FingerprintIndex{catalog: catalog, fetcher: fetcher, cfg: cfg}
}

// Grid returns the hash grid the index is built with.
func (x *FingerprintIndex) Grid() GridSize {
	return x.cfg.Grid
}

// EnsureLoaded loads the cached index, building it first when no usable
// cache exists. Calls after a successful load return immediately, even while
// a Rebuild is running; they keep using the current entries until it publishes.
func (x *FingerprintIndex) EnsureLoaded(ctx context.Context) error {
	if x.isLoaded() {
		return nil
	}

	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	if x.isLoaded() {
		return nil
	}
	return x.loadOrBuild(ctx, false)
}

func (x *FingerprintIndex) isLoaded() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.loaded
}

// Rebuild discards any cache and fingerprints the catalog sample again.
func (x *FingerprintIndex) Rebuild(ctx context.Context) error {
	x.buildMu.Lock()
	defer x.buildMu.Unlock()
	return x.loadOrBuild(ctx, true)
}

func (x *FingerprintIndex) loadOrBuild(ctx context.Context, force bool) error {
	if x.cfg.CachePath != "" {
		if err := os.MkdirAll(filepath.Dir(x.cfg.CachePath), 0755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		// Another process may be building the same cache.
		lock := flock.New(x.cfg.CachePath + ".lock")
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("locking fingerprint cache: %w", err)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.Printf("[Fingerprint] Failed to release cache lock: %v", err)
			}
		}()

		if !force {
			entries, err := x.readCache()
			if err == nil {
				var builtAt *time.Time
				if info, statErr := os.Stat(x.cfg.CachePath); statErr == nil {
					mod := info.ModTime()
					builtAt = &mod
				}
				x.publish(entries, builtAt)
				log.Printf("[Fingerprint] Loaded %d fingerprints (%s) from %s", len(entries), x.cfg.Grid, x.cfg.CachePath)
				return nil
			}
			if !errors.Is(err, os.ErrNotExist) {
				log.Printf("[Fingerprint] Ignoring cache %s: %v", x.cfg.CachePath, err)
			}
		}
	}

	entries, err := x.build(ctx)
	if err != nil {
		return err
	}

	if x.cfg.CachePath != "" {
		if err := x.writeCache(entries); err != nil {
			return err
		}
	}
	now := time.Now()
	x.publish(entries, &now)
	return nil
}

func (x *FingerprintIndex) publish(entries []models.FingerprintEntry, builtAt *time.Time) {
	x.mu.Lock()
	x.entries = entries
	x.loaded = true
	x.builtAt = builtAt
	x.mu.Unlock()
	metrics.FingerprintIndexSize.Set(float64(len(entries)))
}

// build fingerprints the catalog sample. Records that cannot be fetched or
// decoded are logged and left out.
func (x *FingerprintIndex) build(ctx context.Context) ([]models.FingerprintEntry, error) {
	sample := x.catalog.Cards()
	if x.cfg.SampleLimit > 0 && len(sample) > x.cfg.SampleLimit {
		sample = sample[:x.cfg.SampleLimit]
	}

	start := time.Now()
	log.Printf("[Fingerprint] Building index for %d records (grid %s)", len(sample), x.cfg.Grid)

	entries := make([]models.FingerprintEntry, 0, len(sample))
	for i, card := range sample {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fingerprint build interrupted after %d records: %w", i, err)
		}

		img, err := x.fetchImage(ctx, card)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fingerprint build interrupted after %d records: %w", i, ctx.Err())
			}
			metrics.FingerprintBuildFailures.WithLabelValues(failureReason(err)).Inc()
			log.Printf("[Fingerprint] Skipping %s: %v", card.ID, err)
			continue
		}

		entries = append(entries, models.FingerprintEntry{ID: card.ID, Hash: Fingerprint(img, x.cfg.Grid)})
		if (i+1)%10 == 0 {
			log.Printf("[Fingerprint] Processed %d/%d", i+1, len(sample))
		}
	}

	log.Printf("[Fingerprint] Built %d/%d fingerprints in %v", len(entries), len(sample), time.Since(start).Round(time.Millisecond))
	return entries, nil
}

func (x *FingerprintIndex) fetchImage(ctx context.Context, card models.CardRecord) (image.Image, error) {
	if card.ImageURL == "" {
		return nil, ErrNoImage
	}
	return x.fetcher.Fetch(ctx, card.ImageURL)
}

func failureReason(err error) string {
	var fetchErr *FetchError
	switch {
	case errors.Is(err, ErrNoImage):
		return "no_image"
	case errors.As(err, &fetchErr) && fetchErr.Decode:
		return "decode"
	default:
		return "fetch"
	}
}

func (x *FingerprintIndex) readCache() ([]models.FingerprintEntry, error) {
	data, err := os.ReadFile(x.cfg.CachePath)
	if err != nil {
		return nil, err
	}

	var cache fingerprintCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("corrupt cache: %w", err)
	}
	if cache.Version != fingerprintCacheVersion {
		return nil, fmt.Errorf("cache version %d, want %d", cache.Version, fingerprintCacheVersion)
	}
	if cache.GridWidth != x.cfg.Grid.Width || cache.GridHeight != x.cfg.Grid.Height {
		return nil, fmt.Errorf("cache grid %dx%d, want %s", cache.GridWidth, cache.GridHeight, x.cfg.Grid)
	}
	if cache.Entries == nil {
		cache.Entries = []models.FingerprintEntry{}
	}
	return cache.Entries, nil
}

// writeCache replaces the cache file atomically via a temp file and rename.
func (x *FingerprintIndex) writeCache(entries []models.FingerprintEntry) error {
	data, err := json.MarshalIndent(fingerprintCache{
		Version:    fingerprintCacheVersion,
		GridWidth:  x.cfg.Grid.Width,
		GridHeight: x.cfg.Grid.Height,
		Entries:    entries,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding fingerprint cache: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(x.cfg.CachePath), filepath.Base(x.cfg.CachePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing fingerprint cache: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing fingerprint cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing fingerprint cache: %w", err)
	}
	if err := os.Rename(tmpName, x.cfg.CachePath); err != nil {
		return fmt.Errorf("replacing fingerprint cache: %w", err)
	}

	log.Printf("[Fingerprint] Saved %d fingerprints to %s", len(entries), x.cfg.CachePath)
	return nil
}

// Entries returns the loaded fingerprints in catalog order.
func (x *FingerprintIndex) Entries() []models.FingerprintEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.entries
}

// Match finds the closest indexed fingerprint to hash without loading.
func (x *FingerprintIndex) Match(hash string) (models.FingerprintMatch, bool, error) {
	x.mu.RLock()
	entries, loaded := x.entries, x.loaded
	x.mu.RUnlock()
	if !loaded {
		return models.FingerprintMatch{}, false, ErrFingerprintIndexNotReady
	}

	match, ok := FindBestMatch(hash, entries, x.cfg.MaxDistance)
	if match.Distance >= 0 {
		metrics.FingerprintMatchDistance.Observe(float64(match.Distance))
	}
	return match, ok, nil
}

// Identify fingerprints img and returns the closest catalog entry when it is
// within the acceptance threshold. The index is loaded on first use.
func (x *FingerprintIndex) Identify(ctx context.Context, img image.Image) (models.FingerprintMatch, bool, error) {
	if err := x.EnsureLoaded(ctx); err != nil {
		return models.FingerprintMatch{}, false, err
	}
	return x.Match(Fingerprint(img, x.cfg.Grid))
}

// IdentifyFile is Identify for an image on disk.
func (x *FingerprintIndex) IdentifyFile(ctx context.Context, path string) (models.FingerprintMatch, bool, error) {
	if err := x.EnsureLoaded(ctx); err != nil {
		return models.FingerprintMatch{}, false, err
	}
	hash, err := FingerprintFile(path, x.cfg.Grid)
	if err != nil {
		return models.FingerprintMatch{}, false, err
	}
	return x.Match(hash)
}

// Status reports the index state without triggering a load.
func (x *FingerprintIndex) Status() FingerprintStatus {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return FingerprintStatus{
		Loaded:      x.loaded,
		Entries:     len(x.entries),
		Grid:        x.cfg.Grid,
		MaxDistance: x.cfg.MaxDistance,
		SampleLimit: x.cfg.SampleLimit,
		CachePath:   x.cfg.CachePath,
		BuiltAt:     x.builtAt,
	}
}
