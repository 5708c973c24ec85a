package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codyseavey/tcg-scanner/backend/internal/metrics"
	"github.com/codyseavey/tcg-scanner/backend/internal/models"
)

// DefaultResultCacheSize is the number of text identifications remembered.
const DefaultResultCacheSize = 128

// TextResult is the outcome of the text path.
type TextResult struct {
	Fields ParsedFields `json:"fields"`
	Ranking
}

// Identifier exposes the two identification paths over one catalog: recognized
// text through extraction and ranking, and images through the fingerprint
// index. How the two are combined is up to the caller. The fingerprint index
// is optional.
type Identifier struct {
	catalog      *CatalogIndex
	extractor    *FieldExtractor
	fingerprints *FingerprintIndex

	cache *lru.Cache[string, TextResult] // input text -> result
}

// NewIdentifier creates the facade. cacheSize <= 0 uses the default size.
func NewIdentifier(catalog *CatalogIndex, extractor *FieldExtractor, fingerprints *FingerprintIndex, cacheSize int) (*Identifier, error) {
	if catalog == nil || extractor == nil {
		return nil, errors.New("identifier needs a catalog and an extractor")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultResultCacheSize
	}
	cache, err := lru.New[string, TextResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating result cache: %w", err)
	}
	return &Identifier{
		catalog:      catalog,
		extractor:    extractor,
		fingerprints: fingerprints,
		cache:        cache,
	}, nil
}

func (s *Identifier) Catalog() *CatalogIndex { return s.catalog }

// HasFingerprints reports whether the visual path is configured.
func (s *Identifier) HasFingerprints() bool { return s.fingerprints != nil }

// IdentifyText returns up to three catalog records for the recognized text.
func (s *Identifier) IdentifyText(input RecognizedText) []models.CardRecord {
	return s.IdentifyTextDetailed(input).Cards()
}

// IdentifyTextDetailed runs extraction and ranking and keeps the parsed fields,
// scores and reasons. Results are cached by input text; a card held under the
// camera produces the same reading many cycles in a row.
func (s *Identifier) IdentifyTextDetailed(input RecognizedText) TextResult {
	key := textCacheKey(input)
	if cached, ok := s.cache.Get(key); ok {
		metrics.ResultCacheHits.Inc()
		return cached
	}
	metrics.ResultCacheMisses.Inc()

	fields := s.extractor.Extract(input)
	log.Printf("[Identify] Parsed: name=%q hp=%s set=%q attacks=%d",
		fields.Name, formatHP(fields.HP), fields.SetFraction, len(fields.Attacks))

	result := TextResult{Fields: fields, Ranking: RankDetailed(fields, input.FullText, s.catalog)}
	s.cache.Add(key, result)

	metrics.IdentifyRequestsTotal.WithLabelValues("text", outcomeLabel(len(result.Candidates) > 0)).Inc()
	return result
}

// textCacheKey encodes every input the extractor reads, so equal keys always
// extract the same fields. Every string is length-prefixed, and nil words or
// zones differ from empty ones.
func textCacheKey(input RecognizedText) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s", len(input.FullText), input.FullText)

	b.WriteString("\x00w")
	if input.Words == nil {
		b.WriteByte('-')
	} else {
		fmt.Fprintf(&b, "%d", len(input.Words))
		for _, w := range input.Words {
			fmt.Fprintf(&b, ":%d:%s", len(w), w)
		}
	}

	b.WriteString("\x00z")
	if z := input.Zones; z != nil {
		for _, part := range []string{z.Top, z.Middle, z.Bottom} {
			fmt.Fprintf(&b, ":%d:%s", len(part), part)
		}
	} else {
		b.WriteByte('-')
	}
	return b.String()
}

// IdentifyImage matches the image file at path against the fingerprint index,
// building the index on first use. A nil match with a nil error means nothing
// was close enough.
func (s *Identifier) IdentifyImage(ctx context.Context, path string) (*models.FingerprintMatch, error) {
	if s.fingerprints == nil {
		return nil, ErrFingerprintIndexNotReady
	}
	cleanPath, err := validateImagePath(path)
	if err != nil {
		return nil, err
	}
	match, ok, err := s.fingerprints.IdentifyFile(ctx, cleanPath)
	if err != nil {
		return nil, err
	}
	return visualOutcome(match, ok), nil
}

// IdentifyVisual is IdentifyImage for an already decoded image.
func (s *Identifier) IdentifyVisual(ctx context.Context, img image.Image) (*models.FingerprintMatch, error) {
	if s.fingerprints == nil {
		return nil, ErrFingerprintIndexNotReady
	}
	match, ok, err := s.fingerprints.Identify(ctx, img)
	if err != nil {
		return nil, err
	}
	return visualOutcome(match, ok), nil
}

func visualOutcome(match models.FingerprintMatch, ok bool) *models.FingerprintMatch {
	metrics.IdentifyRequestsTotal.WithLabelValues("image", outcomeLabel(ok)).Inc()
	if !ok {
		return nil
	}
	return &match
}

func outcomeLabel(matched bool) string {
	if matched {
		return "match"
	}
	return "none"
}

// EnsureFingerprintIndex loads the fingerprint cache, building it if needed.
func (s *Identifier) EnsureFingerprintIndex(ctx context.Context) error {
	if s.fingerprints == nil {
		return ErrFingerprintIndexNotReady
	}
	return s.fingerprints.EnsureLoaded(ctx)
}

// RebuildFingerprintIndex discards the cache and fetches every sample again.
func (s *Identifier) RebuildFingerprintIndex(ctx context.Context) error {
	if s.fingerprints == nil {
		return ErrFingerprintIndexNotReady
	}
	return s.fingerprints.Rebuild(ctx)
}

// FingerprintStatus reports the visual index state. ok is false when the
// visual path is not configured.
func (s *Identifier) FingerprintStatus() (FingerprintStatus, bool) {
	if s.fingerprints == nil {
		return FingerprintStatus{}, false
	}
	return s.fingerprints.Status(), true
}

// MaxDistance is the visual acceptance threshold, or 0 without an index.
func (s *Identifier) MaxDistance() int {
	if s.fingerprints == nil {
		return 0
	}
	return s.fingerprints.cfg.MaxDistance
}
