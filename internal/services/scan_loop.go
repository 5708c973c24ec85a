package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/codyseavey/tcg-scanner/backend/internal/metrics"
	"github.com/codyseavey/tcg-scanner/backend/internal/models"
)

// DefaultScanInterval is the capture cadence of the scan loop.
const DefaultScanInterval = 1500 * time.Millisecond

// Where a scan result came from.
const (
	SourceText   = "text"
	SourceVisual = "visual"
	SourceNone   = "none"
)

// Scan cycle outcomes.
const (
	ScanProcessed   = "processed"
	ScanSkippedBusy = "skipped_busy"
	ScanNoFrame     = "no_frame"
	ScanUnchanged   = "unchanged"
	ScanFailed      = "failed"
)

// ScanResult is the merged identification of one captured image.
type ScanResult struct {
	Source     string                   `json:"source"`
	Image      string                   `json:"image,omitempty"`
	Text       *RecognizedText          `json:"text,omitempty"`
	Fields     *ParsedFields            `json:"fields,omitempty"`
	Stage      string                   `json:"stage,omitempty"`
	Candidates []ScoredCandidate        `json:"candidates"`
	Visual     *models.FingerprintMatch `json:"visual,omitempty"`
	Error      string                   `json:"error,omitempty"`
	ScannedAt  time.Time                `json:"scanned_at"`
}

// IdentifyCapture runs the text path and falls back to the visual path when
// the text yields no candidates. Either collaborator may be unavailable: a nil
// recognizer skips the text path and an identifier without fingerprints skips
// the visual one. An error is returned only when no path could run.
func IdentifyCapture(ctx context.Context, id *Identifier, rec TextRecognizer, img image.Image) (ScanResult, error) {
	result := ScanResult{Source: SourceNone, Candidates: []ScoredCandidate{}, ScannedAt: time.Now()}

	var textErr error
	if rec != nil {
		text, err := rec.Recognize(ctx, img)
		switch {
		case err != nil:
			textErr = err
			log.Printf("[ScanLoop] Text recognition failed: %v", err)
		case strings.TrimSpace(text.FullText) != "":
			tr := id.IdentifyTextDetailed(text)
			result.Text = &text
			result.Fields = &tr.Fields
			result.Stage = tr.Stage
			if len(tr.Candidates) > 0 {
				result.Source = SourceText
				result.Candidates = tr.Candidates
				return result, nil
			}
		}
	}

	if !id.HasFingerprints() {
		return result, textErr
	}

	match, err := id.IdentifyVisual(ctx, img)
	if err != nil {
		if textErr != nil {
			return result, fmt.Errorf("text: %v; visual: %w", textErr, err)
		}
		return result, err
	}
	if match == nil {
		return result, nil
	}

	result.Source = SourceVisual
	result.Visual = match
	if card, ok := id.Catalog().Card(match.ID); ok {
		result.Candidates = []ScoredCandidate{{
			Card:    card,
			Score:   id.MaxDistance() - match.Distance,
			Reasons: []string{fmt.Sprintf("Visual match: distance %d", match.Distance)},
		}}
	}
	return result, nil
}

// ScanLoop identifies the newest capture in a directory at a fixed interval.
// At most one cycle runs at a time; ticks that arrive while a cycle is still
// running are skipped.
type ScanLoop struct {
	identifier *Identifier
	recognizer TextRecognizer
	dir        string
	interval   time.Duration

	busy atomic.Bool

	mu       sync.RWMutex
	latest   *ScanResult
	lastFile string
	lastMod  time.Time
}

// NewScanLoop creates a scan loop over dir. interval <= 0 uses the default.
func NewScanLoop(identifier *Identifier, recognizer TextRecognizer, dir string, interval time.Duration) *ScanLoop {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &ScanLoop{
		identifier: identifier,
		recognizer: recognizer,
		dir:        dir,
		interval:   interval,
	}
}

// Start ticks until ctx is done. Each tick runs in its own goroutine so a slow
// cycle shows up as skipped ticks instead of a drifting schedule.
func (l *ScanLoop) Start(ctx context.Context) {
	log.Printf("[ScanLoop] Watching %s every %v", l.dir, l.interval)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ScanLoop] Stopped")
			return
		case <-ticker.C:
			go l.Tick(ctx)
		}
	}
}

// Tick runs one capture-and-identify cycle and returns its outcome.
func (l *ScanLoop) Tick(ctx context.Context) string {
	outcome := l.tick(ctx)
	metrics.ScanCyclesTotal.WithLabelValues(outcome).Inc()
	return outcome
}

func (l *ScanLoop) tick(ctx context.Context) string {
	if !l.busy.CompareAndSwap(false, true) {
		return ScanSkippedBusy
	}
	defer l.busy.Store(false)

	path, modTime, err := newestImage(l.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[ScanLoop] Listing %s: %v", l.dir, err)
		}
		return ScanNoFrame
	}

	l.mu.RLock()
	unchanged := path == l.lastFile && modTime.Equal(l.lastMod)
	l.mu.RUnlock()
	if unchanged {
		return ScanUnchanged
	}

	result, err := l.process(ctx, path)
	outcome := ScanProcessed
	if err != nil {
		log.Printf("[ScanLoop] %s: %v", filepath.Base(path), err)
		result.Error = err.Error()
		outcome = ScanFailed
	} else {
		log.Printf("[ScanLoop] %s: source=%s candidates=%d", filepath.Base(path), result.Source, len(result.Candidates))
	}

	l.mu.Lock()
	l.latest = &result
	l.lastFile = path
	l.lastMod = modTime
	l.mu.Unlock()
	return outcome
}

func (l *ScanLoop) process(ctx context.Context, path string) (ScanResult, error) {
	failed := ScanResult{Source: SourceNone, Image: filepath.Base(path), Candidates: []ScoredCandidate{}, ScannedAt: time.Now()}

	cleanPath, err := validateImagePath(path)
	if err != nil {
		return failed, err
	}
	img, err := imaging.Open(cleanPath, imaging.AutoOrientation(true))
	if err != nil {
		return failed, fmt.Errorf("decoding capture: %w", err)
	}

	result, err := IdentifyCapture(ctx, l.identifier, l.recognizer, img)
	result.Image = filepath.Base(path)
	return result, err
}

// Latest returns the most recent cycle's result, or nil before the first one.
func (l *ScanLoop) Latest() *ScanResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

// Busy reports whether a cycle is in flight.
func (l *ScanLoop) Busy() bool {
	return l.busy.Load()
}

// newestImage returns the most recently modified image file in dir. Ties go
// to the lexically greater name so the choice is stable.
func newestImage(dir string) (string, time.Time, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", time.Time{}, err
	}

	var bestName string
	var bestMod time.Time
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if !allowedImageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		mod := info.ModTime()
		if bestName == "" || mod.After(bestMod) || (mod.Equal(bestMod) && entry.Name() > bestName) {
			bestName, bestMod = entry.Name(), mod
		}
	}
	if bestName == "" {
		return "", time.Time{}, os.ErrNotExist
	}
	return filepath.Join(dir, bestName), bestMod, nil
}
