// Package app assembles the identification engine from configuration. The
// HTTP server and the cardid CLI share it.
package app

import (
	"fmt"
	"log"

	"github.com/codyseavey/tcg-scanner/backend/internal/config"
	"github.com/codyseavey/tcg-scanner/backend/internal/database"
	"github.com/codyseavey/tcg-scanner/backend/internal/services"
)

// Engine holds the long-lived collaborators built at startup.
type Engine struct {
	Catalog      *services.CatalogIndex
	Fingerprints *services.FingerprintIndex
	Identifier   *services.Identifier
}

// NewEngine opens the catalog and builds the identifier. Any failure is an
// initialization failure: the engine never runs on a partial catalog.
func NewEngine(cfg *config.Config) (*Engine, error) {
	db, err := database.OpenCatalog(cfg.Catalog.DBPath)
	if err != nil {
		return nil, err
	}

	// The catalog is held in memory once indexed.
	catalog, err := services.LoadCatalog(db)
	database.Close(db)
	if err != nil {
		return nil, err
	}

	locale, err := services.LoadLocaleTables(cfg.Catalog.LocaleTablesPath)
	if err != nil {
		return nil, fmt.Errorf("loading locale tables: %w", err)
	}

	fingerprints := services.NewFingerprintIndex(
		catalog,
		services.NewHTTPImageFetcher(cfg.Fingerprint.DownloadRPS),
		services.FingerprintIndexConfig{
			CachePath:   cfg.Fingerprint.CachePath,
			Grid:        services.GridSize{Width: cfg.Fingerprint.GridWidth, Height: cfg.Fingerprint.GridHeight},
			SampleLimit: cfg.Fingerprint.SampleLimit,
			MaxDistance: cfg.Fingerprint.MaxDistance,
		},
	)

	identifier, err := services.NewIdentifier(catalog, services.NewFieldExtractor(catalog, locale), fingerprints, cfg.Catalog.ResultCacheSize)
	if err != nil {
		return nil, err
	}

	log.Printf("[Engine] Ready: %d cards, fingerprint grid %s, threshold %d",
		catalog.Len(), fingerprints.Grid(), cfg.Fingerprint.MaxDistance)

	return &Engine{
		Catalog:      catalog,
		Fingerprints: fingerprints,
		Identifier:   identifier,
	}, nil
}

// Recognizer returns the tesseract recognizer, or nil when tesseract cannot
// be run. The result is a plain nil interface in that case so callers can
// compare it against nil.
func Recognizer(cfg config.OCRConfig) services.TextRecognizer {
	ocr := services.NewServerOCRService(cfg.TesseractPath, cfg.Language)
	if !ocr.IsAvailable() {
		log.Println("[Engine] Tesseract not available, text recognition disabled")
		return nil
	}
	return ocr
}
