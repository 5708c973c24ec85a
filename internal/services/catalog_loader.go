package services

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/codyseavey/tcg-scanner/backend/internal/metrics"
	"github.com/codyseavey/tcg-scanner/backend/internal/models"
)

// LoadCatalog reads every catalog row in storage order and builds the index.
// Any failure here is fatal for the caller.
func LoadCatalog(db *gorm.DB) (*CatalogIndex, error) {
	var rows []models.CatalogRow
	if err := db.Order("rowid").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	records := make([]models.CardRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.Record())
	}

	idx, err := NewCatalogIndex(records)
	if err != nil {
		return nil, fmt.Errorf("failed to index catalog: %w", err)
	}

	hpBuckets, nameBuckets, attackBuckets := idx.Stats()
	log.Printf("[Catalog] Indexed %d cards: %d HP buckets, %d name buckets, %d attack tokens",
		idx.Len(), hpBuckets, nameBuckets, attackBuckets)
	metrics.CatalogSize.Set(float64(idx.Len()))

	return idx, nil
}
