package models

import (
	"strconv"
	"strings"
)

// CatalogRow is a row of the bundled reference catalog. HP is stored as text
// and may be empty or NULL for trainer and energy cards.
type CatalogRow struct {
	ID       string  `gorm:"column:id;primaryKey"`
	Name     string  `gorm:"column:name"`
	HP       *string `gorm:"column:hp"`
	SetName  string  `gorm:"column:set_name"`
	Caption  string  `gorm:"column:caption"`
	ImageURL string  `gorm:"column:image_url"`
}

func (CatalogRow) TableName() string {
	return "pokemon_cards"
}

// CardRecord is an immutable catalog entry. ID has the form "<set-code>-<number>".
type CardRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	HP       *int   `json:"hp"`
	SetName  string `json:"set_name"`
	Caption  string `json:"caption"`
	ImageURL string `json:"image_url"`
}

// Record converts a catalog row, parsing HP with integer semantics.
func (r CatalogRow) Record() CardRecord {
	rec := CardRecord{
		ID:       strings.TrimSpace(r.ID),
		Name:     r.Name,
		SetName:  r.SetName,
		Caption:  r.Caption,
		ImageURL: r.ImageURL,
	}
	if r.HP != nil {
		if hp, err := strconv.Atoi(strings.TrimSpace(*r.HP)); err == nil {
			rec.HP = &hp
		}
	}
	return rec
}

// HasHP reports whether the record carries an integer HP value equal to hp.
func (c CardRecord) HasHP(hp int) bool {
	return c.HP != nil && *c.HP == hp
}

// Number returns the trailing segment of the identifier ("xy1-4" -> "4").
func (c CardRecord) Number() string {
	if idx := strings.LastIndex(c.ID, "-"); idx >= 0 {
		return c.ID[idx+1:]
	}
	return c.ID
}

type CardSearchResult struct {
	Cards      []CardRecord `json:"cards"`
	TotalCount int          `json:"total_count"`
	HasMore    bool         `json:"has_more"`
}
