package services

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/codyseavey/tcg-scanner/backend/internal/models"
)

var (
	ErrEmptyCatalog    = errors.New("catalog is empty")
	ErrMalformedRecord = errors.New("malformed catalog record")
)

// captionAttackPattern pulls attack names out of catalog captions,
// e.g. "...uses the attack Thunderbolt..." -> "thunderbolt".
var captionAttackPattern = regexp.MustCompile(`(?i)the attack (\w+)`)

// minIndexedAttackLength is the shortest attack token kept in the attack index.
const minIndexedAttackLength = 4

// CatalogIndex holds the reference catalog and the lookup structures derived
// from it. It is built once and is safe for concurrent read-only use.
// Slices returned by lookups are shared and must not be modified.
type CatalogIndex struct {
	cards    []models.CardRecord
	byID     map[string]int
	byHP     map[int][]models.CardRecord
	byName   map[string][]models.CardRecord
	byAttack map[string][]models.CardRecord

	// nameKeys keeps name buckets in first-seen catalog order so that
	// substring fallbacks are reproducible.
	nameKeys []string
}

// normalizeName is the by-name bucket key: lower-cased and trimmed.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// extractCaptionAttacks returns the attack tokens referenced by a caption.
func extractCaptionAttacks(caption string) []string {
	if caption == "" {
		return nil
	}
	var tokens []string
	for _, match := range captionAttackPattern.FindAllStringSubmatch(caption, -1) {
		token := strings.ToLower(match[1])
		if len(token) >= minIndexedAttackLength {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// NewCatalogIndex builds the HP, name and attack indexes over records.
// Records must carry an identifier and a name; anything else is a
// contract violation reported as ErrMalformedRecord.
func NewCatalogIndex(records []models.CardRecord) (*CatalogIndex, error) {
	if len(records) == 0 {
		return nil, ErrEmptyCatalog
	}

	idx := &CatalogIndex{
		cards:    make([]models.CardRecord, len(records)),
		byID:     make(map[string]int, len(records)),
		byHP:     make(map[int][]models.CardRecord),
		byName:   make(map[string][]models.CardRecord),
		byAttack: make(map[string][]models.CardRecord),
	}
	copy(idx.cards, records)

	for i, card := range idx.cards {
		if card.ID == "" {
			return nil, fmt.Errorf("%w: record %d has no id", ErrMalformedRecord, i)
		}
		nameKey := normalizeName(card.Name)
		if nameKey == "" {
			return nil, fmt.Errorf("%w: %s has no name", ErrMalformedRecord, card.ID)
		}

		if _, dup := idx.byID[card.ID]; !dup {
			idx.byID[card.ID] = i
		}

		if card.HP != nil {
			idx.byHP[*card.HP] = append(idx.byHP[*card.HP], card)
		}

		if _, seen := idx.byName[nameKey]; !seen {
			idx.nameKeys = append(idx.nameKeys, nameKey)
		}
		idx.byName[nameKey] = append(idx.byName[nameKey], card)

		for _, attack := range extractCaptionAttacks(card.Caption) {
			bucket := idx.byAttack[attack]
			// A caption can name the same attack twice; index the card once.
			if n := len(bucket); n > 0 && bucket[n-1].ID == card.ID {
				continue
			}
			idx.byAttack[attack] = append(bucket, card)
		}
	}

	return idx, nil
}

// Cards returns every record in catalog order.
func (idx *CatalogIndex) Cards() []models.CardRecord {
	return idx.cards
}

// Len returns the number of catalog records.
func (idx *CatalogIndex) Len() int {
	return len(idx.cards)
}

// Card looks up a record by identifier.
func (idx *CatalogIndex) Card(id string) (models.CardRecord, bool) {
	i, ok := idx.byID[id]
	if !ok {
		return models.CardRecord{}, false
	}
	return idx.cards[i], true
}

// ByHP returns the records printed with the given hit points.
func (idx *CatalogIndex) ByHP(hp int) []models.CardRecord {
	return idx.byHP[hp]
}

// ByName returns the records whose normalized name equals name.
func (idx *CatalogIndex) ByName(name string) []models.CardRecord {
	return idx.byName[normalizeName(name)]
}

// HasName reports whether a name bucket exists.
func (idx *CatalogIndex) HasName(name string) bool {
	return len(idx.byName[normalizeName(name)]) > 0
}

// ByAttack returns the records whose caption references the attack token.
func (idx *CatalogIndex) ByAttack(token string) []models.CardRecord {
	return idx.byAttack[strings.ToLower(strings.TrimSpace(token))]
}

// NameKeys returns the normalized names in first-seen catalog order.
func (idx *CatalogIndex) NameKeys() []string {
	return idx.nameKeys
}

// Stats reports bucket counts for startup logging.
func (idx *CatalogIndex) Stats() (hpBuckets, nameBuckets, attackBuckets int) {
	return len(idx.byHP), len(idx.byName), len(idx.byAttack)
}

// Search ranks catalog names against a free-text query for manual lookup.
func (idx *CatalogIndex) Search(query string, limit int) *models.CardSearchResult {
	queryLower := normalizeName(normalizeApostrophes(query))
	if queryLower == "" {
		return &models.CardSearchResult{Cards: []models.CardRecord{}}
	}

	type scoredMatch struct {
		idx   int
		score int
	}
	scored := make([]scoredMatch, 0)

	for i, card := range idx.cards {
		nameLower := normalizeName(normalizeApostrophes(card.Name))

		score := 0
		switch {
		case nameLower == queryLower:
			score = 1000
		case isVariantOf(nameLower, queryLower):
			// "Charizard" matches "Charizard V"
			score = 900
		case strings.HasPrefix(nameLower, queryLower+" "):
			score = 800
		case strings.HasPrefix(nameLower, queryLower):
			score = 700
		case strings.Contains(nameLower, " "+queryLower) || strings.HasSuffix(nameLower, "'s "+queryLower):
			score = 600
		case strings.Contains(nameLower, queryLower):
			score = 500
		}

		if score > 0 {
			scored = append(scored, scoredMatch{idx: i, score: score})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return idx.cards[scored[i].idx].Name < idx.cards[scored[j].idx].Name
	})

	if limit <= 0 {
		limit = 50
	}
	maxResults := min(limit, len(scored))

	cards := make([]models.CardRecord, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		cards = append(cards, idx.cards[scored[i].idx])
	}

	return &models.CardSearchResult{
		Cards:      cards,
		TotalCount: len(scored),
		HasMore:    len(scored) > maxResults,
	}
}

var variantNameSuffixes = []string{" v", " vmax", " vstar", " ex", " gx"}

func isVariantOf(name, base string) bool {
	for _, suffix := range variantNameSuffixes {
		if name == base+suffix {
			return true
		}
	}
	return false
}

// normalizeApostrophes folds curly quotes so "Blaine’s" matches "Blaine's".
func normalizeApostrophes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
}
