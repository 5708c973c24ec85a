package services

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

//go:embed locale_defaults.toml
var defaultLocaleTOML []byte

// VariantMarker maps a text pattern (e.g. "VMAX" printed on the card) to the
// suffix appended to a resolved name when looking up the variant bucket.
type VariantMarker struct {
	Pattern string `toml:"pattern"`
	Suffix  string `toml:"suffix"`
}

type localeFile struct {
	HPLabels       []string          `toml:"hp_labels"`
	Names          map[string]string `toml:"names"`
	Attacks        map[string]string `toml:"attacks"`
	VariantMarkers []VariantMarker   `toml:"variant_markers"`
}

type compiledMarker struct {
	re     *regexp.Regexp
	suffix string
}

// LocaleTables carries the translation data injected into the field extractor:
// localized card names, localized attack names, HP labels and variant markers.
// It is immutable once loaded.
type LocaleTables struct {
	names        map[string]string
	attacks      map[string]string
	attackKeys   []string // longest first
	hpLabels     []string
	markers      []compiledMarker
	markerSuffix []string
}

// LoadLocaleTables reads locale tables from a TOML file. An empty path loads
// the tables bundled with the binary.
func LoadLocaleTables(path string) (*LocaleTables, error) {
	data := defaultLocaleTOML
	source := "embedded defaults"
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading locale tables: %w", err)
		}
		data = raw
		source = path
	}

	tables, err := ParseLocaleTables(data)
	if err != nil {
		return nil, fmt.Errorf("parsing locale tables from %s: %w", source, err)
	}
	log.Printf("[Locale] Loaded %d names, %d attacks, %d variant markers from %s",
		len(tables.names), len(tables.attacks), len(tables.markers), source)
	return tables, nil
}

// ParseLocaleTables decodes TOML locale data.
func ParseLocaleTables(data []byte) (*LocaleTables, error) {
	var file localeFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return NewLocaleTables(file.Names, file.Attacks, file.HPLabels, file.VariantMarkers)
}

// NewLocaleTables builds tables from in-memory data. Name and attack keys are
// folded the same way recognized words are, so lookups are insensitive to case
// and accents.
func NewLocaleTables(names, attacks map[string]string, hpLabels []string, markers []VariantMarker) (*LocaleTables, error) {
	t := &LocaleTables{
		names:   make(map[string]string, len(names)),
		attacks: make(map[string]string, len(attacks)),
	}

	for k, v := range names {
		key := cleanWord(k)
		if key == "" {
			continue
		}
		t.names[key] = normalizeName(v)
	}

	for k, v := range attacks {
		key := foldPhrase(k)
		if key == "" {
			continue
		}
		t.attacks[key] = strings.ToLower(strings.TrimSpace(v))
		t.attackKeys = append(t.attackKeys, key)
	}
	sort.Slice(t.attackKeys, func(i, j int) bool {
		a, b := t.attackKeys[i], t.attackKeys[j]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})

	for _, label := range hpLabels {
		if label = strings.TrimSpace(label); label != "" {
			t.hpLabels = append(t.hpLabels, label)
		}
	}

	for _, m := range markers {
		re, err := regexp.Compile(m.Pattern)
		if err != nil {
			return nil, fmt.Errorf("variant marker %q: %w", m.Pattern, err)
		}
		suffix := strings.ToLower(strings.TrimSpace(m.Suffix))
		if suffix == "" {
			return nil, fmt.Errorf("variant marker %q has no suffix", m.Pattern)
		}
		t.markers = append(t.markers, compiledMarker{re: re, suffix: suffix})
	}

	return t, nil
}

// EmptyLocaleTables returns tables with no entries.
func EmptyLocaleTables() *LocaleTables {
	t, _ := NewLocaleTables(nil, nil, nil, nil)
	return t
}

// CanonicalName resolves a recognized word to a reference name.
func (t *LocaleTables) CanonicalName(word string) (string, bool) {
	name, ok := t.names[cleanWord(word)]
	return name, ok
}

// TranslateAttack maps a localized attack token to catalog vocabulary. Tokens
// with no translation are returned unchanged.
func (t *LocaleTables) TranslateAttack(token string) string {
	if translated, ok := t.attacks[foldPhrase(token)]; ok {
		return translated
	}
	return token
}

// AttackPhrasesIn returns the translations of every localized attack phrase
// found in text, longest phrase first.
func (t *LocaleTables) AttackPhrasesIn(text string) []string {
	folded := foldPhrase(text)
	if folded == "" {
		return nil
	}
	var found []string
	for _, key := range t.attackKeys {
		if strings.Contains(folded, key) {
			found = append(found, t.attacks[key])
		}
	}
	return found
}

// HPLabels returns the localized HP labels, e.g. "KP".
func (t *LocaleTables) HPLabels() []string {
	return t.hpLabels
}

// VariantSuffixes returns the suffixes of every marker present in text, in
// table order and without duplicates.
func (t *LocaleTables) VariantSuffixes(text string) []string {
	var suffixes []string
	seen := make(map[string]bool)
	for _, m := range t.markers {
		if seen[m.suffix] || !m.re.MatchString(text) {
			continue
		}
		seen[m.suffix] = true
		suffixes = append(suffixes, m.suffix)
	}
	return suffixes
}

// stripMarks removes combining diacritics after NFD decomposition.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldAccents(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		return s
	}
	return folded
}

// cleanWord lower-cases a single word, folds accents and drops everything that
// is not a letter. Non-Latin letters (Cyrillic, kana) are kept.
func cleanWord(word string) string {
	var b strings.Builder
	for _, r := range foldAccents(strings.ToLower(word)) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// foldPhrase lower-cases and accent-folds a phrase and collapses whitespace.
func foldPhrase(s string) string {
	return strings.Join(strings.Fields(foldAccents(strings.ToLower(s))), " ")
}
