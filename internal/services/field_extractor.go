package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Zones splits recognized text by position on the card: top is the name and
// HP band, middle the attack text, bottom the set number and retreat cost.
type Zones struct {
	Top    string `json:"top"`
	Middle string `json:"middle"`
	Bottom string `json:"bottom"`
}

// RecognizedText is the output of a text-recognition pass over one card.
type RecognizedText struct {
	FullText string   `json:"full_text"`
	Words    []string `json:"words,omitempty"`
	Zones    *Zones   `json:"zones,omitempty"`
}

// ParsedFields holds the typed hints extracted from recognized text.
type ParsedFields struct {
	Name        string   `json:"name,omitempty"`
	HP          *int     `json:"hp,omitempty"`
	SetFraction string   `json:"set_fraction,omitempty"`
	Attacks     []string `json:"attacks"`
	Words       []string `json:"words"`
}

const (
	minHP = 30
	maxHP = 340

	// topZoneFraction is the share of characters treated as the top (or
	// bottom) band when no line structure or zones are available.
	topZoneFraction = 0.3

	minNameWordLength      = 3
	minSubstringNameLength = 4
	minAttackTokenLength   = 6
)

// fieldRule is one entry of an ordered extraction table: a pattern plus a
// validator over its submatches. The first rule that matches and accepts wins.
type fieldRule struct {
	name    string
	pattern *regexp.Regexp
	accept  func(match []string) (string, bool)
}

// firstAccepted evaluates rules against each text in turn and returns the
// first accepted value. Every match of a rule is tried before moving on.
func firstAccepted(rules []fieldRule, texts ...string) (string, bool) {
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, rule := range rules {
			for _, match := range rule.pattern.FindAllStringSubmatch(text, -1) {
				if value, ok := rule.accept(match); ok {
					return value, true
				}
			}
		}
	}
	return "", false
}

func acceptHP(match []string) (string, bool) {
	hp, err := strconv.Atoi(match[1])
	if err != nil || hp < minHP || hp > maxHP {
		return "", false
	}
	return match[1], true
}

// acceptBareHP is the unlabeled-number heuristic: HP is printed in steps of 10.
func acceptBareHP(match []string) (string, bool) {
	value, ok := acceptHP(match)
	if !ok {
		return "", false
	}
	hp, _ := strconv.Atoi(value)
	return value, hp%10 == 0
}

func acceptFraction(match []string) (string, bool) {
	return match[1] + "/" + match[2], true
}

var (
	englishHPRules = []fieldRule{
		{name: "value_hp", pattern: regexp.MustCompile(`(?i)(\d{2,3})\s*HP`), accept: acceptHP},
		{name: "hp_value", pattern: regexp.MustCompile(`(?i)HP\s*(\d{2,3})`), accept: acceptHP},
		{name: "value_h_p", pattern: regexp.MustCompile(`(?i)(\d{2,3})\s*H\s*P`), accept: acceptHP},
	}

	bareHPRules = []fieldRule{
		{name: "bare_number", pattern: regexp.MustCompile(`\b(\d{2,3})\b`), accept: acceptBareHP},
	}

	setFractionRules = []fieldRule{
		{name: "number_total", pattern: regexp.MustCompile(`(\d{1,3})\s*/\s*(\d{2,3})`), accept: acceptFraction},
		// Trainer Gallery / Galarian Gallery style: TG17/TG30, GG01/GG70
		{name: "gallery", pattern: regexp.MustCompile(`\b((?:TG|GG|SV)\d{1,3})\s*/\s*((?:TG|GG|SV)?\d{2,3})`), accept: acceptFraction},
	}

	// Ability and attack names never wrap, so phrases stay on one line.
	abilityPattern = regexp.MustCompile(`Ability[\s:]+([A-Z][a-z]+(?:[ \t]+[A-Z][a-z]+)*)`)

	// Go's regexp has no lookahead, so the trailing boundary is consumed.
	twoWordPattern = regexp.MustCompile(`([A-Z][a-z]+[ \t]+[A-Z][a-z]+)(?:\s|$)`)
)

// layoutPhrases are two-word runs printed on every card that are not attacks.
var layoutPhrases = []string{"basic pokemon", "stage pokemon", "active spot", "stadium cards", "your opponent"}

var attackStopwords = map[string]bool{
	"basic": true, "stage": true, "pokemon": true, "trainer": true, "energy": true,
	"weakness": true, "resistance": true, "retreat": true, "cost": true, "damage": true,
	"coin": true, "flip": true, "your": true, "opponent": true, "this": true,
	"that": true, "the": true, "attack": true, "ability": true, "spatial": true,
	"active": true, "stadium": true, "cards": true, "hand": true, "during": true,
}

// FieldExtractor turns recognized text into ParsedFields. It holds only
// immutable references and is safe for concurrent use.
type FieldExtractor struct {
	index   *CatalogIndex
	locale  *LocaleTables
	hpRules []fieldRule
}

// NewFieldExtractor creates an extractor over a catalog index. A nil locale
// disables translation.
func NewFieldExtractor(index *CatalogIndex, locale *LocaleTables) *FieldExtractor {
	if locale == nil {
		locale = EmptyLocaleTables()
	}
	rules := make([]fieldRule, 0, len(englishHPRules)+2*len(locale.HPLabels()))
	rules = append(rules, englishHPRules...)
	rules = append(rules, localeHPRules(locale.HPLabels())...)
	return &FieldExtractor{index: index, locale: locale, hpRules: rules}
}

// localeHPRules builds "70 KP" / "KP 70" rules for localized labels. Labels are
// matched case-sensitively; ASCII labels also need a word boundary so that
// "KP" does not fire inside ordinary words.
func localeHPRules(labels []string) []fieldRule {
	var rules []fieldRule
	for _, label := range labels {
		quoted := regexp.QuoteMeta(label)
		after, before := quoted, quoted
		if isASCII(label) {
			after = quoted + `\b`
			before = `\b` + quoted
		}
		rules = append(rules,
			fieldRule{name: "value_" + label, pattern: regexp.MustCompile(`(\d{2,3})\s*` + after), accept: acceptHP},
			fieldRule{name: label + "_value", pattern: regexp.MustCompile(before + `\s*(\d{2,3})`), accept: acceptHP},
		)
	}
	return rules
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Extract parses recognized text into typed fields. Missing fields are left
// empty; extraction never fails.
func (e *FieldExtractor) Extract(input RecognizedText) ParsedFields {
	words := input.Words
	if words == nil {
		words = strings.Fields(input.FullText)
	}
	zones := input.Zones
	if zones == nil {
		zones = deriveZones(input.FullText)
	}

	fields := ParsedFields{
		Words:   words,
		Attacks: []string{},
	}

	if hp, ok := e.extractHP(input.FullText, zones.Top); ok {
		fields.HP = &hp
	}
	if fraction, ok := firstAccepted(setFractionRules, zones.Bottom, input.FullText); ok {
		fields.SetFraction = fraction
	}
	fields.Name = e.resolveName(input.FullText, strings.Fields(zones.Top), words)

	middleWords := words
	if input.Zones != nil {
		middleWords = strings.Fields(input.Zones.Middle)
	}
	fields.Attacks = e.extractAttacks(input.FullText, zones.Middle, middleWords)

	return fields
}

func (e *FieldExtractor) extractHP(fullText, top string) (int, bool) {
	value, ok := firstAccepted(e.hpRules, top, fullText)
	if !ok {
		value, ok = firstAccepted(bareHPRules, top)
	}
	if !ok {
		return 0, false
	}
	hp, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return hp, true
}

// resolveName finds the catalog name bucket the card belongs to. Words from
// the top band are probed before the rest.
func (e *FieldExtractor) resolveName(fullText string, topWords, words []string) string {
	candidates := cleanNameWords(append(append([]string{}, topWords...), words...))

	name := ""
	for _, w := range candidates {
		if e.index.HasName(w) {
			name = w
			break
		}
	}

	if name == "" {
		for _, w := range candidates {
			if canonical, ok := e.locale.CanonicalName(w); ok && e.index.HasName(canonical) {
				name = canonical
				break
			}
		}
	}

	if name == "" {
		name = e.substringName(candidates)
	}
	if name == "" {
		return ""
	}

	for _, suffix := range e.locale.VariantSuffixes(fullText) {
		if strings.HasSuffix(name, " "+suffix) {
			break
		}
		if variant := name + " " + suffix; e.index.HasName(variant) {
			return variant
		}
	}
	return name
}

// substringName matches words against name buckets in catalog order.
func (e *FieldExtractor) substringName(candidates []string) string {
	for _, w := range candidates {
		if len(w) < minSubstringNameLength {
			continue
		}
		for _, key := range e.index.NameKeys() {
			if strings.Contains(key, w) || strings.Contains(w, key) {
				return key
			}
		}
	}
	return ""
}

func cleanNameWords(words []string) []string {
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		if c := cleanWord(w); len([]rune(c)) >= minNameWordLength {
			cleaned = append(cleaned, c)
		}
	}
	return cleaned
}

// extractAttacks collects ability names, two-word capitalized phrases and long
// standalone words, translated into catalog vocabulary and deduplicated in
// first-seen order.
func (e *FieldExtractor) extractAttacks(fullText, middle string, middleWords []string) []string {
	source := middle
	if strings.TrimSpace(source) == "" {
		source = fullText
	}

	var tokens []string
	if m := abilityPattern.FindStringSubmatch(source); m != nil {
		tokens = append(tokens, strings.ToLower(m[1]))
	}

	for _, m := range twoWordPattern.FindAllStringSubmatch(source, -1) {
		phrase := strings.ToLower(strings.Join(strings.Fields(m[1]), " "))
		if len(phrase) > 5 && !containsLayoutPhrase(phrase) {
			tokens = append(tokens, phrase)
		}
	}

	for i, token := range tokens {
		tokens[i] = e.locale.TranslateAttack(token)
	}

	// Untranslated non-Latin words can never match an English caption.
	for _, w := range middleWords {
		c := cleanWord(w)
		if translated := e.locale.TranslateAttack(c); translated != c {
			tokens = append(tokens, translated)
			continue
		}
		if len(c) >= minAttackTokenLength && isASCII(c) && !attackStopwords[c] {
			tokens = append(tokens, c)
		}
	}
	tokens = append(tokens, e.locale.AttackPhrasesIn(fullText)...)

	return dedupeStrings(tokens)
}

func containsLayoutPhrase(phrase string) bool {
	for _, p := range layoutPhrases {
		if strings.Contains(phrase, p) {
			return true
		}
	}
	return false
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// deriveZones approximates top/middle/bottom bands when the recognizer gave
// no geometry. With enough lines the text is split into thirds by line;
// otherwise the first and last 30% of characters stand in for top and bottom.
// The middle band is the whole text so attack scanning keeps full recall.
func deriveZones(fullText string) *Zones {
	var lines []string
	for _, line := range strings.Split(fullText, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) >= 3 {
		third := (len(lines) + 2) / 3
		return &Zones{
			Top:    strings.Join(lines[:third], "\n"),
			Middle: fullText,
			Bottom: strings.Join(lines[len(lines)-third:], "\n"),
		}
	}

	runes := []rune(fullText)
	cut := int(float64(len(runes))*topZoneFraction + 0.5)
	return &Zones{
		Top:    string(runes[:cut]),
		Middle: fullText,
		Bottom: string(runes[len(runes)-cut:]),
	}
}
