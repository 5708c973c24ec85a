package services

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/codyseavey/tcg-scanner/backend/internal/metrics"
	"github.com/codyseavey/tcg-scanner/backend/internal/models"
)

// Scores for each ranking stage. A printed-number match is treated as
// near-certain and ends ranking early.
const (
	scoreNameAndNumber = 120
	scoreNameAndHP     = 100
	scoreNameHPMiss    = 50
	scoreNameOnly      = 40

	scoreAttackMatch   = 25
	scoreMultiAttack   = 30
	scoreNameInText    = 30
	scoreNamePart      = 10
	scoreHPMatch       = 20
	scoreSetNameWord   = 10
	fuzzyNoiseFloor    = 10
	maxHPMissFallbacks = 5

	minScoredAttackLength = 6
	minNamePartLength     = 4
	minSetWordLength      = 5

	maxCandidates = 3
)

// Ranking stage labels, reported in Ranking.Stage and in metrics.
const (
	StageNameNumber     = "name_number"
	StageNameHP         = "name_hp"
	StageNameHPMismatch = "name_hp_mismatch"
	StageNameAttacks    = "name_attacks"
	StageFuzzy          = "fuzzy"
	StageNone           = "none"
)

// Signal is the contribution of one scoring rule: points plus the reasons
// that explain them. Signals are values and are combined, never mutated.
type Signal struct {
	Points  int
	Reasons []string
}

func signal(points int, format string, args ...any) Signal {
	return Signal{Points: points, Reasons: []string{fmt.Sprintf(format, args...)}}
}

// combine sums signals in order, concatenating their reasons.
func combine(signals ...Signal) Signal {
	var out Signal
	for _, s := range signals {
		out.Points += s.Points
		out.Reasons = append(out.Reasons, s.Reasons...)
	}
	return out
}

// ScoredCandidate is a catalog record with its score and diagnostic reasons.
type ScoredCandidate struct {
	Card    models.CardRecord `json:"card"`
	Score   int               `json:"score"`
	Reasons []string          `json:"reasons"`
}

// Ranking is the ranker's full output. Stage names the last stage that
// contributed candidates.
type Ranking struct {
	Stage      string            `json:"stage"`
	Candidates []ScoredCandidate `json:"candidates"`
}

// Cards strips scores and reasons.
func (r Ranking) Cards() []models.CardRecord {
	cards := make([]models.CardRecord, len(r.Candidates))
	for i, c := range r.Candidates {
		cards[i] = c.Card
	}
	return cards
}

// Rank returns at most three catalog records for the parsed fields, best first.
func Rank(fields ParsedFields, fullText string, idx *CatalogIndex) []models.CardRecord {
	return RankDetailed(fields, fullText, idx).Cards()
}

// RankDetailed ranks candidates and keeps the scores and reasons.
func RankDetailed(fields ParsedFields, fullText string, idx *CatalogIndex) Ranking {
	start := time.Now()
	ranking := rank(fields, fullText, idx)
	metrics.RankingDuration.Observe(time.Since(start).Seconds())
	metrics.RankingStageTotal.WithLabelValues(ranking.Stage).Inc()

	for _, c := range ranking.Candidates {
		log.Printf("[Ranker] Candidate: %s (%s HP) %s - Score: %d - %s",
			c.Card.Name, formatHP(c.Card.HP), c.Card.ID, c.Score, strings.Join(c.Reasons, ", "))
	}
	return ranking
}

func rank(fields ParsedFields, fullText string, idx *CatalogIndex) Ranking {
	pool := idx.Cards()
	if fields.HP != nil {
		if bucket := idx.ByHP(*fields.HP); len(bucket) > 0 {
			pool = bucket
		}
	}

	var candidates []ScoredCandidate
	stage := StageNone

	if fields.Name != "" {
		if bucket := idx.ByName(fields.Name); len(bucket) > 0 {
			if fields.SetFraction != "" {
				if matched := numberMatchStage(bucket, fields.SetFraction); len(matched) > 0 {
					return Ranking{Stage: StageNameNumber, Candidates: topCandidates(matched)}
				}
			}
			candidates, stage = nameStage(bucket, fields)
		}
	}

	if len(candidates) < maxCandidates {
		fuzzy := fuzzyStage(pool, candidates, fields, strings.ToLower(fullText))
		if len(fuzzy) > 0 {
			candidates = append(candidates, fuzzy...)
			if stage == StageNone {
				stage = StageFuzzy
			}
		}
	}

	return Ranking{Stage: stage, Candidates: topCandidates(candidates)}
}

// numberMatchStage keeps name-bucket records whose printed number matches
// the set fraction's numerator.
func numberMatchStage(bucket []models.CardRecord, fraction string) []ScoredCandidate {
	numerator, _, _ := strings.Cut(fraction, "/")
	want := stripCardNumber(numerator)
	rawSuffix := "-" + strings.ToLower(strings.TrimSpace(numerator))

	var out []ScoredCandidate
	for _, card := range bucket {
		if stripCardNumber(card.Number()) != want && !strings.HasSuffix(strings.ToLower(card.ID), rawSuffix) {
			continue
		}
		s := combine(
			signal(0, "Exact name: %s", card.Name),
			signal(scoreNameAndNumber, "Card number match: %s", want),
		)
		out = append(out, ScoredCandidate{Card: card, Score: s.Points, Reasons: s.Reasons})
	}
	return out
}

// stripCardNumber drops gallery prefixes and leading zeros: "025" -> "25",
// "TG07" -> "7", "000" -> "0".
func stripCardNumber(number string) string {
	n := strings.TrimLeft(strings.ToUpper(strings.TrimSpace(number)), "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	n = strings.TrimLeft(n, "0")
	if n == "" && number != "" {
		return "0"
	}
	return n
}

// nameStage scores the exact-name bucket using HP, or attacks when HP is
// unknown.
func nameStage(bucket []models.CardRecord, fields ParsedFields) ([]ScoredCandidate, string) {
	if fields.HP != nil {
		hp := *fields.HP
		var matched []ScoredCandidate
		for _, card := range bucket {
			if card.HasHP(hp) {
				s := combine(signal(scoreNameAndHP, "Exact name: %s", card.Name), signal(0, "HP match: %d", hp))
				matched = append(matched, ScoredCandidate{Card: card, Score: s.Points, Reasons: s.Reasons})
			}
		}
		if len(matched) > 0 {
			return matched, StageNameHP
		}

		fallback := bucket[:min(len(bucket), maxHPMissFallbacks)]
		out := make([]ScoredCandidate, 0, len(fallback))
		for _, card := range fallback {
			s := combine(signal(scoreNameHPMiss, "Exact name: %s", card.Name), signal(0, "HP mismatch (card: %s, OCR: %d)", formatHP(card.HP), hp))
			out = append(out, ScoredCandidate{Card: card, Score: s.Points, Reasons: s.Reasons})
		}
		return out, StageNameHPMismatch
	}

	out := make([]ScoredCandidate, 0, len(bucket))
	for _, card := range bucket {
		s := combine(signal(scoreNameOnly, "Exact name: %s", card.Name), attackSignal(card, fields.Attacks, false))
		out = append(out, ScoredCandidate{Card: card, Score: s.Points, Reasons: s.Reasons})
	}
	return out, StageNameAttacks
}

// fuzzyStage scores every pool record not already a candidate and keeps
// those above the noise floor.
func fuzzyStage(pool []models.CardRecord, existing []ScoredCandidate, fields ParsedFields, lowerText string) []ScoredCandidate {
	seen := make(map[string]bool, len(existing))
	for _, c := range existing {
		seen[c.Card.ID] = true
	}

	var out []ScoredCandidate
	for _, card := range pool {
		if seen[card.ID] {
			continue
		}
		s := combine(
			nameTextSignal(card, lowerText),
			hpSignal(card, fields.HP),
			attackSignal(card, fields.Attacks, true),
			setNameSignal(card, lowerText),
		)
		if s.Points > fuzzyNoiseFloor {
			seen[card.ID] = true
			out = append(out, ScoredCandidate{Card: card, Score: s.Points, Reasons: s.Reasons})
		}
	}
	return out
}

func nameTextSignal(card models.CardRecord, lowerText string) Signal {
	name := strings.ToLower(card.Name)
	if name != "" && strings.Contains(lowerText, name) {
		return signal(scoreNameInText, "Name in text: %s", card.Name)
	}
	var parts []Signal
	for _, part := range strings.Fields(name) {
		if len(part) >= minNamePartLength && strings.Contains(lowerText, part) {
			parts = append(parts, signal(scoreNamePart, "Partial name: %s", part))
		}
	}
	return combine(parts...)
}

func hpSignal(card models.CardRecord, hp *int) Signal {
	if hp == nil || !card.HasHP(*hp) {
		return Signal{}
	}
	return signal(scoreHPMatch, "HP match: %d", *hp)
}

// attackSignal awards points per attack token found in the caption. With
// bonus set, two or more matches earn the multi-attack bonus.
func attackSignal(card models.CardRecord, attacks []string, bonus bool) Signal {
	if card.Caption == "" || len(attacks) == 0 {
		return Signal{}
	}
	caption := strings.ToLower(card.Caption)
	var hits []Signal
	for _, attack := range attacks {
		if len(attack) >= minScoredAttackLength && strings.Contains(caption, attack) {
			hits = append(hits, signal(scoreAttackMatch, "Attack: %s", attack))
		}
	}
	if bonus && len(hits) >= 2 {
		hits = append(hits, signal(scoreMultiAttack, "Multi-attack bonus"))
	}
	return combine(hits...)
}

func setNameSignal(card models.CardRecord, lowerText string) Signal {
	var hits []Signal
	for _, word := range strings.Fields(strings.ToLower(card.SetName)) {
		if len(word) >= minSetWordLength && strings.Contains(lowerText, word) {
			hits = append(hits, signal(scoreSetNameWord, "Set match: %s", word))
		}
	}
	return combine(hits...)
}

// topCandidates dedupes by identifier, keeping the first occurrence, then
// sorts by descending score. Ties keep catalog order.
func topCandidates(candidates []ScoredCandidate) []ScoredCandidate {
	seen := make(map[string]bool, len(candidates))
	deduped := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.Card.ID] {
			continue
		}
		seen[c.Card.ID] = true
		deduped = append(deduped, c)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})

	if len(deduped) > maxCandidates {
		deduped = deduped[:maxCandidates]
	}
	return deduped
}

func formatHP(hp *int) string {
	if hp == nil {
		return "none"
	}
	return fmt.Sprint(*hp)
}
