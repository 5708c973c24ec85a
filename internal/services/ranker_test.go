package services

import (
	"reflect"
	"testing"

	"github.com/codyseavey/tcg-scanner/backend/internal/models"
)

func candidateIDs(candidates []ScoredCandidate) []string {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.Card.ID
	}
	return ids
}

func candidateScores(candidates []ScoredCandidate) []int {
	scores := make([]int, len(candidates))
	for i, c := range candidates {
		scores[i] = c.Score
	}
	return scores
}

func TestRankDetailed(t *testing.T) {
	idx := sampleIndex(t)

	tests := []struct {
		name       string
		fields     ParsedFields
		fullText   string
		wantStage  string
		wantIDs    []string
		wantScores []int
	}{
		{
			name:       "name and printed number",
			fields:     ParsedFields{Name: "bulbasaur", SetFraction: "4/102"},
			fullText:   "Bulbasaur\n4/102",
			wantStage:  StageNameNumber,
			wantIDs:    []string{"xy1-4"},
			wantScores: []int{120},
		},
		{
			name:       "printed number with leading zeros",
			fields:     ParsedFields{Name: "bulbasaur", SetFraction: "055/102", HP: intPtr(60)},
			fullText:   "Bulbasaur 60 HP\n055/102",
			wantStage:  StageNameNumber,
			wantIDs:    []string{"xy1-55"},
			wantScores: []int{120},
		},
		{
			name:       "unknown printed number falls through to attacks",
			fields:     ParsedFields{Name: "bulbasaur", SetFraction: "99/102"},
			fullText:   "Bulbasaur\n99/102",
			wantStage:  StageNameAttacks,
			wantIDs:    []string{"xy1-4", "xy1-55"},
			wantScores: []int{40, 40},
		},
		{
			name:       "caption attack separates same-named prints",
			fields:     ParsedFields{Name: "pikachu", Attacks: []string{"thunder shock"}},
			fullText:   "Pikachu\nThunder Shock",
			wantStage:  StageNameAttacks,
			wantIDs:    []string{"xy1-42", "base1-58"},
			wantScores: []int{65, 40},
		},
		{
			name:       "name and HP",
			fields:     ParsedFields{Name: "pikachu", HP: intPtr(60)},
			fullText:   "Pikachu 60 HP",
			wantStage:  StageNameHP,
			wantIDs:    []string{"xy1-42", "xy1-4"},
			wantScores: []int{100, 20},
		},
		{
			name:       "name with HP mismatch",
			fields:     ParsedFields{Name: "charizard", HP: intPtr(200)},
			fullText:   "Charizard 200 HP",
			wantStage:  StageNameHPMismatch,
			wantIDs:    []string{"swsh1-25"},
			wantScores: []int{50},
		},
		{
			name:       "fuzzy on attacks and set name",
			fields:     ParsedFields{Attacks: []string{"flamethrower"}},
			fullText:   "Flamethrower\nDarkness Ablaze",
			wantStage:  StageFuzzy,
			wantIDs:    []string{"swsh3-20", "swsh1-25"},
			wantScores: []int{45, 25},
		},
		{
			name:       "fuzzy multi-attack bonus",
			fields:     ParsedFields{Attacks: []string{"thunder shock", "quick attack"}},
			fullText:   "Thunder Shock Quick Attack",
			wantStage:  StageFuzzy,
			wantIDs:    []string{"xy1-42"},
			wantScores: []int{80},
		},
		{
			name:       "fuzzy pool narrowed by HP",
			fields:     ParsedFields{HP: intPtr(330)},
			fullText:   "Charizard 330 HP",
			wantStage:  StageFuzzy,
			wantIDs:    []string{"swsh3-20"},
			wantScores: []int{30},
		},
		{
			name:      "nothing matches",
			fields:    ParsedFields{},
			fullText:  "Energy",
			wantStage: StageNone,
			wantIDs:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RankDetailed(tt.fields, tt.fullText, idx)
			if got.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", got.Stage, tt.wantStage)
			}
			if ids := candidateIDs(got.Candidates); !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("IDs = %v, want %v", ids, tt.wantIDs)
			}
			if tt.wantScores != nil {
				if scores := candidateScores(got.Candidates); !reflect.DeepEqual(scores, tt.wantScores) {
					t.Errorf("Scores = %v, want %v", scores, tt.wantScores)
				}
			}
		})
	}
}

func TestRankReturnsRecords(t *testing.T) {
	idx := sampleIndex(t)
	cards := Rank(ParsedFields{Name: "bulbasaur", SetFraction: "4/102"}, "Bulbasaur 4/102", idx)
	if len(cards) != 1 || cards[0].ID != "xy1-4" {
		t.Errorf("Rank() = %+v, want [xy1-4]", cards)
	}

	empty := Rank(ParsedFields{}, "", idx)
	if len(empty) != 0 {
		t.Errorf("Rank() on empty input = %+v, want none", empty)
	}
}

func TestRankIsDeterministic(t *testing.T) {
	idx := sampleIndex(t)
	fields := ParsedFields{Name: "pikachu", Attacks: []string{"thunder shock"}}
	first := RankDetailed(fields, "Pikachu Thunder Shock", idx)
	for i := 0; i < 5; i++ {
		again := RankDetailed(fields, "Pikachu Thunder Shock", idx)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, again, first)
		}
	}
}

func TestTopCandidates(t *testing.T) {
	mk := func(id string, score int) ScoredCandidate {
		return ScoredCandidate{Card: models.CardRecord{ID: id}, Score: score}
	}

	got := topCandidates([]ScoredCandidate{
		mk("a-1", 40),
		mk("a-2", 90),
		mk("a-1", 100),
		mk("a-3", 40),
		mk("a-4", 40),
	})
	want := []string{"a-2", "a-1", "a-3"}
	if ids := candidateIDs(got); !reflect.DeepEqual(ids, want) {
		t.Errorf("topCandidates() = %v, want %v", ids, want)
	}
	if got[1].Score != 40 {
		t.Errorf("duplicate kept score %d, want the first occurrence (40)", got[1].Score)
	}
}

func TestStripCardNumber(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"4", "4"},
		{"025", "25"},
		{"TG07", "7"},
		{"gg01", "1"},
		{"000", "0"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := stripCardNumber(tt.input); got != tt.want {
			t.Errorf("stripCardNumber(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCombineSignals(t *testing.T) {
	a := signal(10, "a")
	b := signal(25, "b %d", 2)
	got := combine(a, Signal{}, b)
	if got.Points != 35 {
		t.Errorf("Points = %d, want 35", got.Points)
	}
	if !reflect.DeepEqual(got.Reasons, []string{"a", "b 2"}) {
		t.Errorf("Reasons = %v", got.Reasons)
	}
	if len(a.Reasons) != 1 || a.Points != 10 {
		t.Errorf("combine mutated its input: %+v", a)
	}
}
