package services

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadLocaleTablesEmbedded(t *testing.T) {
	tables, err := LoadLocaleTables("")
	if err != nil {
		t.Fatalf("LoadLocaleTables(\"\") error = %v", err)
	}

	tests := []struct {
		word string
		want string
	}{
		{"Пикачу", "pikachu"},
		{"GLURAK", "charizard"},
		{"Dracaufeu!", "charizard"},
		{"リザードン", "charizard"},
	}
	for _, tt := range tests {
		got, ok := tables.CanonicalName(tt.word)
		if !ok || got != tt.want {
			t.Errorf("CanonicalName(%q) = %q, %v, want %q", tt.word, got, ok, tt.want)
		}
	}

	if _, ok := tables.CanonicalName("pikachu"); ok {
		t.Error("CanonicalName(\"pikachu\") should not resolve an English name")
	}

	if len(tables.HPLabels()) == 0 {
		t.Error("expected embedded HP labels")
	}
}

func TestLoadLocaleTablesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locale.toml")
	data := `hp_labels = ["KP"]

[names]
"glurak" = "Charizard"

[attacks]
"feuerwirbel" = "Fire Spin"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	tables, err := LoadLocaleTables(path)
	if err != nil {
		t.Fatalf("LoadLocaleTables error = %v", err)
	}
	if got, _ := tables.CanonicalName("Glurak"); got != "charizard" {
		t.Errorf("CanonicalName(Glurak) = %q, want charizard", got)
	}
	if got := tables.TranslateAttack("Feuerwirbel"); got != "fire spin" {
		t.Errorf("TranslateAttack(Feuerwirbel) = %q, want fire spin", got)
	}
}

func TestLoadLocaleTablesMissingFile(t *testing.T) {
	if _, err := LoadLocaleTables(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing locale file")
	}
}

func TestNewLocaleTablesBadMarker(t *testing.T) {
	_, err := NewLocaleTables(nil, nil, nil, []VariantMarker{{Pattern: "(", Suffix: "v"}})
	if err == nil {
		t.Error("expected error for invalid marker pattern")
	}
	_, err = NewLocaleTables(nil, nil, nil, []VariantMarker{{Pattern: "V", Suffix: " "}})
	if err == nil {
		t.Error("expected error for empty marker suffix")
	}
}

func TestTranslateAttack(t *testing.T) {
	tables, err := NewLocaleTables(nil, map[string]string{
		"Удар молнии":  "Thunder Shock",
		"Donnerschock": "Thunder Shock",
		"Éclair":       "Thunder Shock",
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		token string
		want  string
	}{
		{"donnerschock", "thunder shock"},
		{"eclair", "thunder shock"},
		{"удар  молнии", "thunder shock"},
		{"thunderbolt", "thunderbolt"},
	}
	for _, tt := range tests {
		if got := tables.TranslateAttack(tt.token); got != tt.want {
			t.Errorf("TranslateAttack(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}

func TestAttackPhrasesIn(t *testing.T) {
	tables, err := NewLocaleTables(nil, map[string]string{
		"удар молнии":   "thunder shock",
		"быстрая атака": "quick attack",
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	got := tables.AttackPhrasesIn("Пикачу\nБыстрая атака 10\nУдар молнии 30")
	want := []string{"quick attack", "thunder shock"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AttackPhrasesIn() = %v, want %v", got, want)
	}

	if got := tables.AttackPhrasesIn(""); got != nil {
		t.Errorf("AttackPhrasesIn(\"\") = %v, want nil", got)
	}
}

func TestVariantSuffixes(t *testing.T) {
	tables, err := LoadLocaleTables("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		text string
		want []string
	}{
		{"Charizard VMAX\nHP 330", []string{"vmax"}},
		{"Mewtwo GX 190 HP", []string{"gx"}},
		{"Pokémon ex rule: when your Pokémon ex is Knocked Out", []string{"ex"}},
		{"Pikachu V 190 HP\nV rule", []string{"v"}},
		{"Pikachu 60 HP", nil},
	}
	for _, tt := range tests {
		got := tables.VariantSuffixes(tt.text)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("VariantSuffixes(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestCleanWord(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Pikachu!", "pikachu"},
		{"Flabébé", "flabebe"},
		{"Mr.", "mr"},
		{"123", ""},
		{"ПИКАЧУ", "пикачу"},
	}
	for _, tt := range tests {
		if got := cleanWord(tt.input); got != tt.want {
			t.Errorf("cleanWord(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
