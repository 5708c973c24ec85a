package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Fingerprint.GridWidth != 8 || cfg.Fingerprint.GridHeight != 11 {
		t.Errorf("grid = %dx%d, want 8x11", cfg.Fingerprint.GridWidth, cfg.Fingerprint.GridHeight)
	}
	if cfg.Fingerprint.MaxDistance != 25 || cfg.Fingerprint.SampleLimit != 100 || cfg.Fingerprint.DownloadRPS != 5 {
		t.Errorf("Fingerprint = %+v", cfg.Fingerprint)
	}
	if cfg.Scan.Interval != 1500*time.Millisecond {
		t.Errorf("Scan.Interval = %v, want 1.5s", cfg.Scan.Interval)
	}
	if cfg.Scan.Dir != "" {
		t.Errorf("Scan.Dir = %q, want scan loop disabled by default", cfg.Scan.Dir)
	}
	if cfg.Catalog.ResultCacheSize != 128 {
		t.Errorf("Catalog.ResultCacheSize = %d, want 128", cfg.Catalog.ResultCacheSize)
	}
	if cfg.OCR.Language != "eng" {
		t.Errorf("OCR.Language = %q, want eng", cfg.OCR.Language)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PORT", "9000")
	t.Setenv("FINGERPRINT_GRID_WIDTH", "16")
	t.Setenv("FINGERPRINT_GRID_HEIGHT", "16")
	t.Setenv("SCAN_DIR", "/tmp/captures")
	t.Setenv("SCAN_INTERVAL", "250ms")
	t.Setenv("LOCALE_TABLES_PATH", "/etc/scanner/locale.toml")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("Server.Port = %q, want 9000", cfg.Server.Port)
	}
	if cfg.Fingerprint.GridWidth != 16 || cfg.Fingerprint.GridHeight != 16 {
		t.Errorf("grid = %dx%d, want 16x16", cfg.Fingerprint.GridWidth, cfg.Fingerprint.GridHeight)
	}
	if cfg.Scan.Dir != "/tmp/captures" || cfg.Scan.Interval != 250*time.Millisecond {
		t.Errorf("Scan = %+v", cfg.Scan)
	}
	if cfg.Catalog.LocaleTablesPath != "/etc/scanner/locale.toml" {
		t.Errorf("Catalog.LocaleTablesPath = %q", cfg.Catalog.LocaleTablesPath)
	}
}

func TestLoad_YAMLWithEnvPriority(t *testing.T) {
	path := writeYAML(t, t.TempDir(), `
server:
  port: "7070"
catalog:
  db_path: "/data/cards.db"
fingerprint:
  max_distance: 12
scan:
  dir: "/captures"
  interval: "2s"
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "6060")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("Server.Port = %q, want env value 6060", cfg.Server.Port)
	}
	if cfg.Catalog.DBPath != "/data/cards.db" {
		t.Errorf("Catalog.DBPath = %q", cfg.Catalog.DBPath)
	}
	if cfg.Fingerprint.MaxDistance != 12 {
		t.Errorf("Fingerprint.MaxDistance = %d, want 12", cfg.Fingerprint.MaxDistance)
	}
	if cfg.Fingerprint.GridWidth != 8 {
		t.Errorf("Fingerprint.GridWidth = %d, want default 8", cfg.Fingerprint.GridWidth)
	}
	if cfg.Scan.Interval != 2*time.Second {
		t.Errorf("Scan.Interval = %v, want 2s", cfg.Scan.Interval)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := Load(); err == nil {
		t.Error("Load() error = nil for missing CONFIG_PATH file")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"zero grid", "FINGERPRINT_GRID_WIDTH", "0", "grid must be positive"},
		{"negative threshold", "FINGERPRINT_MAX_DISTANCE", "-1", "max_distance"},
		{"zero cache", "RESULT_CACHE_SIZE", "0", "result_cache_size"},
		{"negative rps", "FINGERPRINT_DOWNLOAD_RPS", "-2", "download_rps"},
		{"zero sample limit", "FINGERPRINT_SAMPLE_LIMIT", "0", "sample_limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", "")
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() error = nil, want %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	s := ServerConfig{CORSAllowedOrigins: " http://a.test , ,http://b.test"}
	want := []string{"http://a.test", "http://b.test"}
	if got := s.AllowedOrigins(); !reflect.DeepEqual(got, want) {
		t.Errorf("AllowedOrigins() = %v, want %v", got, want)
	}
	if got := (ServerConfig{}).AllowedOrigins(); got != nil {
		t.Errorf("AllowedOrigins() on empty = %v, want nil", got)
	}
}
