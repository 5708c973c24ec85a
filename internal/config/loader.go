package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
// The YAML file path comes from CONFIG_PATH; without it, configuration is
// loaded from ENV + defaults only.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config: file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges. Load calls it automatically.
func (c *Config) Validate() error {
	if c.Catalog.DBPath == "" {
		return fmt.Errorf("catalog.db_path is required")
	}
	if c.Catalog.ResultCacheSize <= 0 {
		return fmt.Errorf("catalog.result_cache_size must be > 0 (got %d)", c.Catalog.ResultCacheSize)
	}
	if err := c.Fingerprint.validate(); err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}
	if c.Scan.Dir != "" && c.Scan.Interval <= 0 {
		return fmt.Errorf("scan.interval must be > 0 (got %v)", c.Scan.Interval)
	}
	return nil
}

func (f *FingerprintConfig) validate() error {
	if f.GridWidth <= 0 || f.GridHeight <= 0 {
		return fmt.Errorf("grid must be positive (got %dx%d)", f.GridWidth, f.GridHeight)
	}
	if f.SampleLimit == 0 {
		return fmt.Errorf("sample_limit must be non-zero, negative indexes the whole catalog")
	}
	if f.MaxDistance <= 0 {
		return fmt.Errorf("max_distance must be > 0 (got %d)", f.MaxDistance)
	}
	if f.DownloadRPS < 0 {
		return fmt.Errorf("download_rps must be >= 0 (got %v)", f.DownloadRPS)
	}
	return nil
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (s ServerConfig) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(s.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
