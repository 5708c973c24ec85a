// Package config loads the scanner service configuration from an optional
// YAML file and environment variables.
package config

import "time"

// Config is the full service configuration. Environment variable names match
// the ones the service has always read, so existing deployments keep working.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	OCR         OCRConfig         `yaml:"ocr"`
	Scan        ScanConfig        `yaml:"scan"`
}

type ServerConfig struct {
	Port               string `yaml:"port"                 env:"PORT"                 env-default:"8080"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:5173,http://localhost:3000"`
	ScannedImagesDir   string `yaml:"scanned_images_dir"   env:"SCANNED_IMAGES_DIR"   env-default:"./data/scanned_images"`
}

type CatalogConfig struct {
	DBPath           string `yaml:"db_path"            env:"CATALOG_DB_PATH"    env-default:"./data/pokemon_cards.db"`
	LocaleTablesPath string `yaml:"locale_tables_path" env:"LOCALE_TABLES_PATH"`
	ResultCacheSize  int    `yaml:"result_cache_size"  env:"RESULT_CACHE_SIZE"  env-default:"128"`
}

// FingerprintConfig controls the visual index. An empty cache path keeps the
// index in memory only; a negative sample limit indexes the whole catalog and
// zero is rejected.
type FingerprintConfig struct {
	CachePath   string  `yaml:"cache_path"   env:"FINGERPRINT_CACHE_PATH"   env-default:"./data/fingerprints.json"`
	SampleLimit int     `yaml:"sample_limit" env:"FINGERPRINT_SAMPLE_LIMIT" env-default:"100"`
	GridWidth   int     `yaml:"grid_width"   env:"FINGERPRINT_GRID_WIDTH"   env-default:"8"`
	GridHeight  int     `yaml:"grid_height"  env:"FINGERPRINT_GRID_HEIGHT"  env-default:"11"`
	MaxDistance int     `yaml:"max_distance" env:"FINGERPRINT_MAX_DISTANCE" env-default:"25"`
	DownloadRPS float64 `yaml:"download_rps" env:"FINGERPRINT_DOWNLOAD_RPS" env-default:"5"`
}

type OCRConfig struct {
	TesseractPath string `yaml:"tesseract_path" env:"TESSERACT_PATH"`
	Language      string `yaml:"language"       env:"TESSERACT_LANG" env-default:"eng"`
}

// ScanConfig enables the capture loop when Dir is set.
type ScanConfig struct {
	Dir      string        `yaml:"dir"      env:"SCAN_DIR"`
	Interval time.Duration `yaml:"interval" env:"SCAN_INTERVAL" env-default:"1.5s"`
}
