// Package metrics provides Prometheus metrics for the card scanner.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tcg_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Catalog Metrics
	CatalogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_catalog_cards",
			Help: "Number of cards in the reference catalog",
		},
	)

	// Identification Metrics
	IdentifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_identify_requests_total",
			Help: "Total number of identification attempts",
		},
		[]string{"path", "result"}, // path: "text" or "image", result: "match" or "none"
	)

	RankingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_ranking_duration_seconds",
			Help:    "Time taken to extract fields and rank candidates",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	RankingStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_ranking_stage_total",
			Help: "Ranking stage that produced the final candidate set",
		},
		[]string{"stage"}, // "name_number", "name_hp", "name_hp_mismatch", "name_attacks", "fuzzy", "none"
	)

	ResultCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_result_cache_hits_total",
			Help: "Identification result cache hit count",
		},
	)

	ResultCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_result_cache_misses_total",
			Help: "Identification result cache miss count",
		},
	)

	// Fingerprint Metrics
	FingerprintIndexSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tcg_fingerprint_index_entries",
			Help: "Number of entries in the visual fingerprint index",
		},
	)

	FingerprintBuildFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_fingerprint_build_failures_total",
			Help: "Catalog records skipped while building the fingerprint index",
		},
		[]string{"reason"}, // "no_image", "fetch", "decode"
	)

	FingerprintFetchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tcg_fingerprint_fetches_total",
			Help: "Reference images fetched while building the fingerprint index",
		},
	)

	FingerprintMatchDistance = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_fingerprint_match_distance",
			Help:    "Minimum Hamming distance found for visual queries",
			Buckets: []float64{0, 5, 10, 15, 20, 25, 30, 40, 60},
		},
	)

	// OCR Metrics
	OCRProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tcg_ocr_processing_duration_seconds",
			Help:    "Time taken to run server-side OCR over all card regions",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	// Scan Loop Metrics
	ScanCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcg_scan_cycles_total",
			Help: "Scan loop ticks by outcome",
		},
		[]string{"outcome"}, // "processed", "skipped_busy", "no_frame", "unchanged", "failed"
	)
)
