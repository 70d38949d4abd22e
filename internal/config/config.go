// Package config loads pipeline configuration from a YAML file and
// overlays the environment variables listed in the external interface
// contract, env winning over file, file winning over built-in defaults.
package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the pipeline needs at construction time.
type Config struct {
	// Near-duplicate suppressor (C6)
	NearDupeTimeWindowSeconds     int     `yaml:"near_dupe_time_window_seconds"`
	NearDupeUSDThreshold          float64 `yaml:"near_dupe_usd_threshold"`
	NearDupePercentageThreshold   float64 `yaml:"near_dupe_percentage_threshold"`
	NearDupeSafeguardUSD          float64 `yaml:"near_dupe_safeguard_usd"`
	NearDupeRingSize              int     `yaml:"near_dupe_ring_size"`
	NearDupeLookbackRecords       int     `yaml:"near_dupe_lookback_records"`

	// Classification engine (C4)
	ClassificationHigh     float64 `yaml:"classification_high"`
	ClassificationMedium   float64 `yaml:"classification_medium"`
	ClassificationEarlyExit float64 `yaml:"classification_early_exit"`
	BridgeDirectionHeuristic bool  `yaml:"bridge_direction_heuristic"`

	// Address label provider (C1)
	LabelTTLSeconds           int `yaml:"label_ttl_seconds"`
	LabelNegativeCacheSeconds int `yaml:"label_negative_cache_seconds"`
	LabelCacheCapacity        int `yaml:"label_cache_capacity"`
	LabelCacheStripes         int `yaml:"label_cache_stripes"`
	RemoteExplorerRatePerSec  int `yaml:"remote_explorer_rate_per_sec"`

	// Token & price resolver (C2)
	PriceStalenessSeconds int `yaml:"price_staleness_seconds"`

	// Pipeline queue sizes and worker pool sizes (§5)
	FanInQueueSize        int `yaml:"fanin_queue_size"`
	EnrichedQueueSize      int `yaml:"enriched_queue_size"`
	ClassifiedQueueSize    int `yaml:"classified_queue_size"`
	EnrichmentWorkers       int `yaml:"enrichment_workers"`
	ClassificationWorkers   int `yaml:"classification_workers"`
	SinkWorkers             int `yaml:"sink_workers"`
	DedupShards             int `yaml:"dedup_shards"`
	WhaleRegistryStripes    int `yaml:"whale_registry_stripes"`

	// Deadlines (§5)
	LabelCallDeadlineSeconds   int `yaml:"label_call_deadline_seconds"`
	ReceiptCallDeadlineSeconds int `yaml:"receipt_call_deadline_seconds"`
	PhaseDeadlineSeconds       int `yaml:"phase_deadline_seconds"`

	// Supervisor (C9)
	HealthProbeSeconds          int `yaml:"health_probe_seconds"`
	RestartBackoffBaseSeconds   int `yaml:"restart_backoff_base_seconds"`
	RestartBackoffCapSeconds    int `yaml:"restart_backoff_cap_seconds"`
	CircuitBreakerErrorCount    int `yaml:"circuit_breaker_error_count"`
	CircuitBreakerWindowSeconds int `yaml:"circuit_breaker_window_seconds"`
	CircuitHalfOpenSeconds      int `yaml:"circuit_half_open_seconds"`
	ShutdownDrainSeconds        int `yaml:"shutdown_drain_seconds"`

	// Whale registry (C8)
	RegistrySnapshotPath         string `yaml:"registry_snapshot_path"`
	RegistrySnapshotIntervalSecs int    `yaml:"registry_snapshot_interval_seconds"`

	// Ops surface
	OpsListenAddr string `yaml:"ops_listen_addr"`
}

// Default returns the built-in defaults, matching the values spec.md names.
func Default() Config {
	return Config{
		NearDupeTimeWindowSeconds:   10,
		NearDupeUSDThreshold:        5,
		NearDupePercentageThreshold: 0.0015,
		NearDupeSafeguardUSD:        5_000_000,
		NearDupeRingSize:            50,
		NearDupeLookbackRecords:     200,

		ClassificationHigh:      0.80,
		ClassificationMedium:    0.60,
		ClassificationEarlyExit: 0.85,
		BridgeDirectionHeuristic: false,

		LabelTTLSeconds:           3600,
		LabelNegativeCacheSeconds: 60,
		LabelCacheCapacity:        100_000,
		LabelCacheStripes:         16,
		RemoteExplorerRatePerSec:  5,

		PriceStalenessSeconds: 120,

		FanInQueueSize:      1024,
		EnrichedQueueSize:    512,
		ClassifiedQueueSize:  512,
		EnrichmentWorkers:     4,
		ClassificationWorkers: 8,
		SinkWorkers:           3,
		DedupShards:           32,
		WhaleRegistryStripes:  32,

		LabelCallDeadlineSeconds:   2,
		ReceiptCallDeadlineSeconds: 5,
		PhaseDeadlineSeconds:       8,

		HealthProbeSeconds:          120,
		RestartBackoffBaseSeconds:   1,
		RestartBackoffCapSeconds:    60,
		CircuitBreakerErrorCount:    10,
		CircuitBreakerWindowSeconds: 60,
		CircuitHalfOpenSeconds:      30,
		ShutdownDrainSeconds:        30,

		RegistrySnapshotPath:         "whale_registry_snapshot.json",
		RegistrySnapshotIntervalSecs: 60,

		OpsListenAddr: ":8090",
	}
}

// Load reads a YAML file (if present) over the defaults, then overlays the
// environment variables listed in the external interface contract.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	overlayEnv(&cfg)
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	envInt(&cfg.NearDupeTimeWindowSeconds, "NEAR_DUPE_TIME_WINDOW")
	envFloat(&cfg.NearDupeUSDThreshold, "NEAR_DUPE_USD_THRESHOLD")
	envFloat(&cfg.NearDupePercentageThreshold, "NEAR_DUPE_PERCENTAGE_THRESHOLD")
	envFloat(&cfg.NearDupeSafeguardUSD, "NEAR_DUPE_SAFEGUARD_USD")
	envFloat(&cfg.ClassificationHigh, "CLASSIFICATION_HIGH")
	envFloat(&cfg.ClassificationMedium, "CLASSIFICATION_MEDIUM")
	envFloat(&cfg.ClassificationEarlyExit, "CLASSIFICATION_EARLY_EXIT")
	envInt(&cfg.LabelTTLSeconds, "LABEL_TTL_SECONDS")
	envInt(&cfg.PriceStalenessSeconds, "PRICE_STALENESS_SECONDS")
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// RequireEnv fetches a required secret-bearing environment variable,
// terminating the process with a clear message when it is unset.
func RequireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// GetEnvOrDefault returns the env var value or a safe default for
// non-secret settings.
func GetEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
