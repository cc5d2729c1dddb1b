// Package config defines the driver's configuration surface and its
// resolution order: flag > env var > config file > default.
package config

import (
	"fmt"
	"os"
	"strconv"

	"sigs.k8s.io/yaml"
)

// Config is the Driver's configuration surface.
type Config struct {
	NumNodes       int    `json:"numNodes"`
	LoadThreshold  int    `json:"loadThreshold"`
	SimDurationMS  int    `json:"simDurationMs"`
	TaskIntervalMS int    `json:"taskIntervalMs"`
	MinCostMS      int    `json:"minCostMs"`
	MaxCostMS      int    `json:"maxCostMs"`
	Workers        int    `json:"workers"`
	GossipPeriodMS int    `json:"gossipPeriodMs"`
	MetricsAddr    string `json:"metricsAddr"`
	LogFilePath    string `json:"logFilePath"`
}

// Default returns the recommended defaults for a small demo mesh.
func Default() Config {
	return Config{
		NumNodes:       4,
		LoadThreshold:  5,
		SimDurationMS:  10_000,
		TaskIntervalMS: 100,
		MinCostMS:      10,
		MaxCostMS:      200,
		Workers:        2,
		GossipPeriodMS: 500,
		MetricsAddr:    "",
		LogFilePath:    "",
	}
}

// Load resolves configuration in precedence order: an explicit file (if
// path is non-empty) overlays the defaults, then environment variables
// overlay the file. Flags, if any, are applied by the caller after Load
// returns, since flag parsing is main-package territory.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %q: %w", path, err)
		}
	}

	overlayEnvInt(&cfg.NumNodes, "NUM_NODES")
	overlayEnvInt(&cfg.LoadThreshold, "LOAD_THRESHOLD")
	overlayEnvInt(&cfg.SimDurationMS, "SIM_DURATION")
	overlayEnvInt(&cfg.TaskIntervalMS, "TASK_INTERVAL_MS")
	overlayEnvInt(&cfg.MinCostMS, "MIN_COST_MS")
	overlayEnvInt(&cfg.MaxCostMS, "MAX_COST_MS")
	overlayEnvInt(&cfg.Workers, "WORKERS")
	overlayEnvInt(&cfg.GossipPeriodMS, "GOSSIP_PERIOD_MS")
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("LOG_FILE_PATH"); v != "" {
		cfg.LogFilePath = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations with an invalid node count, threshold,
// cost range, worker count, or gossip period.
func (c Config) Validate() error {
	if c.NumNodes < 1 {
		return fmt.Errorf("config: numNodes must be >= 1, got %d", c.NumNodes)
	}
	if c.LoadThreshold < 1 {
		return fmt.Errorf("config: loadThreshold must be >= 1, got %d", c.LoadThreshold)
	}
	if c.MinCostMS < 0 || c.MaxCostMS < c.MinCostMS {
		return fmt.Errorf("config: invalid cost range [%d, %d]", c.MinCostMS, c.MaxCostMS)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}
	if c.GossipPeriodMS < 1 {
		return fmt.Errorf("config: gossipPeriodMs must be >= 1, got %d", c.GossipPeriodMS)
	}
	return nil
}

func overlayEnvInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
