// Package config loads the engine's YAML configuration file. Every field has
// a working default, so a missing file or a partial file is fine; the zero
// value of a section means "use the default".
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mkjhawar/NewAvanues-sub007/internal/logging"
)

// Config is the full engine configuration
type Config struct {
	Database    Database    `yaml:"database"`
	Legacy      Legacy      `yaml:"legacy"`
	Scraper     Scraper     `yaml:"scraper"`
	Coordinator Coordinator `yaml:"coordinator"`
	Events      Events      `yaml:"events"`
}

// Database locates the unified store
type Database struct {
	Path string `yaml:"path"`
}

// Legacy locates the pre-consolidation store files
type Legacy struct {
	CommandStorePath string `yaml:"command_store_path"`
	ScrapeStorePath  string `yaml:"scrape_store_path"`
}

// Scraper tunes traversal and matching
type Scraper struct {
	MaxDepth            int     `yaml:"max_depth"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	TransitionWindowSec int     `yaml:"transition_window_seconds"`
}

// Coordinator tunes the write coordinator and its retry queue
type Coordinator struct {
	QueueSize        int `yaml:"queue_size"`
	MaxAttempts      int `yaml:"max_attempts"`
	TTLSec           int `yaml:"ttl_seconds"`
	DrainIntervalSec int `yaml:"drain_interval_seconds"`
	TxAttempts       int `yaml:"tx_attempts"`
}

// Events tunes the event pump
type Events struct {
	BufferSize int `yaml:"buffer_size"`
	Workers    int `yaml:"workers"`
}

// Default returns the configuration used when no file overrides it
func Default() Config {
	return Config{
		Database: Database{Path: "state/engine.db"},
		Legacy: Legacy{
			CommandStorePath: "state/legacy/voicecommands.db",
			ScrapeStorePath:  "state/legacy/appscrape.db",
		},
		Scraper: Scraper{
			MaxDepth:            100,
			SimilarityThreshold: 0.8,
			TransitionWindowSec: 30,
		},
		Coordinator: Coordinator{
			QueueSize:        100,
			MaxAttempts:      5,
			TTLSec:           300,
			DrainIntervalSec: 10,
			TxAttempts:       3,
		},
		Events: Events{BufferSize: 64, Workers: 2},
	}
}

// Load reads the YAML file at path over the defaults. A missing file returns
// the defaults; a malformed file is an error, not a silent fallback.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logging.Debug("config", "no config file at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	// partial files leave sections zeroed; backfill those from defaults
	def := Default()
	if cfg.Database.Path == "" {
		cfg.Database.Path = def.Database.Path
	}
	if cfg.Scraper.MaxDepth <= 0 {
		cfg.Scraper.MaxDepth = def.Scraper.MaxDepth
	}
	if cfg.Scraper.SimilarityThreshold <= 0 {
		cfg.Scraper.SimilarityThreshold = def.Scraper.SimilarityThreshold
	}
	if cfg.Scraper.TransitionWindowSec <= 0 {
		cfg.Scraper.TransitionWindowSec = def.Scraper.TransitionWindowSec
	}
	if cfg.Coordinator.QueueSize <= 0 {
		cfg.Coordinator.QueueSize = def.Coordinator.QueueSize
	}
	if cfg.Coordinator.MaxAttempts <= 0 {
		cfg.Coordinator.MaxAttempts = def.Coordinator.MaxAttempts
	}
	if cfg.Coordinator.TTLSec <= 0 {
		cfg.Coordinator.TTLSec = def.Coordinator.TTLSec
	}
	if cfg.Coordinator.DrainIntervalSec <= 0 {
		cfg.Coordinator.DrainIntervalSec = def.Coordinator.DrainIntervalSec
	}
	if cfg.Coordinator.TxAttempts <= 0 {
		cfg.Coordinator.TxAttempts = def.Coordinator.TxAttempts
	}
	if cfg.Events.BufferSize <= 0 {
		cfg.Events.BufferSize = def.Events.BufferSize
	}
	if cfg.Events.Workers <= 0 {
		cfg.Events.Workers = def.Events.Workers
	}

	logging.Info("config", "loaded %s", path)
	return cfg, nil
}

// TransitionWindow converts the configured seconds to a duration
func (s Scraper) TransitionWindow() time.Duration {
	return time.Duration(s.TransitionWindowSec) * time.Second
}

// TTL converts the configured seconds to a duration
func (c Coordinator) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// DrainInterval converts the configured seconds to a duration
func (c Coordinator) DrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalSec) * time.Second
}
