// Package config loads the engine's declarative YAML document — the
// "Configuration" surface spec §6 enumerates (symbols_to_trade,
// engine_defaults.*, health.*, recovery.*, feeder.*, executor.*,
// risk_policy.*, predictor.*, paths.*) — adapted from the teacher's
// internal/strategy/config_loader.go YAML-loading pattern, generalized
// from a list of strategy rows to this core's single nested document.
// The risk policy is read from the top-level risk_policy key; a nested
// risk: policy: block is not read.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trading-core/internal/predictor"
	"trading-core/internal/risk"
)

// EngineDefaults mirrors spec §6 engine_defaults.*.
type EngineDefaults struct {
	CycleIntervalSec    float64 `yaml:"cycle_interval_sec"`
	QueueCapacity       int     `yaml:"queue_capacity"`
	ErrorSpikeThreshold int     `yaml:"error_spike_threshold"`
	BaseEquityUsd       float64 `yaml:"base_equity_usd"`
}

// HealthConfig mirrors spec §6 health.*.
type HealthConfig struct {
	CheckIntervalSec    float64 `yaml:"check_interval_sec"`
	HeartbeatTimeoutSec float64 `yaml:"heartbeat_timeout_sec"`
}

// RecoveryConfig mirrors spec §6 recovery.*.
type RecoveryConfig struct {
	MaxRestartsPerHour int     `yaml:"max_restarts_per_hour"`
	BackoffBaseSec     float64 `yaml:"backoff_base_sec"`
}

// FeederConfig mirrors spec §6 feeder.*.
type FeederConfig struct {
	ReconnectBaseSec float64 `yaml:"reconnect_base_sec"`
	ReconnectCapSec  float64 `yaml:"reconnect_cap_sec"`
	StableWindowSec  float64 `yaml:"stable_window_sec"`
}

// ExecutorConfig mirrors spec §6 executor.*.
type ExecutorConfig struct {
	RateRps          float64 `yaml:"rate_rps"`
	ExposureLimitUsd float64 `yaml:"exposure_limit_usd"`
	BrokerTimeoutSec float64 `yaml:"broker_timeout_sec"`
}

// PathsConfig mirrors spec §6 paths.*.
type PathsConfig struct {
	ModelTabular  string `yaml:"model_tabular"`
	ModelSequence string `yaml:"model_sequence"`
	Registry      string `yaml:"registry"`
	LogsDir       string `yaml:"logs_dir"`
	AuditDB       string `yaml:"audit_db"`
}

// Document is the top-level declarative config spec §6 describes.
type Document struct {
	SymbolsToTrade []string        `yaml:"symbols_to_trade"`
	EngineDefaults EngineDefaults  `yaml:"engine_defaults"`
	Health         HealthConfig    `yaml:"health"`
	Recovery       RecoveryConfig  `yaml:"recovery"`
	Feeder         FeederConfig    `yaml:"feeder"`
	Executor       ExecutorConfig  `yaml:"executor"`
	RiskPolicy     risk.Policy     `yaml:"risk_policy"`
	Predictor      PredictorConfig `yaml:"predictor"`
	Paths          PathsConfig     `yaml:"paths"`
}

// PredictorConfig mirrors spec §6 predictor.*.
type PredictorConfig struct {
	Weights        predictor.Weights `yaml:"weights"`
	ThresholdEntry float64           `yaml:"threshold_entry"`
}

// Default returns the document with every spec-documented default filled
// in, before any YAML overrides are applied.
func Default() Document {
	return Document{
		EngineDefaults: EngineDefaults{CycleIntervalSec: 1.0, QueueCapacity: 128, ErrorSpikeThreshold: 10, BaseEquityUsd: 10000},
		Health:         HealthConfig{CheckIntervalSec: 30, HeartbeatTimeoutSec: 60},
		Recovery:       RecoveryConfig{MaxRestartsPerHour: 5, BackoffBaseSec: 60},
		Feeder:         FeederConfig{ReconnectBaseSec: 1, ReconnectCapSec: 30, StableWindowSec: 60},
		Executor:       ExecutorConfig{RateRps: 5, ExposureLimitUsd: 0, BrokerTimeoutSec: 10},
		RiskPolicy:     risk.DefaultPolicy(),
		Predictor:      PredictorConfig{Weights: predictor.Weights{Tabular: 0.5, Sequence: 0.3, Auxiliary: 0.2}, ThresholdEntry: 0.55},
		Paths:          PathsConfig{Registry: "./data/registry.json", LogsDir: "./data/logs", AuditDB: "./data/audit.db"},
	}
}

// Load reads path and overlays it onto Default(), so a YAML document only
// needs to specify the fields an operator wants to override.
func Load(path string) (Document, error) {
	doc := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return doc, nil
}
