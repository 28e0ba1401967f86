// Package config loads and hot-reloads the substrate's YAML configuration
// surface (§6.7): flow-controller concurrency and timeouts, backpressure
// watermarks, streaming resource limits, execution-history capacity, and
// the ProcessSupervisor's five tick intervals.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FlowControllerConfig configures C2.
type FlowControllerConfig struct {
	MaxConcurrent int `yaml:"max_concurrent"`

	CriticalTimeoutSeconds int `yaml:"critical_timeout_seconds"`
	HighTimeoutSeconds     int `yaml:"high_timeout_seconds"`
	NormalTimeoutSeconds   int `yaml:"normal_timeout_seconds"`
	LowTimeoutSeconds      int `yaml:"low_timeout_seconds"`

	DrainIntervalMs int `yaml:"drain_interval_ms"`
}

// BackpressureConfig configures C1's hysteresis watermarks.
type BackpressureConfig struct {
	HighWatermark int `yaml:"high_watermark"`
	LowWatermark  int `yaml:"low_watermark"`
}

// StreamingConfig configures C3's per-session resource ceilings.
type StreamingConfig struct {
	MaxBytesPerStream int64 `yaml:"max_bytes_per_stream"`
	MaxDurationSeconds int  `yaml:"max_duration_seconds"`
	RingCapacity       int  `yaml:"ring_capacity"`
}

// DistributorConfig configures C4's bounded queues and history.
type DistributorConfig struct {
	PrimaryCapacity          int `yaml:"primary_capacity"`
	ExecutionHistoryCapacity int `yaml:"execution_history_capacity"`
}

// SupervisorConfig configures C5's five named tick intervals.
type SupervisorConfig struct {
	WorkStealingIntervalMs       int `yaml:"work_stealing_interval_ms"`
	LearningIntervalSeconds      int `yaml:"learning_interval_seconds"`
	SwarmCoordinationIntervalSec int `yaml:"swarm_coordination_interval_seconds"`
	MetricsCollectionIntervalSec int `yaml:"metrics_collection_interval_seconds"`
	ResourceMonitoringIntervalSec int `yaml:"resource_monitoring_interval_seconds"`

	// ResourceAlertThreshold is the CPU/memory usage fraction above which
	// the resource-monitoring tick publishes a ResourceAlert.
	ResourceAlertThreshold float64 `yaml:"resource_alert_threshold"`
}

// Config is the substrate's root configuration. Intervals, watermarks,
// and timeouts are hot-reload-safe; MaxConcurrent only takes effect for
// newly constructed FlowControllers (§6.7 — resizing a live semaphore is
// out of scope).
type Config struct {
	HomeDir string `yaml:"-"`

	LogLevel string `yaml:"log_level"`

	FlowController FlowControllerConfig `yaml:"flow_controller"`
	Backpressure   BackpressureConfig   `yaml:"backpressure"`
	Streaming      StreamingConfig      `yaml:"streaming"`
	Distributor    DistributorConfig    `yaml:"distributor"`
	Supervisor     SupervisorConfig     `yaml:"supervisor"`
}

// Default returns the configuration with every default named in §4 and
// §6.7.
func Default() Config {
	return Config{
		LogLevel: "info",
		FlowController: FlowControllerConfig{
			MaxConcurrent:          100,
			CriticalTimeoutSeconds: 30,
			HighTimeoutSeconds:     15,
			NormalTimeoutSeconds:   5,
			LowTimeoutSeconds:      1,
			DrainIntervalMs:        500,
		},
		Backpressure: BackpressureConfig{
			HighWatermark: 1000,
			LowWatermark:  100,
		},
		Streaming: StreamingConfig{
			MaxBytesPerStream:  100 * 1024 * 1024,
			MaxDurationSeconds: 3600,
			RingCapacity:       1000,
		},
		Distributor: DistributorConfig{
			PrimaryCapacity:          10000,
			ExecutionHistoryCapacity: 1000,
		},
		Supervisor: SupervisorConfig{
			WorkStealingIntervalMs:         100,
			LearningIntervalSeconds:        30,
			SwarmCoordinationIntervalSec:   5,
			MetricsCollectionIntervalSec:   10,
			ResourceMonitoringIntervalSec:  5,
			ResourceAlertThreshold:         0.9,
		},
	}
}

// MaxDuration returns the streaming session's max wall-clock duration.
func (s StreamingConfig) MaxDuration() time.Duration {
	return time.Duration(s.MaxDurationSeconds) * time.Second
}

// CriticalTimeout, HighTimeout, NormalTimeout, LowTimeout return the
// flow controller's per-priority acquire deadlines as time.Duration.
func (f FlowControllerConfig) CriticalTimeout() time.Duration {
	return time.Duration(f.CriticalTimeoutSeconds) * time.Second
}
func (f FlowControllerConfig) HighTimeout() time.Duration {
	return time.Duration(f.HighTimeoutSeconds) * time.Second
}
func (f FlowControllerConfig) NormalTimeout() time.Duration {
	return time.Duration(f.NormalTimeoutSeconds) * time.Second
}
func (f FlowControllerConfig) LowTimeout() time.Duration {
	return time.Duration(f.LowTimeoutSeconds) * time.Second
}

// WorkStealingInterval, LearningInterval, SwarmCoordinationInterval,
// MetricsCollectionInterval, ResourceMonitoringInterval return the
// supervisor's tick intervals as time.Duration.
func (s SupervisorConfig) WorkStealingInterval() time.Duration {
	return time.Duration(s.WorkStealingIntervalMs) * time.Millisecond
}
func (s SupervisorConfig) LearningInterval() time.Duration {
	return time.Duration(s.LearningIntervalSeconds) * time.Second
}
func (s SupervisorConfig) SwarmCoordinationInterval() time.Duration {
	return time.Duration(s.SwarmCoordinationIntervalSec) * time.Second
}
func (s SupervisorConfig) MetricsCollectionInterval() time.Duration {
	return time.Duration(s.MetricsCollectionIntervalSec) * time.Second
}
func (s SupervisorConfig) ResourceMonitoringInterval() time.Duration {
	return time.Duration(s.ResourceMonitoringIntervalSec) * time.Second
}

// HomeDirDefault returns the substrate's config home, honoring the
// HIVE_HOME override.
func HomeDirDefault() string {
	if override := os.Getenv("HIVE_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".hive")
}

// ConfigPath returns the path to config.yaml within homeDir.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// Load reads config.yaml from the substrate's home directory, applying
// defaults for any unset field and environment overrides on top.
// A missing file is not an error: Load returns Default() with env
// overrides applied.
func Load() (Config, error) {
	cfg := Default()
	cfg.HomeDir = HomeDirDefault()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create hive home: %w", err)
	}

	if err := LoadFile(ConfigPath(cfg.HomeDir), &cfg); err != nil {
		return cfg, err
	}
	applyEnvOverrides(&cfg)
	normalize(&cfg)
	return cfg, nil
}

// LoadFile merges path's YAML contents into cfg. A missing file is not an
// error — cfg is left at its prior values (typically the defaults).
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func normalize(cfg *Config) {
	d := Default()
	if cfg.FlowController.MaxConcurrent <= 0 {
		cfg.FlowController.MaxConcurrent = d.FlowController.MaxConcurrent
	}
	if cfg.Backpressure.HighWatermark <= 0 {
		cfg.Backpressure.HighWatermark = d.Backpressure.HighWatermark
	}
	if cfg.Backpressure.LowWatermark <= 0 {
		cfg.Backpressure.LowWatermark = d.Backpressure.LowWatermark
	}
	if cfg.Backpressure.LowWatermark >= cfg.Backpressure.HighWatermark {
		cfg.Backpressure.LowWatermark = cfg.Backpressure.HighWatermark / 10
	}
	if cfg.Streaming.MaxBytesPerStream <= 0 {
		cfg.Streaming.MaxBytesPerStream = d.Streaming.MaxBytesPerStream
	}
	if cfg.Streaming.MaxDurationSeconds <= 0 {
		cfg.Streaming.MaxDurationSeconds = d.Streaming.MaxDurationSeconds
	}
	if cfg.Streaming.RingCapacity <= 0 {
		cfg.Streaming.RingCapacity = d.Streaming.RingCapacity
	}
	if cfg.Distributor.PrimaryCapacity <= 0 {
		cfg.Distributor.PrimaryCapacity = d.Distributor.PrimaryCapacity
	}
	if cfg.Distributor.ExecutionHistoryCapacity <= 0 {
		cfg.Distributor.ExecutionHistoryCapacity = d.Distributor.ExecutionHistoryCapacity
	}
	if cfg.Supervisor.ResourceAlertThreshold <= 0 {
		cfg.Supervisor.ResourceAlertThreshold = d.Supervisor.ResourceAlertThreshold
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = d.LogLevel
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("HIVE_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("HIVE_MAX_CONCURRENT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.FlowController.MaxConcurrent = v
		}
	}
}

// Fingerprint returns a stable hash of the hot-reload-relevant fields, so
// callers can detect a no-op reload.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "max_concurrent=%d|high=%d|low=%d|max_bytes=%d|max_dur=%d|ring=%d|hist=%d|ws=%d|learn=%d|swarm=%d|metrics=%d|resmon=%d|thresh=%f",
		c.FlowController.MaxConcurrent,
		c.Backpressure.HighWatermark, c.Backpressure.LowWatermark,
		c.Streaming.MaxBytesPerStream, c.Streaming.MaxDurationSeconds, c.Streaming.RingCapacity,
		c.Distributor.ExecutionHistoryCapacity,
		c.Supervisor.WorkStealingIntervalMs, c.Supervisor.LearningIntervalSeconds,
		c.Supervisor.SwarmCoordinationIntervalSec, c.Supervisor.MetricsCollectionIntervalSec,
		c.Supervisor.ResourceMonitoringIntervalSec, c.Supervisor.ResourceAlertThreshold,
	)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}
