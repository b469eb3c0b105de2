package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	configschema "github.com/cordum/mediaflow/core/infra/schema"
	"gopkg.in/yaml.v3"
)

// EngineConfig tunes the workflow engine. Zero values fall back to defaults.
type EngineConfig struct {
	Runs           RunsConfig           `yaml:"runs"`
	Steps          StepsConfig          `yaml:"steps"`
	Classification ClassificationConfig `yaml:"classification"`
	Scheduler      SchedulerConfig      `yaml:"scheduler"`
	Artifacts      ArtifactsConfig      `yaml:"artifacts"`
}

type RunsConfig struct {
	MaxConcurrent  int   `yaml:"max_concurrent"`
	LockTTLSeconds int64 `yaml:"lock_ttl_seconds"`
}

type StepsConfig struct {
	BatchPollIntervalMs   int64 `yaml:"batch_poll_interval_ms"`
	BatchTimeoutSeconds   int64 `yaml:"batch_timeout_seconds"`
	WebhookTimeoutSeconds int64 `yaml:"webhook_timeout_seconds"`
	MaxActionDepth        int   `yaml:"max_action_depth"`
}

type ClassificationConfig struct {
	DefaultThreshold float64 `yaml:"default_threshold"`
}

type SchedulerConfig struct {
	ScanIntervalSeconds int64 `yaml:"scan_interval_seconds"`
}

type ArtifactsConfig struct {
	RetentionHours int64 `yaml:"retention_hours"`
}

// DefaultEngine returns the built-in engine tuning.
func DefaultEngine() *EngineConfig {
	return &EngineConfig{
		Runs: RunsConfig{
			MaxConcurrent:  8,
			LockTTLSeconds: 60,
		},
		Steps: StepsConfig{
			BatchPollIntervalMs:   5000,
			BatchTimeoutSeconds:   1800,
			WebhookTimeoutSeconds: 10,
			MaxActionDepth:        8,
		},
		Classification: ClassificationConfig{DefaultThreshold: 0.5},
		Scheduler:      SchedulerConfig{ScanIntervalSeconds: 30},
		Artifacts:      ArtifactsConfig{RetentionHours: 24 * 7},
	}
}

// LoadEngine loads a YAML engine config file; returns defaults if missing.
func LoadEngine(path string) (*EngineConfig, error) {
	if path == "" {
		return DefaultEngine(), nil
	}
	// #nosec G304 -- engine config path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultEngine(), nil
		}
		return DefaultEngine(), fmt.Errorf("read engine config: %w", err)
	}
	return ParseEngine(data)
}

// ParseEngine parses engine config data from YAML/JSON bytes.
func ParseEngine(data []byte) (*EngineConfig, error) {
	if len(data) == 0 {
		return DefaultEngine(), nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return DefaultEngine(), fmt.Errorf("parse engine config: %w", err)
	}
	if err := checkEngineSchema(doc); err != nil {
		return DefaultEngine(), err
	}
	var cfg EngineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultEngine(), fmt.Errorf("parse engine config: %w", err)
	}
	cfg.fillDefaults()
	return &cfg, nil
}

func (c *EngineConfig) fillDefaults() {
	def := DefaultEngine()
	if c.Runs.MaxConcurrent <= 0 {
		c.Runs.MaxConcurrent = def.Runs.MaxConcurrent
	}
	if c.Runs.LockTTLSeconds <= 0 {
		c.Runs.LockTTLSeconds = def.Runs.LockTTLSeconds
	}
	if c.Steps.BatchPollIntervalMs <= 0 {
		c.Steps.BatchPollIntervalMs = def.Steps.BatchPollIntervalMs
	}
	if c.Steps.BatchTimeoutSeconds <= 0 {
		c.Steps.BatchTimeoutSeconds = def.Steps.BatchTimeoutSeconds
	}
	if c.Steps.WebhookTimeoutSeconds <= 0 {
		c.Steps.WebhookTimeoutSeconds = def.Steps.WebhookTimeoutSeconds
	}
	if c.Steps.MaxActionDepth <= 0 {
		c.Steps.MaxActionDepth = def.Steps.MaxActionDepth
	}
	if c.Classification.DefaultThreshold <= 0 {
		c.Classification.DefaultThreshold = def.Classification.DefaultThreshold
	}
	if c.Scheduler.ScanIntervalSeconds <= 0 {
		c.Scheduler.ScanIntervalSeconds = def.Scheduler.ScanIntervalSeconds
	}
	if c.Artifacts.RetentionHours <= 0 {
		c.Artifacts.RetentionHours = def.Artifacts.RetentionHours
	}
}

func (c *EngineConfig) LockTTL() time.Duration {
	return time.Duration(c.Runs.LockTTLSeconds) * time.Second
}

func (c *EngineConfig) BatchPollInterval() time.Duration {
	return time.Duration(c.Steps.BatchPollIntervalMs) * time.Millisecond
}

func (c *EngineConfig) BatchTimeout() time.Duration {
	return time.Duration(c.Steps.BatchTimeoutSeconds) * time.Second
}

func (c *EngineConfig) WebhookTimeout() time.Duration {
	return time.Duration(c.Steps.WebhookTimeoutSeconds) * time.Second
}

func (c *EngineConfig) ScanInterval() time.Duration {
	return time.Duration(c.Scheduler.ScanIntervalSeconds) * time.Second
}

func (c *EngineConfig) ArtifactRetention() time.Duration {
	return time.Duration(c.Artifacts.RetentionHours) * time.Hour
}

// checkEngineSchema rejects unknown keys and wrongly typed values before the
// YAML is decoded into EngineConfig, which would silently ignore them.
func checkEngineSchema(doc any) error {
	schemaBytes, err := configSchemaFS.ReadFile(engineSchemaFile)
	if err != nil {
		return fmt.Errorf("load engine schema: %w", err)
	}
	if err := configschema.ValidateSchema("mediaflow-engine", schemaBytes, doc); err != nil {
		return fmt.Errorf("validate engine config: %w", err)
	}
	return nil
}
