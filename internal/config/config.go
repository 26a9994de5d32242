// Package config loads the engine-scoped settings that sit outside
// spec.md's own data model but that a real deployment needs: where
// checkpoints live, per-check prerequisite timeouts, which event-bus
// backend to use, and the default validation stage set a workflow
// falls back to when its `validate` step omits `stages`. Built on
// spf13/viper, the teacher's own configuration library.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type EventBusBackend string

const (
	EventBusInProcess EventBusBackend = "inprocess"
	EventBusNATS      EventBusBackend = "nats"
)

// Config holds every setting the Executor and its collaborators need
// beyond what a specific workflow run passes explicitly.
type Config struct {
	CheckpointDir            string          `mapstructure:"checkpoint_dir"`
	CheckpointBackend        string          `mapstructure:"checkpoint_backend"` // "file" | "sqlite"
	SQLiteDSN                string          `mapstructure:"sqlite_dsn"`
	PrerequisiteTimeout      time.Duration   `mapstructure:"prerequisite_timeout"`
	EventBusBackend          EventBusBackend `mapstructure:"event_bus_backend"`
	NATSURL                  string          `mapstructure:"nats_url"`
	OTelEndpoint             string          `mapstructure:"otel_endpoint"`
	StarlarkMaxExecutionSteps int64          `mapstructure:"starlark_max_execution_steps"`
	DefaultValidationStages  []string        `mapstructure:"default_validation_stages"`
	ValidationStageSets      map[string][]string `mapstructure:"validation_stage_sets"`
	LogFormat                string          `mapstructure:"log_format"`
}

func defaults() *viper.Viper {
	v := viper.New()
	v.SetDefault("checkpoint_dir", "./.maverick/checkpoints")
	v.SetDefault("checkpoint_backend", "file")
	v.SetDefault("sqlite_dsn", "./.maverick/checkpoints.db")
	v.SetDefault("prerequisite_timeout", "30s")
	v.SetDefault("event_bus_backend", string(EventBusInProcess))
	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("starlark_max_execution_steps", 100000)
	v.SetDefault("default_validation_stages", []string{})
	v.SetDefault("log_format", "console")
	return v
}

// Load reads configuration from (in ascending priority) defaults, a
// config file at path (if non-empty and present), and MAVERICK_-
// prefixed environment variables.
func Load(path string) (*Config, error) {
	v := defaults()
	v.SetEnvPrefix("MAVERICK")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// ResolveValidationStages implements the config side of the Validate
// handler's stage resolution rule from spec.md §4.6: a non-empty key is
// looked up in ValidationStageSets; an empty key returns the config's
// own default list. An explicit stage list on the step never reaches
// here; the runtime's resolveStages handles that case itself.
func (c *Config) ResolveValidationStages(key string) ([]string, bool) {
	if key == "" {
		return c.DefaultValidationStages, true
	}
	stages, ok := c.ValidationStageSets[key]
	return stages, ok
}
