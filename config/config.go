// Package config loads Loom daemon configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/weftworks/loom"
)

// envPrefix namespaces Loom environment overrides, e.g.
// LOOM_STORE_DRIVER, LOOM_COORDINATOR_STEP_TIMEOUT.
const envPrefix = "LOOM_"

// Config is the full daemon configuration.
type Config struct {
	Store       StoreConfig       `koanf:"store"`
	Coordinator CoordinatorConfig `koanf:"coordinator"`
	Server      ServerConfig      `koanf:"server"`
	NATS        NATSConfig        `koanf:"nats"`
	Retention   RetentionConfig   `koanf:"retention"`
	Log         LogConfig         `koanf:"log"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Driver is one of "memory", "redis", "postgres", "sqlite".
	Driver string `koanf:"driver"`
	// DSN is the driver-specific connection string. Unused by "memory".
	DSN string `koanf:"dsn"`
}

// CoordinatorConfig carries the orchestration tuning parameters.
type CoordinatorConfig struct {
	MaxStepRetries    int           `koanf:"max_step_retries"`
	StepTimeout       time.Duration `koanf:"step_timeout"`
	CheckpointEvery   int           `koanf:"checkpoint_every"`
	AssignMaxAttempts int           `koanf:"assign_max_attempts"`
	CheckpointKeep    int           `koanf:"checkpoint_keep"`
}

// ServerConfig configures the WebSocket relay listener.
type ServerConfig struct {
	// Addr is the listen address for the event relay. Empty disables it.
	Addr string `koanf:"addr"`
}

// NATSConfig configures the optional NATS event bus sink.
type NATSConfig struct {
	// URL of the NATS server. Empty disables the sink.
	URL string `koanf:"url"`
	// SubjectPrefix for published events. Defaults to "loom.events".
	SubjectPrefix string `koanf:"subject_prefix"`
}

// RetentionConfig configures the checkpoint retention sweeper.
type RetentionConfig struct {
	// Schedule is a cron expression. Empty disables sweeping.
	Schedule string `koanf:"schedule"`
	// Keep is how many checkpoints survive per workflow.
	Keep int `koanf:"keep"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is "text" or "json".
	Format string `koanf:"format"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	core := loom.DefaultConfig()
	return Config{
		Store: StoreConfig{Driver: "memory"},
		Coordinator: CoordinatorConfig{
			MaxStepRetries:    core.MaxStepRetries,
			StepTimeout:       core.StepTimeout,
			CheckpointEvery:   core.CheckpointEvery,
			AssignMaxAttempts: core.AssignMaxAttempts,
			CheckpointKeep:    core.CheckpointKeep,
		},
		Server:    ServerConfig{Addr: ":7420"},
		NATS:      NATSConfig{SubjectPrefix: "loom.events"},
		Retention: RetentionConfig{Schedule: "@every 6h", Keep: 5},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Core converts the coordinator section into the runtime tuning struct.
func (c Config) Core() loom.Config {
	return loom.Config{
		MaxStepRetries:    c.Coordinator.MaxStepRetries,
		StepTimeout:       c.Coordinator.StepTimeout,
		CheckpointEvery:   c.Coordinator.CheckpointEvery,
		AssignMaxAttempts: c.Coordinator.AssignMaxAttempts,
		CheckpointKeep:    c.Coordinator.CheckpointKeep,
	}
}

// Load reads configuration with the following precedence, highest first:
//
//  1. LOOM_* environment variables (LOOM_STORE_DRIVER → store.driver)
//  2. the YAML file at path, when path is non-empty and the file exists
//  3. defaults
func Load(path string) (Config, error) {
	var raw []byte
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else {
			raw = content
		}
	}
	return LoadBytes(raw)
}

// LoadBytes parses YAML content and applies environment overrides on
// top. A nil or empty slice loads defaults plus environment only.
func LoadBytes(raw []byte) (Config, error) {
	k := koanf.New(".")

	if len(raw) > 0 {
		if err := k.Load(rawbytes.Provider(raw), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	// LOOM_STORE_DRIVER → store.driver, LOOM_COORDINATOR_STEP_TIMEOUT →
	// coordinator.step_timeout: the first underscore separates the
	// section, the rest stays a single field name.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return Config{}, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "memory", "redis", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("config: store driver %q requires a dsn", c.Store.Driver)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}

	if c.Coordinator.MaxStepRetries < 0 {
		return fmt.Errorf("config: max_step_retries must be >= 0")
	}
	if c.Retention.Keep < 1 {
		return fmt.Errorf("config: retention keep must be >= 1")
	}
	return nil
}
