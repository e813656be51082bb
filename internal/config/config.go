// Package config loads the generation platform's configuration from a
// YAML file with environment-variable expansion, following the teacher's
// Load/defaults/normalize split. Unlike the teacher's hand-rolled .env
// scanner, this package reaches for github.com/joho/godotenv — the
// purpose-built library for the same concern — to populate the process
// environment before expansion runs.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/inful/docgen/internal/foundation"
)

// RetryBackoffMode selects the backoff shape internal/retry applies.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"
	RetryBackoffLinear      RetryBackoffMode = "linear"
	RetryBackoffExponential RetryBackoffMode = "exponential"
)

// Config is the fully-resolved runtime configuration.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Coordination CoordinationConfig `yaml:"coordination"`
	ObjectStore  ObjectStoreConfig  `yaml:"object_store"`
	Worker       WorkerConfig       `yaml:"worker"`
	LLM          LLMConfig          `yaml:"llm"`
	Logging      LoggingConfig      `yaml:"logging"`
	Retry        RetryConfig        `yaml:"retry"`
}

// DatabaseConfig points at the SQLite persistence layer.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // e.g. "file:/var/lib/docgen/docgen.db" or ":memory:"
}

// CoordinationConfig points at the pub/sub wake-up channel.
type CoordinationConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// ObjectStoreConfig points at the keyed object store backing templates
// and rendered documents.
type ObjectStoreConfig struct {
	BasePath    string `yaml:"base_path"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	Bucket      string `yaml:"bucket,omitempty"`
	AccessKey   string `yaml:"access_key,omitempty"`
	SecretKey   string `yaml:"secret_key,omitempty"`
}

// WorkerConfig tunes the three cooperating worker tasks.
type WorkerConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	RecoveryInterval  time.Duration `yaml:"recovery_interval"`
	StuckJobThreshold time.Duration `yaml:"stuck_job_threshold"`
}

// LLMConfig carries optional section-generation/classification LLM
// credentials and the confidence threshold below which the rule-based
// classifier falls back to STATIC.
type LLMConfig struct {
	APIKeyRaw           string  `yaml:"api_key,omitempty"`
	BaseURL             string  `yaml:"base_url,omitempty"`
	Model               string  `yaml:"model,omitempty"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// APIKey reports whether an LLM API key is configured, distinguishing
// "unset" from the zero-value empty string the way the teacher's typed
// config wraps optional settings in foundation.Option.
func (c LLMConfig) APIKey() foundation.Option[string] {
	if c.APIKeyRaw == "" {
		return foundation.None[string]()
	}
	return foundation.Some(c.APIKeyRaw)
}

// LoggingConfig selects slog handler shape and optional log directory.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // "json" or "text"
	Directory string `yaml:"directory,omitempty"`
}

// RetryConfig is the default retry.Policy shape, serialized.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// Load reads configPath, expands ${VAR} references against the process
// environment (after loading .env/.env.local if present, exactly as the
// teacher's loader layers env files before expansion), applies defaults,
// and validates the result.
func Load(configPath string) (*Config, error) {
	loadEnvFiles(configPath)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	normalize(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// loadEnvFiles loads .env and .env.local from the config file's
// directory into the process environment, ignoring missing files. Later
// files win, matching the teacher's layering order.
func loadEnvFiles(configPath string) {
	dir := dirOf(configPath)
	_ = godotenv.Load(dir + "/.env")
	_ = godotenv.Overload(dir + "/.env.local")
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
