package config

import "time"

// Default returns a Config populated with conservative defaults; Load
// merges a user-supplied YAML file on top of this.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN: "file:docgen.db",
		},
		Coordination: CoordinationConfig{
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "docgen.jobs.enqueued",
		},
		ObjectStore: ObjectStoreConfig{
			BasePath: "./data/objects",
		},
		Worker: WorkerConfig{
			PollInterval:      time.Second,
			HeartbeatInterval: 30 * time.Second,
			RecoveryInterval:  5 * time.Minute,
			StuckJobThreshold: 30 * time.Minute,
		},
		LLM: LLMConfig{
			ConfidenceThreshold: 0.6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Retry: RetryConfig{
			Mode:       RetryBackoffLinear,
			Initial:    time.Second,
			Max:        30 * time.Second,
			MaxRetries: 2,
		},
	}
}
