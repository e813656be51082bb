package config

import "fmt"

// normalize fills in any zero-valued fields a partial YAML document left
// unset, falling back to Default()'s values.
func normalize(cfg *Config) {
	d := Default()
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = d.Database.DSN
	}
	if cfg.Coordination.NATSURL == "" {
		cfg.Coordination.NATSURL = d.Coordination.NATSURL
	}
	if cfg.Coordination.Subject == "" {
		cfg.Coordination.Subject = d.Coordination.Subject
	}
	if cfg.ObjectStore.BasePath == "" {
		cfg.ObjectStore.BasePath = d.ObjectStore.BasePath
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = d.Worker.PollInterval
	}
	if cfg.Worker.HeartbeatInterval <= 0 {
		cfg.Worker.HeartbeatInterval = d.Worker.HeartbeatInterval
	}
	if cfg.Worker.RecoveryInterval <= 0 {
		cfg.Worker.RecoveryInterval = d.Worker.RecoveryInterval
	}
	if cfg.Worker.StuckJobThreshold <= 0 {
		cfg.Worker.StuckJobThreshold = d.Worker.StuckJobThreshold
	}
	if cfg.LLM.ConfidenceThreshold <= 0 {
		cfg.LLM.ConfidenceThreshold = d.LLM.ConfidenceThreshold
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = d.Logging.Format
	}
	if cfg.Retry.Mode == "" {
		cfg.Retry.Mode = d.Retry.Mode
	}
	if cfg.Retry.Initial <= 0 {
		cfg.Retry.Initial = d.Retry.Initial
	}
	if cfg.Retry.Max <= 0 {
		cfg.Retry.Max = d.Retry.Max
	}
}

// validate rejects configurations that normalize cannot safely default
// its way out of.
func validate(cfg *Config) error {
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.LLM.ConfidenceThreshold < 0 || cfg.LLM.ConfidenceThreshold > 1 {
		return fmt.Errorf("llm.confidence_threshold must be within [0,1], got %v", cfg.LLM.ConfidenceThreshold)
	}
	result := ParseRetryBackoffMode(string(cfg.Retry.Mode))
	if result.IsErr() {
		return fmt.Errorf("retry.mode: %w", result.UnwrapErr())
	}
	cfg.Retry.Mode = result.Unwrap()
	return nil
}
