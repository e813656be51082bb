package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inful/docgen/internal/config"
)

func TestLoadAppliesDefaultsAndEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DOCGEN_DSN", "file:from-env.db")

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
database:
  dsn: "${DOCGEN_DSN}"
`), 0600))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	require.Equal(t, "file:from-env.db", cfg.Database.DSN)
	require.Equal(t, config.RetryBackoffLinear, cfg.Retry.Mode)
	require.Equal(t, 0.6, cfg.LLM.ConfidenceThreshold)
}

func TestLoadRejectsInvalidConfidenceThreshold(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
llm:
  confidence_threshold: 1.5
`), 0600))

	_, err := config.Load(configPath)
	require.Error(t, err)
}
