package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEnvOverrides_Generation(t *testing.T) {
	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("ADFORGE_MAX_CONCURRENT", "9")
		t.Setenv("ADFORGE_MAX_RETRIES", "4")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, 9, cfg.Generation.MaxConcurrent)
		assert.Equal(t, 4, cfg.Generation.MaxRetries)
	})

	t.Run("env overrides file values", func(t *testing.T) {
		t.Setenv("ADFORGE_MAX_CONCURRENT", "7")

		path := writeConfigFile(t, "generation:\n  max_concurrent: 2\n")
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 7, cfg.Generation.MaxConcurrent)
	})
}

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("provider and key from env", func(t *testing.T) {
		t.Setenv("ADFORGE_TEXT_PROVIDER", "openai")
		t.Setenv("ADFORGE_OPENAI_API_KEY", "oa-key")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "openai", cfg.LLM.TextProvider)
		assert.Equal(t, "oa-key", cfg.LLM.OpenAIAPIKey)
	})

	t.Run("invalid env provider still fails validation", func(t *testing.T) {
		t.Setenv("ADFORGE_TEXT_PROVIDER", "nonsense")

		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "text provider")
	})
}

func TestEnvOverrides_Storage(t *testing.T) {
	t.Setenv("ADFORGE_DB_PATH", "/tmp/override.db")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.Storage.DatabasePath)
}
