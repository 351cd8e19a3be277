package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tabletalk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Engine.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Engine.SandboxTimeoutDuration())
	assert.Equal(t, int64(10_000_000), cfg.Engine.CellBudget)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
llm:
  provider: gemini
  model: gemini-2.5-flash
  timeout: 30s
engine:
  max_attempts: 5
  sandbox_timeout: 2s
  cell_budget: 1000
logging:
  level: debug
  json: true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Engine.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Engine.SandboxTimeoutDuration())
	assert.Equal(t, 30*time.Second, cfg.LLM.RequestTimeout())
	assert.Equal(t, int64(1000), cfg.Engine.CellBudget)
	assert.True(t, cfg.Logging.JSON)
	// Untouched sections keep their defaults.
	assert.Equal(t, "schema", cfg.Schema.Dir)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
llm:
  api_key: from-file
  model: from-file-model
`)
	t.Setenv("TABLETALK_API_KEY", "from-env")
	t.Setenv("TABLETALK_MODEL", "from-env-model")
	t.Setenv("TABLETALK_DB", "/tmp/other.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.LLM.APIKey)
	assert.Equal(t, "from-env-model", cfg.LLM.Model)
	assert.Equal(t, "/tmp/other.db", cfg.Engine.ArtifactDB)
}

func TestProviderKeyFallback(t *testing.T) {
	t.Setenv("TABLETALK_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	path := writeConfig(t, "llm:\n  provider: gemini\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gem-key", cfg.LLM.APIKey)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown provider", "llm:\n  provider: smoke-signals\n"},
		{"zero attempts", "engine:\n  max_attempts: 0\n"},
		{"bad timeout", "engine:\n  sandbox_timeout: fast\n"},
		{"bad level", "logging:\n  level: loud\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}
