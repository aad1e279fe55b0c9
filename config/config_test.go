package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "todomesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  response_mode: answer
store:
  driver: memory
embedding:
  provider: hash
  dimensions: 256
flow:
  catalog: assistant
  max_rounds: 5
documents:
  document_path: files/analysis.txt
  report_path: files/report.txt
logging:
  level: debug
  format: text
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "answer", cfg.Server.ResponseMode)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, "assistant", cfg.Flow.Catalog)
	assert.Equal(t, 5, cfg.Flow.MaxRounds)
	assert.Equal(t, "files/report.txt", cfg.Documents.ReportPath)
	assert.Equal(t, "text", cfg.Logging.Format)

	// Untouched sections keep their defaults.
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: ["))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "flow:\n  catalog: query\nstore:\n  driver: memory\n"))
	assert.ErrorContains(t, err, "requires the sqlite store")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"TODOMESH_ADDR":           ":7000",
		"TODOMESH_DB":             "/tmp/x.db",
		"TODOMESH_MODEL_PROVIDER": "anthropic",
		"ANTHROPIC_API_KEY":       "sk-ant",
		"OPENAI_API_KEY":          "sk-openai",
		"TODOMESH_MAX_ROUNDS":     "7",
		"TODOMESH_JWT_SECRET":     "",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/x.db", cfg.Store.Path)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "sk-ant", cfg.Model.APIKey)
	assert.Equal(t, 7, cfg.Flow.MaxRounds)
	assert.Empty(t, cfg.Server.JWTSecret, "empty values do not override")
}

func TestApplyEnv_InvalidRounds(t *testing.T) {
	err := Default().applyEnv(envMap(map[string]string{"TODOMESH_MAX_ROUNDS": "many"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"response mode", func(c *Config) { c.Server.ResponseMode = "stream" }},
		{"store driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"sqlite path", func(c *Config) { c.Store.Path = "" }},
		{"embedding provider", func(c *Config) { c.Embedding.Provider = "ollama" }},
		{"dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }},
		{"model provider", func(c *Config) { c.Model.Provider = "gemini" }},
		{"model name", func(c *Config) { c.Model.Name = "" }},
		{"catalog", func(c *Config) { c.Flow.Catalog = "agent" }},
		{"rounds", func(c *Config) { c.Flow.MaxRounds = -1 }},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfig_Logger(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "debug"
	assert.NotNil(t, cfg.Logger())
}
