// Package config loads todomesh configuration from a YAML file layered over
// defaults, then applies environment overrides and validates the result.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/hupe1980/todomesh/logging"
	"gopkg.in/yaml.v3"
)

// Config is the top-level structure of todomesh.yaml.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Model     ModelConfig     `yaml:"model"`
	Flow      FlowConfig      `yaml:"flow"`
	Documents DocumentsConfig `yaml:"documents"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// ResponseMode is "list" (bare item array) or "answer" (answer + items).
	ResponseMode string `yaml:"response_mode"`
	// JWTSecret enables HS256 bearer auth when set.
	JWTSecret string `yaml:"jwt_secret"`
}

// StoreConfig selects the item repository.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite | memory
	Path   string `yaml:"path"`
}

// EmbeddingConfig selects the embedder.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // openai | hash
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// ModelConfig selects the chat model.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // openai | anthropic
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
	APIKey      string  `yaml:"api_key"`
}

// FlowConfig selects the tool catalog and loop budget.
type FlowConfig struct {
	Catalog string `yaml:"catalog"` // basic | assistant | query
	// MaxRounds overrides the catalog default when > 0.
	MaxRounds     int    `yaml:"max_rounds"`
	Stream        bool   `yaml:"stream"`
	TokenEncoding string `yaml:"token_encoding"`
}

// DocumentsConfig holds the fixed paths of the assistant file tools.
type DocumentsConfig struct {
	DocumentPath string `yaml:"document_path"`
	ReportPath   string `yaml:"report_path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Addr: ":4000", ResponseMode: "list"},
		Store:     StoreConfig{Driver: "sqlite", Path: "data/todomesh.db"},
		Embedding: EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-large", Dimensions: 1024},
		Model:     ModelConfig{Provider: "openai", Name: "gpt-4o", Temperature: 0.2, MaxTokens: 4096},
		Flow:      FlowConfig{Catalog: "basic"},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (optional, skipped when empty) over Default, applies
// environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays TODOMESH_* variables and provider API keys.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("TODOMESH_ADDR", &c.Server.Addr)
	str("TODOMESH_RESPONSE_MODE", &c.Server.ResponseMode)
	str("TODOMESH_JWT_SECRET", &c.Server.JWTSecret)
	str("TODOMESH_STORE", &c.Store.Driver)
	str("TODOMESH_DB", &c.Store.Path)
	str("TODOMESH_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	str("TODOMESH_MODEL_PROVIDER", &c.Model.Provider)
	str("TODOMESH_MODEL", &c.Model.Name)
	str("TODOMESH_CATALOG", &c.Flow.Catalog)
	str("TODOMESH_LOG_LEVEL", &c.Logging.Level)
	str("TODOMESH_LOG_FORMAT", &c.Logging.Format)

	if c.Model.APIKey == "" {
		switch c.Model.Provider {
		case "openai":
			str("OPENAI_API_KEY", &c.Model.APIKey)
		case "anthropic":
			str("ANTHROPIC_API_KEY", &c.Model.APIKey)
		}
	}

	if v, ok := lookup("TODOMESH_MAX_ROUNDS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TODOMESH_MAX_ROUNDS: %w", err)
		}
		c.Flow.MaxRounds = n
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	switch c.Server.ResponseMode {
	case "list", "answer":
	default:
		return fmt.Errorf("server response_mode must be list or answer, got %q", c.Server.ResponseMode)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store path cannot be empty for sqlite")
		}
	default:
		return fmt.Errorf("store driver must be sqlite or memory, got %q", c.Store.Driver)
	}

	switch c.Embedding.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("embedding provider must be openai or hash, got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}

	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("model provider must be openai or anthropic, got %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	switch c.Flow.Catalog {
	case "basic", "assistant":
	case "query":
		if c.Store.Driver != "sqlite" {
			return fmt.Errorf("catalog query requires the sqlite store")
		}
	default:
		return fmt.Errorf("flow catalog must be basic, assistant or query, got %q", c.Flow.Catalog)
	}
	if c.Flow.MaxRounds < 0 {
		return fmt.Errorf("flow max_rounds cannot be negative")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// Logger builds the structured logger described by the logging section.
func (c *Config) Logger() *logging.StructuredLogger {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.NewSlogLogger(level, c.Logging.Format, false)
}
