// Package config loads tabletalk configuration: a YAML file with sane
// defaults, then environment overrides on top so deployments can inject
// credentials without touching the file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tabletalk configuration.
type Config struct {
	Name string `yaml:"name"`

	// LLM configures the code-generation provider.
	LLM LLMConfig `yaml:"llm"`

	// Schema locates the semantic layer definitions.
	Schema SchemaConfig `yaml:"schema"`

	// Data locates the tabular data the schema describes.
	Data DataConfig `yaml:"data"`

	// Engine tunes the attempt loop and the sandbox.
	Engine EngineConfig `yaml:"engine"`

	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`

	// RequestsPerMinute rate-limits outbound completions. Zero disables
	// the limiter.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// SchemaConfig locates schema YAML files.
type SchemaConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// DataConfig locates the CSV directory backing the schema's tables.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// EngineConfig tunes query answering.
type EngineConfig struct {
	MaxAttempts    int    `yaml:"max_attempts"`
	SandboxTimeout string `yaml:"sandbox_timeout"`
	CellBudget     int64  `yaml:"cell_budget"`
	CacheSize      int    `yaml:"cache_size"`

	// ArtifactDB is the SQLite path for persisted code artifacts. Empty
	// disables persistence.
	ArtifactDB string `yaml:"artifact_db"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Name: "tabletalk",
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			BaseURL:           "https://api.openai.com/v1",
			Timeout:           "60s",
			RequestsPerMinute: 30,
		},
		Schema: SchemaConfig{Dir: "schema"},
		Data:   DataConfig{Dir: "data"},
		Engine: EngineConfig{
			MaxAttempts:    3,
			SandboxTimeout: "10s",
			CellBudget:     10_000_000,
			CacheSize:      256,
			ArtifactDB:     "tabletalk.db",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error; the defaults plus environment stand alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("TABLETALK_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case "gemini":
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if m := os.Getenv("TABLETALK_MODEL"); m != "" {
		c.LLM.Model = m
	}
	if u := os.Getenv("TABLETALK_BASE_URL"); u != "" {
		c.LLM.BaseURL = u
	}
	if p := os.Getenv("TABLETALK_DB"); p != "" {
		c.Engine.ArtifactDB = p
	}
	if d := os.Getenv("TABLETALK_SCHEMA_DIR"); d != "" {
		c.Schema.Dir = d
	}
	if d := os.Getenv("TABLETALK_DATA_DIR"); d != "" {
		c.Data.Dir = d
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	if c.Engine.MaxAttempts < 1 {
		return fmt.Errorf("config: engine.max_attempts must be at least 1, got %d", c.Engine.MaxAttempts)
	}
	if _, err := parseDuration(c.LLM.Timeout, 0); err != nil {
		return fmt.Errorf("config: llm.timeout: %w", err)
	}
	if _, err := parseDuration(c.Engine.SandboxTimeout, 0); err != nil {
		return fmt.Errorf("config: engine.sandbox_timeout: %w", err)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	return nil
}

// RequestTimeout returns the parsed LLM timeout.
func (c *LLMConfig) RequestTimeout() time.Duration {
	d, _ := parseDuration(c.Timeout, 60*time.Second)
	return d
}

// SandboxTimeoutDuration returns the parsed sandbox timeout.
func (c *EngineConfig) SandboxTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.SandboxTimeout, 10*time.Second)
	return d
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	return d, nil
}
