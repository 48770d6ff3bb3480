// Package config loads and validates taskrelay configuration.
// Configuration errors are fatal at pipeline construction: a missing
// tenant, credential or channel source aborts startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all taskrelay configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Messaging platform connection
	Platform PlatformConfig `yaml:"platform"`

	// AI reasoning engine
	AI AIConfig `yaml:"ai"`

	// Embedding engine for the semantic store
	Embedding EmbeddingConfig `yaml:"embedding"`

	// SQLite store
	Store StoreConfig `yaml:"store"`

	// Polling behavior
	Poll PollConfig `yaml:"poll"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Channels to monitor, upserted into the store at startup.
	Channels []ChannelConfig `yaml:"channels"`
}

// PlatformConfig configures the messaging platform client.
type PlatformConfig struct {
	BaseURL      string `yaml:"base_url"`
	TokenURL     string `yaml:"token_url"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Identity of the pipeline's own posting account, used for
	// self-message filtering.
	BotPrincipalName string `yaml:"bot_principal_name"`
	BotDisplayName   string `yaml:"bot_display_name"`

	// Page size for channel message fetches.
	PageSize int `yaml:"page_size"`
}

// AIConfig configures the AI reasoning engine.
type AIConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama, genai, none
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Base URL for links to created tasks in channel replies.
	TaskURLBase string `yaml:"task_url_base"`
}

// PollConfig configures the orchestrator loop.
type PollConfig struct {
	Interval   string `yaml:"interval"`    // e.g. "60s"
	MaxResults int    `yaml:"max_results"` // top-K for context retrieval
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	DebugMode bool   `yaml:"debug_mode"`
	Level     string `yaml:"level"`
	Dir       string `yaml:"dir"`
}

// ChannelConfig identifies a monitored channel and its owning item.
type ChannelConfig struct {
	OwnerItemID string `yaml:"owner_item_id"`
	ChannelID   string `yaml:"channel_id"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "taskrelay",
		Version: "1.0.0",
		Platform: PlatformConfig{
			PageSize: 50,
		},
		AI: AIConfig{
			Provider: "openai",
			Timeout:  "120s",
		},
		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".taskrelay", "taskrelay.db"),
		},
		Poll: PollConfig{
			Interval:   "60s",
			MaxResults: 5,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".taskrelay",
		},
	}
}

// Load reads configuration from a YAML file, merging onto defaults and
// applying environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides fills credentials from the environment. Environment
// values win over file values for secrets, so deployments can keep keys
// out of config files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("TASKRELAY_CLIENT_ID"); v != "" {
		c.Platform.ClientID = v
	}
	if v := os.Getenv("TASKRELAY_CLIENT_SECRET"); v != "" {
		c.Platform.ClientSecret = v
	}
	if v := os.Getenv("TASKRELAY_TENANT_ID"); v != "" {
		c.Platform.TenantID = v
	}

	// AI provider key: only the env var matching the configured provider
	// applies, so a stray key for the other provider never flips an
	// explicit provider choice.
	switch c.AI.Provider {
	case "anthropic":
		if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
			c.AI.APIKey = v
		}
	default:
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			c.AI.APIKey = v
		}
	}

	if v := os.Getenv("GENAI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "genai"
		}
	}
}

// Validate checks that all fatal-at-startup settings are present.
func (c *Config) Validate() error {
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if c.Platform.TenantID == "" {
		return fmt.Errorf("platform.tenant_id is required")
	}
	if c.Platform.ClientID == "" || c.Platform.ClientSecret == "" {
		return fmt.Errorf("platform credentials (client_id, client_secret) are required")
	}
	if c.Platform.BotPrincipalName == "" {
		return fmt.Errorf("platform.bot_principal_name is required")
	}
	if c.Platform.PageSize <= 0 {
		c.Platform.PageSize = 50
	}
	if c.AI.APIKey == "" {
		return fmt.Errorf("ai.api_key is required")
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if c.Poll.MaxResults <= 0 {
		c.Poll.MaxResults = 5
	}
	return nil
}

// PollInterval parses the configured loop interval.
func (c *Config) PollInterval() (time.Duration, error) {
	if c.Poll.Interval == "" {
		return 60 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Poll.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll.interval %q: %w", c.Poll.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("poll.interval must be positive, got %q", c.Poll.Interval)
	}
	return d, nil
}

// AITimeout parses the AI request timeout.
func (c *Config) AITimeout() time.Duration {
	d, err := time.ParseDuration(c.AI.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// TokenEndpoint returns the token URL, deriving the tenant-scoped default
// when token_url is not set explicitly.
func (c *Config) TokenEndpoint() string {
	if c.Platform.TokenURL != "" {
		return c.Platform.TokenURL
	}
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.Platform.TenantID)
}
