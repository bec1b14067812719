// Package config provides configuration management for the server binaries.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string `envconfig:"DATA_DIR"`

	// Cache settings
	CacheMaxItems int           `envconfig:"CACHE_MAX_ITEMS" default:"1000"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"24h"`

	// Optional replacement for the embedded reference tables
	KnowledgeBasePath string `envconfig:"KNOWLEDGE_BASE"`

	// Explanation provider; leave LLMAPIKey empty for template explanations
	LLMBaseURL string `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	LLMAPIKey  string `envconfig:"LLM_API_KEY"`
	LLMModel   string `envconfig:"LLM_MODEL" default:"gpt-4"`

	// Transport settings
	Transport string `envconfig:"TRANSPORT" default:"stdio"` // stdio, http
	HTTPPort  int    `envconfig:"HTTP_PORT" default:"8080"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()

	return &LiteConfig{
		DataDir:       filepath.Join(homeDir, ".pharmaguard"),
		CacheMaxItems: 1000,
		CacheTTL:      24 * time.Hour,
		LLMBaseURL:    "https://api.openai.com/v1",
		LLMModel:      "gpt-4",
		Transport:     "stdio",
		HTTPPort:      8080,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig reads PHARMAGUARD_* environment variables over the defaults.
func LoadLiteConfig() (*LiteConfig, error) {
	cfg := DefaultLiteConfig()
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultLiteConfig().DataDir
	}
	if cfg.CacheMaxItems <= 0 {
		return nil, fmt.Errorf("PHARMAGUARD_CACHE_MAX_ITEMS must be positive, got %d", cfg.CacheMaxItems)
	}
	switch cfg.Transport {
	case "stdio", "http":
	default:
		return nil, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
	return cfg, nil
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
