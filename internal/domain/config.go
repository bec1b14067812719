package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Feedback      FeedbackConfig      `mapstructure:"feedback"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Explainer     ExplainerConfig     `mapstructure:"explainer"`
	KnowledgeBase KnowledgeBaseConfig `mapstructure:"knowledge_base"`
	Analysis      AnalysisConfig      `mapstructure:"analysis"`
	Retention     RetentionConfig     `mapstructure:"retention"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	TLSEnabled   bool          `mapstructure:"tls_enabled"`
	CertFile     string        `mapstructure:"cert_file"`
	KeyFile      string        `mapstructure:"key_file"`
}

// DatabaseConfig represents the report database connection configuration.
// Report persistence is skipped entirely when Enabled is false.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// FeedbackConfig selects the clinician feedback store
type FeedbackConfig struct {
	Driver      string `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// CacheConfig represents explanation cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MaxItems    int           `mapstructure:"max_items"`
}

// ExplainerConfig configures the narrative explanation provider
type ExplainerConfig struct {
	Provider    string        `mapstructure:"provider"` // "rules", "openai"
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RetryCount  int           `mapstructure:"retry_count"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// KnowledgeBaseConfig points at an optional replacement for the embedded tables
type KnowledgeBaseConfig struct {
	Path string `mapstructure:"path"`
}

// AnalysisConfig bounds what the analysis endpoints accept
type AnalysisConfig struct {
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
	SampleDrugs    string `mapstructure:"sample_drugs"`
	PersistReports bool   `mapstructure:"persist_reports"`
}

// RetentionConfig controls the scheduled purge of stored reports
type RetentionConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	MaxAge  time.Duration `mapstructure:"max_age"`
	At      string        `mapstructure:"at"` // "HH:MM" UTC
}

// RateLimitConfig represents per-client API rate limiting
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
