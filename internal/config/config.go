package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pharmaguard-server/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. PHARMAGUARD_SERVER_PORT.
const EnvPrefix = "PHARMAGUARD"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	configFile string
	config     *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile loads configuration from an explicit file instead of
// searching the default locations. An empty path searches as NewManager does.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/pharmaguard/")
	}

	// Set environment variable prefix and enable automatic env binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "pharmaguard")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "file://migrations")
	v.SetDefault("database.auto_migrate", true)

	// Feedback defaults
	v.SetDefault("feedback.driver", "sqlite")
	v.SetDefault("feedback.sqlite_path", "data/feedback.db")
	v.SetDefault("feedback.postgres_dsn", "")

	// Cache defaults; an empty redis_url keeps explanations in process memory only
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")
	v.SetDefault("cache.max_items", 1000)

	// Explainer defaults
	v.SetDefault("explainer.provider", "rules")
	v.SetDefault("explainer.base_url", "https://api.openai.com/v1")
	v.SetDefault("explainer.api_key", "")
	v.SetDefault("explainer.model", "gpt-4")
	v.SetDefault("explainer.timeout", "30s")
	v.SetDefault("explainer.rate_limit", 2)
	v.SetDefault("explainer.retry_count", 2)
	v.SetDefault("explainer.temperature", 0.3)
	v.SetDefault("explainer.max_tokens", 500)

	v.SetDefault("knowledge_base.path", "")

	// Analysis defaults
	v.SetDefault("analysis.max_upload_bytes", 5*1024*1024)
	v.SetDefault("analysis.sample_drugs", "CODEINE,WARFARIN")
	v.SetDefault("analysis.persist_reports", true)

	// Retention defaults
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.max_age", "2160h")
	v.SetDefault("retention.at", "03:00")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetExplainerConfig returns explanation provider configuration
func (m *Manager) GetExplainerConfig() *domain.ExplainerConfig {
	return &m.config.Explainer
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	return Validate(m.config)
}

// Validate checks a configuration for values the server cannot start with.
func Validate(config *domain.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if config.Server.TLSEnabled && (config.Server.CertFile == "" || config.Server.KeyFile == "") {
		return fmt.Errorf("TLS enabled but cert_file or key_file is missing")
	}

	if config.Database.Enabled {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	switch config.Feedback.Driver {
	case "sqlite":
		if config.Feedback.SQLitePath == "" {
			return fmt.Errorf("feedback sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if config.Feedback.PostgresDSN == "" && !config.Database.Enabled {
			return fmt.Errorf("feedback postgres_dsn is required when the database is disabled")
		}
	case "none", "":
	default:
		return fmt.Errorf("unknown feedback driver: %s", config.Feedback.Driver)
	}

	switch config.Explainer.Provider {
	case "rules", "":
	case "openai":
		if config.Explainer.BaseURL == "" {
			return fmt.Errorf("explainer base_url is required for the openai provider")
		}
		if config.Explainer.RateLimit < 0 {
			return fmt.Errorf("explainer rate_limit must not be negative")
		}
	default:
		return fmt.Errorf("unknown explainer provider: %s", config.Explainer.Provider)
	}

	if config.Cache.MaxItems <= 0 {
		return fmt.Errorf("cache max_items must be positive")
	}
	if config.Analysis.MaxUploadBytes <= 0 {
		return fmt.Errorf("analysis max_upload_bytes must be positive")
	}

	if config.Retention.Enabled {
		if config.Retention.MaxAge <= 0 {
			return fmt.Errorf("retention max_age must be positive")
		}
		if _, err := time.Parse("15:04", config.Retention.At); err != nil {
			return fmt.Errorf("invalid retention time %q: expected HH:MM", config.Retention.At)
		}
	}

	if config.RateLimit.RequestsPerSecond < 0 || config.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	return DatabaseURL(m.config.Database)
}

// DatabaseURL renders db as a postgres:// URL usable by pgx and golang-migrate.
func DatabaseURL(db domain.DatabaseConfig) string {
	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     "/" + db.Database,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
