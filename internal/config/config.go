// Package config loads and validates runledger configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the RL_ prefix (RL_DATABASE_HOST overrides
// database.host in the YAML), so the same binary runs from a config.yaml locally
// and from pure environment variables in a container.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "RL"

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodyBytes caps request bodies on the ingestion routes.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// AutoMigrate applies pending migrations before serving.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Name               string        `mapstructure:"name"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	MaxConnections     int           `mapstructure:"max_connections"`
	MinIdleConnections int           `mapstructure:"min_idle_connections"`
	ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Tokens TokenConfig `mapstructure:"tokens"`
	Admin  AdminConfig `mapstructure:"admin"`
}

// TokenConfig controls project token issuance.
type TokenConfig struct {
	// Prefix is prepended to every issued token, e.g. "rl_live_" or "rl_test_".
	Prefix string `mapstructure:"prefix"`
}

// AdminConfig controls access to the provisioning API.
type AdminConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// KeyHash is the bcrypt hash of the admin key (see cmd/hash).
	KeyHash string `mapstructure:"key_hash"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds rate limiting configuration.
// When RedisAddr is set, limits are shared across replicas through Redis;
// otherwise each process keeps its own in-memory buckets.
type RateLimitingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
	RedisAddr         string `mapstructure:"redis_addr"`
	RedisPassword     string `mapstructure:"redis_password"`
	RedisDB           int    `mapstructure:"redis_db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// AuditConfig controls the audit trail of provisioning actions.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// LogFailedRequests also records provisioning calls that were rejected (4xx/5xx).
	LogFailedRequests bool `mapstructure:"log_failed_requests"`
	// Shippers configures audit destinations. Shippers come from the YAML file only.
	Shippers []AuditShipperConfig `mapstructure:"shippers"`
}

// AuditShipperConfig holds configuration for a single audit shipper
type AuditShipperConfig struct {
	Enabled bool                `mapstructure:"enabled"`
	Type    string              `mapstructure:"type"` // file, webhook
	Webhook *AuditWebhookConfig `mapstructure:"webhook"`
	File    *AuditFileConfig    `mapstructure:"file"`
}

// AuditWebhookConfig holds webhook shipper configuration
type AuditWebhookConfig struct {
	URL         string            `mapstructure:"url"`
	Headers     map[string]string `mapstructure:"headers"`
	TimeoutSecs int               `mapstructure:"timeout_secs"`
}

// AuditFileConfig holds file shipper configuration
type AuditFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// envKeys lists every key that may be overridden from the environment.
// AutomaticEnv alone does not reach nested keys during Unmarshal, so each is bound explicitly.
var envKeys = []string{
	"server.host",
	"server.port",
	"server.read_timeout",
	"server.write_timeout",
	"server.shutdown_timeout",
	"server.max_body_bytes",
	"server.auto_migrate",

	"database.host",
	"database.port",
	"database.name",
	"database.user",
	"database.password",
	"database.ssl_mode",
	"database.max_connections",
	"database.min_idle_connections",
	"database.conn_max_lifetime",

	"auth.tokens.prefix",
	"auth.admin.enabled",
	"auth.admin.key_hash",

	"security.cors.allowed_origins",
	"security.cors.allowed_methods",
	"security.rate_limiting.enabled",
	"security.rate_limiting.requests_per_minute",
	"security.rate_limiting.burst",
	"security.rate_limiting.redis_addr",
	"security.rate_limiting.redis_password",
	"security.rate_limiting.redis_db",

	"logging.level",
	"logging.format",

	"telemetry.metrics.enabled",
	"telemetry.metrics.prometheus_port",

	"audit.enabled",
	"audit.log_failed_requests",
}

func bindEnvVars(v *viper.Viper) error {
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables.
// An empty configPath searches ./config.yaml, ./config/config.yaml and /etc/runledger/config.yaml.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/runledger")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Secrets may be written as ${VAR} references in the YAML file.
	cfg.Database.Password = expandEnvRef(cfg.Database.Password)
	cfg.Auth.Admin.KeyHash = expandEnvRef(cfg.Auth.Admin.KeyHash)
	cfg.Security.RateLimiting.RedisPassword = expandEnvRef(cfg.Security.RateLimiting.RedisPassword)
	for _, shipper := range cfg.Audit.Shippers {
		if shipper.Webhook == nil {
			continue
		}
		for k, val := range shipper.Webhook.Headers {
			shipper.Webhook.Headers[k] = expandEnvRef(val)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnvRef resolves a value of the exact form ${VAR}. Anything else is
// returned untouched; bcrypt hashes contain "$2a$" and must not be expanded.
func expandEnvRef(s string) string {
	if len(s) > 3 && strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	return s
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.auto_migrate", true)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "runledger")
	v.SetDefault("database.user", "runledger")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("auth.tokens.prefix", "rl_live_")
	v.SetDefault("auth.admin.enabled", true)

	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 600)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.rate_limiting.redis_db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.log_failed_requests", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}

	if strings.TrimSpace(c.Auth.Tokens.Prefix) == "" {
		return fmt.Errorf("auth.tokens.prefix is required")
	}
	if c.Auth.Admin.Enabled && c.Auth.Admin.KeyHash == "" {
		return fmt.Errorf("auth.admin.key_hash is required when the admin API is enabled")
	}

	if c.Security.RateLimiting.Enabled {
		if c.Security.RateLimiting.RequestsPerMinute < 1 {
			return fmt.Errorf("security.rate_limiting.requests_per_minute must be at least 1")
		}
		if c.Security.RateLimiting.Burst < 1 {
			return fmt.Errorf("security.rate_limiting.burst must be at least 1")
		}
	}

	if c.Telemetry.Metrics.Enabled {
		p := c.Telemetry.Metrics.PrometheusPort
		if p < 1 || p > 65535 {
			return fmt.Errorf("invalid telemetry.metrics.prometheus_port: %d", p)
		}
		if p == c.Server.Port {
			return fmt.Errorf("telemetry.metrics.prometheus_port must differ from server.port")
		}
	}

	if c.Audit.Enabled {
		for i, shipper := range c.Audit.Shippers {
			if !shipper.Enabled {
				continue
			}
			switch shipper.Type {
			case "file":
				if shipper.File == nil || shipper.File.Path == "" {
					return fmt.Errorf("audit.shippers[%d]: file.path is required", i)
				}
			case "webhook":
				if shipper.Webhook == nil || shipper.Webhook.URL == "" {
					return fmt.Errorf("audit.shippers[%d]: webhook.url is required", i)
				}
			default:
				return fmt.Errorf("audit.shippers[%d]: unknown type %q (must be file or webhook)", i, shipper.Type)
			}
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string in key=value form.
// Values are quoted so passwords containing spaces or quotes survive.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnQuote(c.Host), c.Port, dsnQuote(c.User), dsnQuote(c.Password), dsnQuote(c.Name), dsnQuote(c.SSLMode),
	)
}

func dsnQuote(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
