package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the dashboard service.
type Config struct {
	Environment string          `mapstructure:"environment"`
	Debug       bool            `mapstructure:"debug"`
	Server      ServerConfig    `mapstructure:"server"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Store       StoreConfig     `mapstructure:"store"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Inference   InferenceConfig `mapstructure:"inference"`
	Refresh     RefreshConfig   `mapstructure:"refresh"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig contains session token settings.
type AuthConfig struct {
	JWTSecret       string        `mapstructure:"jwt_secret"`
	Issuer          string        `mapstructure:"issuer"`
	TokenDuration   time.Duration `mapstructure:"token_duration"`
	SignInURL       string        `mapstructure:"sign_in_url"`
	UnauthorizedURL string        `mapstructure:"unauthorized_url"`
	// DevRole seeds the facade role when no session provider is wired
	// (development only; never persisted past restart).
	DevRole string `mapstructure:"dev_role"`
}

// StoreConfig contains the local settings store location.
type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig contains the upload-metadata database connection.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig contains the inference cache connection. An empty address
// selects the in-process cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// InferenceConfig contains the remote classification service settings.
type InferenceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RefreshConfig contains data-freshness cycle settings.
type RefreshConfig struct {
	// Latency is how long one refresh cycle stays in the delayed state
	// before completing.
	Latency time.Duration `mapstructure:"latency"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the given file, applying defaults and
// GSIS_-prefixed environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("GSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("debug", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("auth.issuer", "gsis-dashboard")
	v.SetDefault("auth.token_duration", 12*time.Hour)
	v.SetDefault("auth.sign_in_url", "/signin")
	v.SetDefault("auth.unauthorized_url", "/unauthorized")
	v.SetDefault("auth.dev_role", "viewer")
	v.SetDefault("store.dir", "data/settings")
	v.SetDefault("redis.ttl", 5*time.Minute)
	v.SetDefault("inference.base_url", "http://localhost:8001")
	v.SetDefault("inference.timeout", 30*time.Second)
	v.SetDefault("refresh.latency", 1500*time.Millisecond)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks settings that have no safe fallback.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Environment == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required in production")
	}
	if c.Refresh.Latency <= 0 {
		return fmt.Errorf("refresh latency must be positive, got %s", c.Refresh.Latency)
	}
	return nil
}
