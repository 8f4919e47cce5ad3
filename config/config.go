package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Session     SessionConfig     `mapstructure:"session"`
	Cache       CacheConfig       `mapstructure:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Chatbot     ChatbotConfig     `mapstructure:"chatbot"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

// RedisConfig holds the shared store connection configuration.
// A single pool serves the queue, sessions, cache and rate limiter.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SessionConfig holds session lifetime settings
type SessionConfig struct {
	Lifetime         time.Duration `mapstructure:"lifetime"`
	RefreshThreshold time.Duration `mapstructure:"refresh_threshold"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"`
	BalanceTTL time.Duration `mapstructure:"balance_ttl"`
}

// RateLimitRule is the per-action limit within a fixed window
type RateLimitRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// RateLimitConfig holds per-action fixed-window rules
type RateLimitConfig struct {
	Login             RateLimitRule `mapstructure:"login"`
	Signup            RateLimitRule `mapstructure:"signup"`
	MessageProcessing RateLimitRule `mapstructure:"message_processing"`
}

// WorkerConfig holds background consumer settings
type WorkerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// PersistenceConfig holds the REST persistence collaborator settings
type PersistenceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	MaxRetries        int           `mapstructure:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
}

// ChatbotConfig holds the inference collaborator settings
type ChatbotConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// .env is optional, log but don't fail
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("CHAT_BACKEND")

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	v.BindEnv("persistence.base_url", "PERSISTENCE_URL")
	v.BindEnv("persistence.api_key", "PERSISTENCE_API_KEY")
	v.BindEnv("chatbot.base_url", "CHATBOT_URL")

	v.BindEnv("logging.level", "LOG_LEVEL")

	v.BindEnv("telemetry.enabled", "OTEL_ENABLED")
	v.BindEnv("telemetry.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.cookie_secure", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.dial_timeout", 2*time.Second)
	v.SetDefault("redis.read_timeout", 1*time.Second)
	v.SetDefault("redis.write_timeout", 1*time.Second)

	// Session lifetime 1h, refreshed once staleness passes 5m,
	// defensive sweep every 2h.
	v.SetDefault("session.lifetime", time.Hour)
	v.SetDefault("session.refresh_threshold", 5*time.Minute)
	v.SetDefault("session.sweep_interval", 2*time.Hour)

	v.SetDefault("cache.default_ttl", 5*time.Minute)
	v.SetDefault("cache.history_ttl", 5*time.Minute)
	v.SetDefault("cache.balance_ttl", time.Minute)

	v.SetDefault("rate_limit.login.limit", 5)
	v.SetDefault("rate_limit.login.window", time.Minute)
	v.SetDefault("rate_limit.signup.limit", 3)
	v.SetDefault("rate_limit.signup.window", time.Minute)
	v.SetDefault("rate_limit.message_processing.limit", 10)
	v.SetDefault("rate_limit.message_processing.window", time.Minute)

	v.SetDefault("worker.poll_interval", 100*time.Millisecond)

	v.SetDefault("persistence.timeout", 10*time.Second)
	v.SetDefault("persistence.requests_per_second", 10)
	v.SetDefault("persistence.max_retries", 3)
	v.SetDefault("persistence.initial_backoff", 100*time.Millisecond)
	v.SetDefault("persistence.max_backoff", 30*time.Second)

	v.SetDefault("chatbot.timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "chat-backend")
	v.SetDefault("telemetry.environment", "production")
}
