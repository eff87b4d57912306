// Package config loads server configuration from the environment, with an
// optional YAML file override for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the API server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	LoginGuard LoginGuardConfig `yaml:"login_guard"`
	Chat       ChatConfig       `yaml:"chat"`
	CORS       CORSConfig       `yaml:"cors"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"SERVER_HOST,default=0.0.0.0"`
	Port         int           `yaml:"port" env:"SERVER_PORT,default=8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT,default=120s"`
}

// DatabaseConfig selects the storage backend. When Driver is "memory" the
// server runs fully in-process, which is the default for local development.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DB_DRIVER,default=memory"`
	DSN    string `yaml:"dsn" env:"DB_DSN"`
}

// AuthConfig controls JWT issuance and verification.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"JWT_TOKEN_TTL,default=24h"`
	Issuer    string        `yaml:"issuer" env:"JWT_ISSUER,default=island-rides-api"`
}

// RateLimitConfig controls the per-client API rate limiter.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second" env:"RATE_LIMIT_RPS,default=20"`
	Burst             int `yaml:"burst" env:"RATE_LIMIT_BURST,default=40"`
}

// LoginGuardConfig controls failed-login throttling.
type LoginGuardConfig struct {
	MaxFailures int           `yaml:"max_failures" env:"LOGIN_GUARD_MAX_FAILURES,default=5"`
	DecayWindow time.Duration `yaml:"decay_window" env:"LOGIN_GUARD_DECAY_WINDOW,default=15m"`
}

// ChatConfig controls WebSocket relay behaviour.
type ChatConfig struct {
	WriteTimeout time.Duration `yaml:"write_timeout" env:"CHAT_WRITE_TIMEOUT,default=10s"`
	PongTimeout  time.Duration `yaml:"pong_timeout" env:"CHAT_PONG_TIMEOUT,default=60s"`
	MaxMessage   int64         `yaml:"max_message" env:"CHAT_MAX_MESSAGE_BYTES,default=4096"`
}

// CORSConfig lists origins allowed to call the API from browsers.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS,default=http://localhost:3000;http://localhost:19006"`
}

// LoggingConfig mirrors pkg/logger's configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL,default=info"`
	Format     string `yaml:"format" env:"LOG_FORMAT,default=json"`
	Output     string `yaml:"output" env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromFile reads a YAML configuration file, then applies environment
// overrides on top of it.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	cfg.applyDefaults()

	// Secrets stay out of config files.
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "island-rides-api"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.LoginGuard.MaxFailures == 0 {
		c.LoginGuard.MaxFailures = 5
	}
	if c.LoginGuard.DecayWindow == 0 {
		c.LoginGuard.DecayWindow = 15 * time.Minute
	}
	if c.Chat.WriteTimeout == 0 {
		c.Chat.WriteTimeout = 10 * time.Second
	}
	if c.Chat.PongTimeout == 0 {
		c.Chat.PongTimeout = 60 * time.Second
	}
	if c.Chat.MaxMessage == 0 {
		c.Chat.MaxMessage = 4096
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN is required when DB_DRIVER=postgres")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.LoginGuard.MaxFailures <= 0 {
		return fmt.Errorf("login guard max failures must be positive")
	}
	return nil
}
