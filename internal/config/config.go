package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	Server    ServerConfig
	Upstream  UpstreamConfig  `envPrefix:"UPSTREAM_"`
	Store     StoreConfig     `envPrefix:"STORE_"`
	Database  DatabaseConfig  `envPrefix:"DB_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	RateLimit RateLimitConfig
	Flow      FlowConfig
	Client    ClientConfig `envPrefix:"BM_"`
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	AllowOrigins    string        `env:"ALLOW_ORIGINS" envDefault:"http://localhost:3000"`
	SessionCookie   string        `env:"SESSION_COOKIE" envDefault:"bm_sid"`
	IdleTimeout     time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	MaxSessions     int           `env:"SESSION_MAX" envDefault:"10000"`
	LoadWait        time.Duration `env:"SESSION_LOAD_WAIT" envDefault:"250ms"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type UpstreamConfig struct {
	BaseURL string        `env:"BASE_URL"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"0s"`
}

type StoreConfig struct {
	Driver string        `env:"DRIVER" envDefault:"memory"`
	TTL    time.Duration `env:"TTL" envDefault:"168h"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	DBName   string `env:"NAME" envDefault:"bmconsole"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     string `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type RateLimitConfig struct {
	Enabled bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Limit   int           `env:"RATE_LIMIT" envDefault:"20"`
	Window  time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

type FlowConfig struct {
	ResendCooldown time.Duration `env:"RESEND_COOLDOWN" envDefault:"60s"`
	RefreshLeeway  time.Duration `env:"REFRESH_LEEWAY" envDefault:"30s"`
}

type ClientConfig struct {
	SessionFile string `env:"SESSION_FILE"`
}

// Load reads an optional .env file (or the given files) and then parses the
// environment into a Config.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("UPSTREAM_BASE_URL must be set")
	}
	switch c.Store.Driver {
	case StoreMemory, StoreRedis, StorePostgres:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if strings.Contains(c.Server.AllowOrigins, "*") {
		return errors.New("ALLOW_ORIGINS cannot contain a wildcard when credentials are allowed")
	}
	if c.Flow.ResendCooldown < time.Second {
		return fmt.Errorf("RESEND_COOLDOWN must be at least 1s, got %s", c.Flow.ResendCooldown)
	}
	if c.RateLimit.Enabled && c.RateLimit.Limit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive when rate limiting is enabled")
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (s ServerConfig) Address() string {
	if strings.HasPrefix(s.Port, ":") {
		return s.Port
	}
	return ":" + s.Port
}

func (s ServerConfig) Production() bool {
	return s.Environment == "production"
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// ResendSeconds is the resend cooldown in whole seconds.
func (f FlowConfig) ResendSeconds() int {
	return int(f.ResendCooldown / time.Second)
}
