package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the qt serve configuration file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Auth   AuthConfig   `yaml:"auth"`
}

// ServerConfig contains listener settings.
type ServerConfig struct {
	HTTPAddress        string        `yaml:"http_address"`    // API listen address (default: 127.0.0.1:8080)
	MetricsAddress     string        `yaml:"metrics_address"` // Prometheus listen address, empty disables
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"` // per user
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	Verbose            bool          `yaml:"verbose"` // log every request, not only failures
}

// StoreConfig selects the backend the server exposes.
type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, file, postgres or memory
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer tokens. An empty secret runs the server in
// single-user mode, which is only allowed on a loopback address.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Server.HTTPAddress == "" {
		c.Server.HTTPAddress = "127.0.0.1:8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.RateLimitPerSecond == 0 {
		c.Server.RateLimitPerSecond = 20
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = 40
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 30 * 24 * time.Hour
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.HTTPAddress == "" {
		return errors.New("server.http_address is required")
	}
	if c.Server.MetricsAddress != "" && c.Server.MetricsAddress == c.Server.HTTPAddress {
		return errors.New("server.metrics_address must differ from server.http_address")
	}
	if c.Server.RateLimitPerSecond < 0 {
		return errors.New("server.rate_limit_per_second must not be negative")
	}
	switch c.Store.Driver {
	case "sqlite", "file", "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" && !loopback(c.Server.HTTPAddress) {
		return fmt.Errorf("auth.jwt_secret is required when listening on %s; single-user mode trusts X-User-ID and is limited to loopback addresses", c.Server.HTTPAddress)
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL < 0 {
		return errors.New("auth.token_ttl must not be negative")
	}
	return nil
}

// loopback reports whether addr only accepts local connections. An empty
// host listens on every interface.
func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
