// Package config loads the YAML configuration of the confluence command.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Sternrassler/confluence-client/pkg/client"
	"github.com/Sternrassler/confluence-client/pkg/logging"
	"github.com/Sternrassler/confluence-client/pkg/pagination"
	"github.com/Sternrassler/confluence-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Config holds the confluence command configuration.
type Config struct {
	Confluence ConfluenceConfig `yaml:"confluence"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Redis      RedisConfig      `yaml:"redis"`
	Search     SearchConfig     `yaml:"search"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ConfluenceConfig holds the connection settings.
type ConfluenceConfig struct {
	BaseURL         string `yaml:"base_url"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	Proxy           string `yaml:"proxy"`
	TrustSelfSigned bool   `yaml:"trust_self_signed"`
	CredentialCheck bool   `yaml:"credential_check"`
	UserAgent       string `yaml:"user_agent"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	MaxConcurrency  int    `yaml:"max_concurrency"`
	MaxRetries      *int   `yaml:"max_retries"` // nil: default 2
}

// RateLimitConfig holds client-side pacing settings.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxWaitSec        int     `yaml:"max_wait_sec"`
}

// RedisConfig enables the shared response cache and rate limit state.
// Leaving Addr empty disables both.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit"`
	MaxPages       int `yaml:"max_pages"` // 0 = unbounded
	PageTimeoutSec int `yaml:"page_timeout_sec"`
}

// ServerConfig holds settings of the serve command.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"` // trace, debug, info, warn, error
	Pretty bool   `yaml:"pretty"`
}

// Load reads, expands, defaults and validates the YAML file at path.
func Load(path string) (Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (Config, error) {
	cfg, err := Decode(data)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.finish(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ReadFile reads and decodes the YAML file at path without applying
// defaults or validating, so callers can overlay flags first.
func ReadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Decode(data)
}

// Decode decodes a YAML document. ${VAR} and ${VAR:-default} references
// are replaced from the environment before decoding.
func Decode(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) finish() error {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Confluence.TimeoutSec <= 0 {
		c.Confluence.TimeoutSec = 30
	}
	if c.Confluence.MaxConcurrency <= 0 {
		c.Confluence.MaxConcurrency = 5
	}
	if c.Confluence.MaxRetries == nil {
		retries := 2
		c.Confluence.MaxRetries = &retries
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}
	if c.RateLimit.MaxWaitSec <= 0 {
		c.RateLimit.MaxWaitSec = 120
	}
	if c.Redis.CacheTTLSec == 0 {
		c.Redis.CacheTTLSec = 300
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 25
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = 10
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = 120
	}
	if c.Server.ShutdownSec <= 0 {
		c.Server.ShutdownSec = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Confluence.BaseURL) == "" {
		return fmt.Errorf("confluence.base_url is required")
	}
	u, err := url.Parse(c.Confluence.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("confluence.base_url must be an http(s) URL, got %q", c.Confluence.BaseURL)
	}
	if c.Confluence.Username == "" {
		return fmt.Errorf("confluence.username is required")
	}
	if c.Confluence.MaxRetries != nil && *c.Confluence.MaxRetries < 0 {
		return fmt.Errorf("confluence.max_retries must be >= 0, got %d", *c.Confluence.MaxRetries)
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate_limit.requests_per_second must be >= 0, got %g", c.RateLimit.RequestsPerSecond)
	}
	if c.Redis.CacheTTLSec < 0 {
		return fmt.Errorf("redis.cache_ttl_sec must be >= 0, got %d", c.Redis.CacheTTLSec)
	}
	if c.Search.MaxPages < 0 {
		return fmt.Errorf("search.max_pages must be >= 0, got %d", c.Search.MaxPages)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// NewRedis returns a Redis client for the configured address, or nil when
// Redis is not configured.
func (c *Config) NewRedis() *redis.Client {
	if c.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// ClientConfig converts the file settings into a client configuration.
// rdb may be nil.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	cfg := client.DefaultConfig(c.Confluence.BaseURL, c.Confluence.Username, c.Confluence.Password)
	cfg.Proxy = c.Confluence.Proxy
	cfg.TrustSelfSigned = c.Confluence.TrustSelfSigned
	cfg.ExplicitCredentialCheck = c.Confluence.CredentialCheck
	if c.Confluence.UserAgent != "" {
		cfg.UserAgent = c.Confluence.UserAgent
	}
	cfg.Timeout = seconds(c.Confluence.TimeoutSec)
	cfg.MaxConcurrency = c.Confluence.MaxConcurrency
	if c.Confluence.MaxRetries != nil {
		cfg.MaxRetries = *c.Confluence.MaxRetries
	}

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerSecond = c.RateLimit.RequestsPerSecond
	rl.Burst = c.RateLimit.Burst
	rl.MaxWait = seconds(c.RateLimit.MaxWaitSec)
	cfg.RateLimit = rl

	if rdb != nil {
		cfg.Redis = rdb
		cfg.CacheTTL = seconds(c.Redis.CacheTTLSec)
	}
	return cfg
}

// PaginationConfig returns the page collection limits.
func (c *Config) PaginationConfig() pagination.Config {
	cfg := pagination.DefaultConfig()
	cfg.MaxPages = c.Search.MaxPages
	cfg.Timeout = seconds(c.Search.PageTimeoutSec)
	return cfg
}

// LoggerConfig returns the logger configuration writing to stderr.
func (c *Config) LoggerConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// envVarRegex matches ${VAR} and ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
