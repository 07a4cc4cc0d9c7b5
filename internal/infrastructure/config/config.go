// Package config loads tourpass settings from defaults, an optional YAML file
// and TOURPASS_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poyrazK/tourpass/internal/core/domain"
	"github.com/spf13/viper"
)

const EnvPrefix = "TOURPASS"

type Config struct {
	HTTP      HTTPConfig        `mapstructure:"http"`
	BaseURL   string            `mapstructure:"base_url"`
	Store     StoreConfig       `mapstructure:"store"`
	Redis     RedisConfig       `mapstructure:"redis"`
	Policy    domain.Policy     `mapstructure:"policy"`
	SMTP      SMTPConfig        `mapstructure:"smtp"`
	Admin     AdminConfig       `mapstructure:"admin"`
	RateLimit RateLimitConfig   `mapstructure:"ratelimit"`
	Log       LogConfig         `mapstructure:"log"`
	Resources []domain.Resource `mapstructure:"resources"`
	Rules     []domain.Rule     `mapstructure:"rules"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	Driver  string        `mapstructure:"driver"` // postgres, sqlite or redis
	DSN     string        `mapstructure:"dsn"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"` // empty: log notifications only
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type AdminConfig struct {
	Key string `mapstructure:"key"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"` // 0 disables limiting
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "tourpass.db")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("policy.ttl", 7*24*time.Hour)
	v.SetDefault("policy.max_uses", 3)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("admin.key", "")
	v.SetDefault("ratelimit.rps", 5.0)
	v.SetDefault("ratelimit.burst", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. path may be empty, in which case TOURPASS_CONFIG
// is consulted; a missing file is only an error when a path was given.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Resources) == 0 {
		cfg.Resources = domain.DefaultResources
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = domain.DefaultRules
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "postgres", "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for %s", c.Store.Driver))
		}
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of postgres, sqlite, redis", c.Store.Driver))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if c.Policy.MaxUses < 0 || c.Policy.TTL < 0 {
		errs = append(errs, errors.New("policy.ttl and policy.max_uses must not be negative"))
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, errors.New("smtp.from is required when smtp.host is set"))
	}
	if c.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("ratelimit.rps must not be negative"))
	}
	if catalog, err := c.Catalog(); err != nil {
		errs = append(errs, err)
	} else if _, err := c.Matcher(catalog); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Catalog builds the resource catalog from the configured resources.
func (c *Config) Catalog() (*domain.Catalog, error) {
	catalog, err := domain.NewCatalog(c.Resources)
	if err != nil {
		return nil, fmt.Errorf("resources: %w", err)
	}
	return catalog, nil
}

// Matcher compiles the configured rules against catalog.
func (c *Config) Matcher(catalog *domain.Catalog) (*domain.Matcher, error) {
	m, err := domain.NewMatcher(c.Rules, catalog)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return m, nil
}

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}
