// Package config loads the monitor configuration from an optional file,
// STEAM_MONITOR_* environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/steam-monitor/pkg/logging"
)

// EnvPrefix prefixes every environment variable. Dots in keys become
// underscores, so refresh.interval is STEAM_MONITOR_REFRESH_INTERVAL.
const EnvPrefix = "STEAM_MONITOR"

// Store backends.
const (
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config is the complete monitor configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Transport TransportConfig `mapstructure:"transport"`
	API       APIConfig       `mapstructure:"api"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig selects where the tracking set lives. Path is used by the
// file backend only.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TransportConfig tunes the relay resolver. An empty Relays list uses the
// built-in relays.
type TransportConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	Attempts          int           `mapstructure:"attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	UserAgent         string        `mapstructure:"user_agent"`
	Relays            []RelayConfig `mapstructure:"relays"`
}

// RelayConfig is one relay: a name and a URL template with {url} or {raw}.
type RelayConfig struct {
	Name     string `mapstructure:"name"`
	Template string `mapstructure:"template"`
}

type APIConfig struct {
	StoreBaseURL string `mapstructure:"store_base_url"`
	BaseURL      string `mapstructure:"base_url"`
	Language     string `mapstructure:"language"`
}

type RefreshConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RoundPause time.Duration `mapstructure:"round_pause"`
	MaxRounds  int           `mapstructure:"max_rounds"`
	Auto       bool          `mapstructure:"auto"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "steam-monitor.json")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("transport.timeout", 8*time.Second)
	v.SetDefault("transport.attempts", 1)
	v.SetDefault("transport.retry_delay", 500*time.Millisecond)
	v.SetDefault("transport.requests_per_second", 0.0)
	v.SetDefault("transport.breaker_failures", 5)
	v.SetDefault("transport.breaker_timeout", 30*time.Second)
	v.SetDefault("transport.cooldown", 30*time.Second)
	v.SetDefault("transport.user_agent", "steam-monitor/1.0")
	v.SetDefault("transport.relays", []RelayConfig{})

	v.SetDefault("api.store_base_url", "https://store.steampowered.com")
	v.SetDefault("api.base_url", "https://api.steampowered.com")
	v.SetDefault("api.language", "english")

	v.SetDefault("refresh.interval", 15*time.Minute)
	v.SetDefault("refresh.round_pause", 2*time.Second)
	v.SetDefault("refresh.max_rounds", 0)
	v.SetDefault("refresh.auto", true)

	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", 5*time.Second)
}

// Load reads configuration. path may be empty, in which case only the
// environment and defaults apply.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith reads configuration into v. Flags bound to v beforehand take
// precedence over the file and the environment.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	switch c.Store.Backend {
	case BackendRedis, BackendMemory:
	case BackendFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path: required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: must be one of redis, file, memory, got %q", c.Store.Backend))
	}

	if c.NeedsRedis() && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr: required for the redis backend"))
	}

	if c.Transport.Timeout <= 0 {
		errs = append(errs, errors.New("transport.timeout: must be positive"))
	}
	if c.Transport.Attempts < 1 {
		errs = append(errs, errors.New("transport.attempts: must be at least 1"))
	}
	if c.Transport.RetryDelay < 0 {
		errs = append(errs, errors.New("transport.retry_delay: must not be negative"))
	}
	if c.Transport.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("transport.requests_per_second: must not be negative"))
	}
	if c.Transport.Cooldown < 0 {
		errs = append(errs, errors.New("transport.cooldown: must not be negative"))
	}
	seen := make(map[string]bool, len(c.Transport.Relays))
	for i, r := range c.Transport.Relays {
		if r.Name == "" || r.Template == "" {
			errs = append(errs, fmt.Errorf("transport.relays[%d]: name and template are required", i))
			continue
		}
		if seen[r.Name] {
			errs = append(errs, fmt.Errorf("transport.relays[%d]: duplicate name %q", i, r.Name))
		}
		seen[r.Name] = true
	}

	if c.API.StoreBaseURL == "" || c.API.BaseURL == "" {
		errs = append(errs, errors.New("api: store_base_url and base_url are required"))
	}

	if c.Refresh.Interval <= 0 {
		errs = append(errs, errors.New("refresh.interval: must be positive"))
	}
	if c.Refresh.RoundPause < 0 {
		errs = append(errs, errors.New("refresh.round_pause: must not be negative"))
	}
	if c.Refresh.MaxRounds < 0 {
		errs = append(errs, errors.New("refresh.max_rounds: must not be negative"))
	}

	if c.Notify.Timeout <= 0 {
		errs = append(errs, errors.New("notify.timeout: must be positive"))
	}

	return errors.Join(errs...)
}

// NeedsRedis reports whether the store backend is Redis. Relay cooldowns
// and notification dedupe share the connection when it is.
func (c *Config) NeedsRedis() bool {
	return c.Store.Backend == BackendRedis
}
