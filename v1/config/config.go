// Package config loads client settings from defaults, a YAML file and the
// environment, and turns them into adapter and lock options.
package config

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/charcoal-dev/cache-redis-client/v1/adapter"
	"github.com/charcoal-dev/cache-redis-client/v1/lock"
	"github.com/charcoal-dev/cache-redis-client/v1/transport"
)

var namespacePattern = regexp.MustCompile(`^\w*$`)

// Config is the full client configuration.
type Config struct {
	Redis Redis `koanf:"redis"`
	Lock  Lock  `koanf:"lock"`
	Log   Log   `koanf:"log"`
}

// Redis holds connection settings.
type Redis struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	Timeout        time.Duration `koanf:"timeout"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	Backend        string        `koanf:"backend"`
}

// Lock holds semaphore defaults.
type Lock struct {
	TTL          time.Duration `koanf:"ttl"`
	PollInterval time.Duration `koanf:"poll_interval"`
	Timeout      time.Duration `koanf:"timeout"`
	Namespace    string        `koanf:"namespace"`
}

// Log selects the slog handler.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Redis: Redis{
			Host:    "localhost",
			Port:    transport.DefaultPort,
			Timeout: transport.DefaultTimeout,
			Backend: string(adapter.BackendSocket),
		},
		Lock: Lock{TTL: lock.DefaultTTL},
		Log:  Log{Level: "info", Format: "text"},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Redis.Host) == "" {
		return fmt.Errorf("config: redis.host is empty")
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("config: redis.port %d out of range", c.Redis.Port)
	}
	if c.Redis.Timeout <= 0 {
		return fmt.Errorf("config: redis.timeout must be positive, got %s", c.Redis.Timeout)
	}
	if c.Redis.ConnectTimeout < 0 {
		return fmt.Errorf("config: redis.connect_timeout must not be negative")
	}
	if _, err := adapter.ParseBackend(c.Redis.Backend); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("config: lock.ttl must be positive, got %s", c.Lock.TTL)
	}
	if c.Lock.PollInterval < 0 || c.Lock.Timeout < 0 {
		return fmt.Errorf("config: lock.poll_interval and lock.timeout must not be negative")
	}
	if !namespacePattern.MatchString(c.Lock.Namespace) {
		return fmt.Errorf("config: lock.namespace %q must be a word", c.Lock.Namespace)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

// SlogLevel parses Level.
func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}

// AdapterOptions returns the adapter options for these settings.
func (c Config) AdapterOptions(logger *slog.Logger) []adapter.Option {
	opts := []adapter.Option{adapter.WithTimeout(c.Redis.Timeout)}
	if c.Redis.ConnectTimeout > 0 {
		opts = append(opts, adapter.WithConnectTimeout(c.Redis.ConnectTimeout))
	}
	if logger != nil {
		opts = append(opts, adapter.WithLogger(logger))
	}
	return opts
}

// NewAdapter builds the configured backend.
func (c Config) NewAdapter(opts ...adapter.Option) (adapter.Adapter, error) {
	backend, err := adapter.ParseBackend(c.Redis.Backend)
	if err != nil {
		return nil, err
	}
	return adapter.New(backend, c.Redis.Host, c.Redis.Port, opts...)
}

// LockOptions returns the semaphore defaults for these settings.
func (c Config) LockOptions(logger *slog.Logger) []lock.Option {
	opts := []lock.Option{
		lock.WithTTL(c.Lock.TTL),
		lock.WithNamespace(c.Lock.Namespace),
	}
	if c.Lock.PollInterval > 0 {
		opts = append(opts, lock.WithPollInterval(c.Lock.PollInterval))
	}
	if c.Lock.Timeout > 0 {
		opts = append(opts, lock.WithTimeout(c.Lock.Timeout))
	}
	if logger != nil {
		opts = append(opts, lock.WithLogger(logger))
	}
	return opts
}
