package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the environment variable prefix.
const DefaultEnvPrefix = "CHARCOAL_REDIS_"

var errReadBytes = errors.New("config: map provider does not support ReadBytes")

// Loader reads configuration layers. Later layers override earlier ones:
// defaults, the YAML file, the environment, then explicit overrides.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile reads path as YAML. An empty path is skipped.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithOverrides applies values keyed by dotted path, such as
// "redis.port", after every other layer. The CLI passes set flags here.
func WithOverrides(m map[string]any) LoaderOption {
	return func(l *Loader) {
		l.overrides = m
	}
}

// NewLoader returns a Loader with the default env prefix.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{k: koanf.New("."), envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every layer into a Config and validates it.
func Load(opts ...LoaderOption) (Config, error) {
	return NewLoader(opts...).Load()
}

// Load reads every layer into a Config and validates it.
func (l *Loader) Load() (Config, error) {
	cfg := Default()
	if l.filePath != "" {
		if err := l.k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("config: load file %s: %w", l.filePath, err)
		}
	}
	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return cfg, fmt.Errorf("config: load env: %w", err)
	}
	if len(l.overrides) > 0 {
		if err := l.k.Load(mapProvider(l.overrides), nil); err != nil {
			return cfg, fmt.Errorf("config: load overrides: %w", err)
		}
	}
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envKey maps CHARCOAL_REDIS_REDIS_CONNECT_TIMEOUT to redis.connect_timeout.
// Only the first underscore separates the section from the key.
func (l *Loader) envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// mapProvider feeds an in-memory map to koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) { return nil, errReadBytes }

func (m mapProvider) Read() (map[string]any, error) {
	out := make(map[string]any)
	for k, v := range m {
		section, key, ok := strings.Cut(k, ".")
		if !ok {
			out[k] = v
			continue
		}
		sub, _ := out[section].(map[string]any)
		if sub == nil {
			sub = make(map[string]any)
			out[section] = sub
		}
		sub[key] = v
	}
	return out, nil
}
