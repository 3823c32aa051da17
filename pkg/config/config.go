// Package config loads user settings for wheelhouse.
//
// Settings come from three layers, later ones winning: an optional TOML
// file ([DefaultPath]), WHEELHOUSE_* environment variables, and command-line
// flags applied by the caller. [Config.WithDefaults] fills whatever is
// still unset.
//
//	# ~/.config/wheelhouse/config.toml
//	index-url = "https://pypi.org/pypi"
//	cache-ttl = "12h"
//	redis-url = "redis://cache.internal:6379/0"
//	workers = 16
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/wheelhouse/pkg/cache"
	"github.com/matzehuels/wheelhouse/pkg/deps"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/integrations/pypi"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WHEELHOUSE_"

const DefaultCacheTTL = 24 * time.Hour

// Config holds user settings.
type Config struct {
	IndexURL         string        `toml:"index-url"`         // PyPI JSON API base
	CacheDir         string        `toml:"cache-dir"`         // metadata cache directory
	CacheTTL         time.Duration `toml:"cache-ttl"`         // metadata cache lifetime
	RedisURL         string        `toml:"redis-url"`         // shared metadata cache; overrides CacheDir
	Workers          int           `toml:"workers"`           // prefetch concurrency
	MaxRounds        int           `toml:"max-rounds"`        // resolver search bound
	Python           string        `toml:"python"`            // interpreter for new environments
	AllowPrereleases bool          `toml:"allow-prereleases"` // admit pre-releases everywhere
}

// DefaultPath returns $XDG_CONFIG_HOME/wheelhouse/config.toml, falling back
// to the platform's user config directory.
func DefaultPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "wheelhouse", "config.toml"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "wheelhouse", "config.toml"), nil
}

// Load reads the file at path, when it exists, and applies environment
// overrides. Defaults are not applied. An empty path skips the file.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, err
		default:
			if cfg, err = Parse(path, data); err != nil {
				return cfg, err
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes config file text. Unknown keys are rejected.
func Parse(path string, data []byte) (Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, errors.Wrap(errors.ErrCodeInvalidConfig, err, "%s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return cfg, errors.New(errors.ErrCodeInvalidConfig, "%s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// applyEnv overrides fields from WHEELHOUSE_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "%s%s: want a non-negative integer, got %q", EnvPrefix, key, v)
		}
		*dst = n
		return nil
	}

	str("INDEX_URL", &c.IndexURL)
	str("CACHE_DIR", &c.CacheDir)
	str("REDIS_URL", &c.RedisURL)
	str("PYTHON", &c.Python)
	if err := num("WORKERS", &c.Workers); err != nil {
		return err
	}
	if err := num("MAX_ROUNDS", &c.MaxRounds); err != nil {
		return err
	}
	if v, ok := lookup(EnvPrefix + "CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%sCACHE_TTL", EnvPrefix)
		}
		c.CacheTTL = d
	}
	if v, ok := lookup(EnvPrefix + "ALLOW_PRERELEASES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "%sALLOW_PRERELEASES", EnvPrefix)
		}
		c.AllowPrereleases = b
	}
	return nil
}

// WithDefaults returns a copy of Config with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	cfg := c
	if cfg.IndexURL == "" {
		cfg.IndexURL = pypi.DefaultIndexURL
	}
	if cfg.CacheDir == "" {
		if dir, err := cache.DefaultDir(); err == nil {
			cfg.CacheDir = dir
		}
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Workers <= 0 {
		cfg.Workers = deps.DefaultWorkers
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = deps.DefaultMaxRounds
	}
	return cfg
}
