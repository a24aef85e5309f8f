// Package config loads sieve's layered configuration.
//
// Precedence (highest to lowest): flags > SIEVE_* env vars > config file >
// defaults. The config file is sieve.yaml (or sieve.yml) in the working
// directory unless a path is given explicitly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/sieve/internal/mapping"
)

// Defaults.
const (
	DefaultDatabase = "sieve.db"
	DefaultQueries  = "queries"
	DefaultPolicy   = "default"
	DefaultFormat   = "text"
	DefaultListen   = "127.0.0.1:8080"
)

// EnvPrefix prefixes environment variables: SIEVE_DATABASE -> database.
const EnvPrefix = "SIEVE_"

// Config holds all configuration options.
type Config struct {
	Database string `koanf:"database"`
	Queries  string `koanf:"queries"`
	Policy   string `koanf:"policy"`
	Format   string `koanf:"format"`
	Verbose  bool   `koanf:"verbose"`
	Listen   string `koanf:"listen"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// findConfigFile finds the config file to use.
// Priority: explicit path > sieve.yaml > sieve.yml
func findConfigFile(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"sieve.yaml", "sieve.yml"} {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Load loads configuration from defaults, the config file, environment
// variables and flags. Only flags that were explicitly set override other
// layers; flag names use kebab-case and map to snake_case keys.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	return LoadFrom(cfgFile, ".", flags)
}

// LoadFrom is Load with the directory searched for sieve.yaml.
func LoadFrom(cfgFile, dir string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"database": DefaultDatabase,
		"queries":  DefaultQueries,
		"policy":   DefaultPolicy,
		"format":   DefaultFormat,
		"verbose":  false,
		"listen":   DefaultListen,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile, dir)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment variables (SIEVE_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if _, err := mapping.ParsePolicy(c.Policy); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid config: format %q must be text or json", c.Format)
	}
	return nil
}
