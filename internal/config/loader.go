package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FAMSYNC"

// Load merges the defaults, the global file, the project file and the
// environment. When explicit is non-empty it replaces both files and must
// exist. The result is validated.
func Load(explicit string) (*Config, error) {
	paths := []string{GlobalConfigPath(), ProjectConfigPath()}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", explicit, err)
		}
		paths = []string{explicit}
	}
	return LoadFiles(paths...)
}

// LoadFiles merges the defaults with each existing file in order, later
// files winning, then applies environment overrides. Missing files are
// skipped.
func LoadFiles(paths ...string) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance seeded with DefaultConfig so that every
// key is known to the environment lookup.
func newViper() (*viper.Viper, error) {
	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

// WriteDefault writes the default configuration to path, creating its
// directory. An existing file is left untouched and reported as an error.
func WriteDefault(path string) error {
	return Write(path, DefaultConfig(), false)
}

// Write marshals cfg to path. Unless overwrite is set an existing file is
// an error.
func Write(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", path, err)
	}
	return nil
}

// Marshal renders cfg as YAML with a header comment.
func Marshal(cfg *Config) ([]byte, error) {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("# famsync configuration\n")
	buf.WriteString("# Environment variables override these values, e.g. FAMSYNC_SYNC_INTERVAL=10s\n")
	buf.Write(body)
	return buf.Bytes(), nil
}
