// Package config loads famsync configuration.
//
// Files are layered: the built-in defaults, then the global file
// (~/.famsync/config.yaml), then the project file (./.famsync/config.yaml).
// Environment variables prefixed FAMSYNC_ override any file value, with
// dots replaced by underscores (FAMSYNC_SYNC_CONFLICT_POLICY).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mschirtzinger/famtasks/internal/engine"
	"github.com/mschirtzinger/famtasks/internal/retry"
	"github.com/mschirtzinger/famtasks/internal/store"
)

// DirName is the name of the global and project configuration directory.
const DirName = ".famsync"

// Config represents the full famsync configuration
type Config struct {
	User         UserConfig         `yaml:"user" mapstructure:"user"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Remote       RemoteConfig       `yaml:"remote" mapstructure:"remote"`
	Sync         SyncConfig         `yaml:"sync" mapstructure:"sync"`
	Connectivity ConnectivityConfig `yaml:"connectivity" mapstructure:"connectivity"`
	Dashboard    DashboardConfig    `yaml:"dashboard" mapstructure:"dashboard"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// UserConfig identifies the signed-in user
type UserConfig struct {
	ID       string `yaml:"id" mapstructure:"id"`
	Name     string `yaml:"name" mapstructure:"name"`
	FamilyID string `yaml:"family_id" mapstructure:"family_id"`
}

// StoreConfig configures the local cache
type StoreConfig struct {
	// Path of the sqlite cache file. Empty means ~/.famsync/cache.db.
	Path     string        `yaml:"path" mapstructure:"path"`
	Key      string        `yaml:"key" mapstructure:"key"`
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
}

// RemoteConfig locates the remote document server
type RemoteConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// SyncConfig configures the sync engine
type SyncConfig struct {
	Interval              time.Duration `yaml:"interval" mapstructure:"interval"`
	FullSyncInterval      time.Duration `yaml:"full_sync_interval" mapstructure:"full_sync_interval"`
	ConflictPolicy        string        `yaml:"conflict_policy" mapstructure:"conflict_policy"`
	MaxRetries            int           `yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelay             time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay              time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	RetentionDays         int           `yaml:"retention_days" mapstructure:"retention_days"`
	HistoryRetentionDays  int           `yaml:"history_retention_days" mapstructure:"history_retention_days"`
	CompactionProbability float64       `yaml:"compaction_probability" mapstructure:"compaction_probability"`
	FailedOpsLimit        int           `yaml:"failed_ops_limit" mapstructure:"failed_ops_limit"`
}

// ConnectivityConfig configures how reachability is detected
type ConnectivityConfig struct {
	// ProbeAddr is a host:port dialed to detect reachability. Empty means
	// the host of remote.url.
	ProbeAddr     string        `yaml:"probe_addr" mapstructure:"probe_addr"`
	ProbeInterval time.Duration `yaml:"probe_interval" mapstructure:"probe_interval"`

	// MarkerFile forces the offline state while it exists.
	MarkerFile string `yaml:"marker_file" mapstructure:"marker_file"`
}

// DashboardConfig configures the status dashboard
type DashboardConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Port    int  `yaml:"port" mapstructure:"port"`
}

// ServerConfig configures `famsync serve`
type ServerConfig struct {
	Port   int    `yaml:"port" mapstructure:"port"`
	DBPath string `yaml:"db_path" mapstructure:"db_path"`
}

// LogConfig configures log output. Without File logs go to stderr.
type LogConfig struct {
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Key:      store.DefaultKey,
			Debounce: 500 * time.Millisecond,
		},
		Remote: RemoteConfig{
			URL: "http://localhost:8090",
		},
		Sync: SyncConfig{
			Interval:              30 * time.Second,
			FullSyncInterval:      5 * time.Minute,
			ConflictPolicy:        string(engine.LocalWins),
			MaxRetries:            3,
			BaseDelay:             time.Second,
			MaxDelay:              30 * time.Second,
			RetentionDays:         7,
			HistoryRetentionDays:  30,
			CompactionProbability: 0.5,
			FailedOpsLimit:        50,
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: 5 * time.Second,
		},
		Dashboard: DashboardConfig{
			Port: 8080,
		},
		Server: ServerConfig{
			Port:   8090,
			DBPath: "famsync-server.db",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	s := c.Sync
	if _, err := engine.ParseConflictPolicy(s.ConflictPolicy); err != nil {
		return fmt.Errorf("invalid sync.conflict_policy: %w", err)
	}
	positive := []struct {
		key string
		v   time.Duration
	}{
		{"sync.interval", s.Interval},
		{"sync.full_sync_interval", s.FullSyncInterval},
		{"sync.base_delay", s.BaseDelay},
		{"sync.max_delay", s.MaxDelay},
		{"connectivity.probe_interval", c.Connectivity.ProbeInterval},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("invalid %s: must be positive, got %v", p.key, p.v)
		}
	}
	if s.MaxDelay < s.BaseDelay {
		return fmt.Errorf("invalid sync.max_delay: %v is below sync.base_delay %v", s.MaxDelay, s.BaseDelay)
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("invalid sync.max_retries: must be at least 1, got %d", s.MaxRetries)
	}
	if s.CompactionProbability < 0 || s.CompactionProbability > 1 {
		return fmt.Errorf("invalid sync.compaction_probability: %v is outside [0, 1]", s.CompactionProbability)
	}
	if s.RetentionDays < 0 || s.HistoryRetentionDays < 0 || s.FailedOpsLimit < 0 {
		return fmt.Errorf("invalid sync retention settings: values must not be negative")
	}
	if c.Store.Debounce < 0 {
		return fmt.Errorf("invalid store.debounce: must not be negative, got %v", c.Store.Debounce)
	}
	return nil
}

// RequireUser reports an error when no user is configured.
func (c *Config) RequireUser() error {
	if c.User.ID == "" {
		return fmt.Errorf("no user configured: set user.id in %s or FAMSYNC_USER_ID", GlobalConfigPath())
	}
	return nil
}

// ConflictPolicy returns the parsed sync.conflict_policy.
func (c *Config) ConflictPolicy() engine.ConflictPolicy {
	p, err := engine.ParseConflictPolicy(c.Sync.ConflictPolicy)
	if err != nil {
		return engine.LocalWins
	}
	return p
}

// RetryPolicy returns the retry policy of the sync settings.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Sync.MaxRetries,
		BaseDelay:   c.Sync.BaseDelay,
		MaxDelay:    c.Sync.MaxDelay,
	}
}

// StorePath returns the cache file path, defaulting to the global directory.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(GlobalDir(), "cache.db")
}

// GlobalDir returns the path to the global famsync directory
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DirName
	}
	return filepath.Join(home, DirName)
}

// GlobalConfigPath returns the path to the global config file
func GlobalConfigPath() string {
	return filepath.Join(GlobalDir(), "config.yaml")
}

// ProjectConfigPath returns the path to the project config file
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Join(DirName, "config.yaml")
	}
	return filepath.Join(cwd, DirName, "config.yaml")
}
