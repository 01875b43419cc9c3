package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mschirtzinger/famtasks/internal/engine"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if cfg.Sync.Interval != 30*time.Second {
		t.Errorf("Sync.Interval = %v, want 30s", cfg.Sync.Interval)
	}
	if cfg.ConflictPolicy() != engine.LocalWins {
		t.Errorf("ConflictPolicy() = %v, want local_wins", cfg.ConflictPolicy())
	}
	if p := cfg.RetryPolicy(); p.MaxAttempts != 3 || p.BaseDelay != time.Second || p.MaxDelay != 30*time.Second {
		t.Errorf("RetryPolicy() = %+v", p)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown policy", func(c *Config) { c.Sync.ConflictPolicy = "newest" }},
		{"zero interval", func(c *Config) { c.Sync.Interval = 0 }},
		{"negative base delay", func(c *Config) { c.Sync.BaseDelay = -time.Second }},
		{"max below base", func(c *Config) { c.Sync.MaxDelay = 500 * time.Millisecond }},
		{"no retries", func(c *Config) { c.Sync.MaxRetries = 0 }},
		{"probability above one", func(c *Config) { c.Sync.CompactionProbability = 1.5 }},
		{"negative retention", func(c *Config) { c.Sync.RetentionDays = -1 }},
		{"zero probe interval", func(c *Config) { c.Connectivity.ProbeInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadFilesLayering(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.yaml", `
user:
  id: u1
  name: Ana
sync:
  interval: 10s
  conflict_policy: remote_wins
`)
	project := writeFile(t, dir, "project.yaml", `
user:
  family_id: f1
sync:
  interval: 15s
dashboard:
  enabled: true
`)

	cfg, err := LoadFiles(global, project, filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadFiles() failed: %v", err)
	}

	want := UserConfig{ID: "u1", Name: "Ana", FamilyID: "f1"}
	if diff := cmp.Diff(want, cfg.User); diff != "" {
		t.Errorf("User mismatch (-want +got):\n%s", diff)
	}
	if cfg.Sync.Interval != 15*time.Second {
		t.Errorf("Sync.Interval = %v, want 15s", cfg.Sync.Interval)
	}
	if cfg.ConflictPolicy() != engine.RemoteWins {
		t.Errorf("ConflictPolicy() = %v, want remote_wins", cfg.ConflictPolicy())
	}
	if !cfg.Dashboard.Enabled || cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard = %+v", cfg.Dashboard)
	}
	if cfg.Sync.MaxRetries != 3 {
		t.Errorf("unset key lost its default: MaxRetries = %d", cfg.Sync.MaxRetries)
	}
}

func TestLoadFilesEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "sync:\n  conflict_policy: remote_wins\n")

	t.Setenv("FAMSYNC_SYNC_CONFLICT_POLICY", "merge")
	t.Setenv("FAMSYNC_SYNC_MAX_RETRIES", "5")
	t.Setenv("FAMSYNC_USER_ID", "u9")

	cfg, err := LoadFiles(path)
	if err != nil {
		t.Fatalf("LoadFiles() failed: %v", err)
	}
	if cfg.ConflictPolicy() != engine.Merge {
		t.Errorf("ConflictPolicy() = %v, want merge", cfg.ConflictPolicy())
	}
	if cfg.Sync.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.Sync.MaxRetries)
	}
	if cfg.User.ID != "u9" {
		t.Errorf("User.ID = %q, want u9", cfg.User.ID)
	}
}

func TestLoadFilesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "sync:\n  conflict_policy: newest\n")
	if _, err := LoadFiles(path); err == nil {
		t.Error("expected validation error")
	}

	broken := writeFile(t, dir, "broken.yaml", "sync: [unterminated\n")
	if _, err := LoadFiles(broken); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadExplicitMustExist(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if !strings.Contains(string(content), "interval: 30s") {
		t.Errorf("durations not written in human form:\n%s", content)
	}

	cfg, err := LoadFiles(path)
	if err != nil {
		t.Fatalf("LoadFiles() failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	if err := WriteDefault(path); err == nil {
		t.Error("expected error when config already exists")
	}
}

func TestRequireUser(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.RequireUser(); err == nil {
		t.Error("expected error without user id")
	}
	cfg.User.ID = "u1"
	if err := cfg.RequireUser(); err != nil {
		t.Errorf("RequireUser() failed: %v", err)
	}
}

func TestStorePathDefault(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.StorePath(); filepath.Base(got) != "cache.db" || filepath.Base(filepath.Dir(got)) != DirName {
		t.Errorf("StorePath() = %q", got)
	}
	cfg.Store.Path = "/tmp/x.db"
	if got := cfg.StorePath(); got != "/tmp/x.db" {
		t.Errorf("StorePath() = %q, want /tmp/x.db", got)
	}
}

func TestLogWriter(t *testing.T) {
	w, c := LogConfig{}.Writer()
	if w != os.Stderr {
		t.Error("expected stderr without log.file")
	}
	_ = c.Close()

	path := filepath.Join(t.TempDir(), "famsync.log")
	w, c = LogConfig{File: path, MaxSizeMB: 1}.Writer()
	NewLoggers(w).For("engine").Print("hello")
	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if !strings.Contains(string(content), "[engine] ") || !strings.Contains(string(content), "hello") {
		t.Errorf("log content = %q", content)
	}
}
