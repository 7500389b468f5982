package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[paths]
target_dir = "`+dir+`"
log_dir = "`+filepath.Join(dir, "logs")+`"

[detect]
poll_interval = 2
media_prefixes = ["/media", "/mnt"]
device_patterns = ["sd[a-z]*"]

[notifications]
ntfy_topic = "https://ntfy.sh/test-topic"
request_timeout = 5

[logging]
format = "json"
level = "debug"
`)

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if resolved != path {
		t.Fatalf("resolved path: got %q, want %q", resolved, path)
	}
	if cfg.Paths.TargetDir != dir {
		t.Fatalf("target_dir: got %q", cfg.Paths.TargetDir)
	}
	if cfg.Detect.PollInterval != 2 {
		t.Fatalf("poll_interval: got %d", cfg.Detect.PollInterval)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.sh/test-topic" {
		t.Fatalf("ntfy_topic: got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging: got %+v", cfg.Logging)
	}
}

func TestLoadRequiresTargetDir(t *testing.T) {
	t.Setenv("CARDBOX_TARGET_DIR", "")
	path := writeConfig(t, `
[detect]
poll_interval = 5
`)
	_, _, _, err := Load(path)
	if err == nil {
		t.Fatal("expected error when target_dir is missing")
	}
	if !strings.Contains(err.Error(), "target_dir") {
		t.Fatalf("error should mention target_dir: %v", err)
	}
}

func TestLoadTargetDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARDBOX_TARGET_DIR", dir)
	path := writeConfig(t, "")

	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Paths.TargetDir != dir {
		t.Fatalf("target_dir from env: got %q, want %q", cfg.Paths.TargetDir, dir)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[paths]
target_dir = "`+dir+`"
`)
	cfg, _, _, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Detect.PollInterval != 5 {
		t.Fatalf("default poll interval: got %d", cfg.Detect.PollInterval)
	}
	if len(cfg.Detect.MediaPrefixes) == 0 || len(cfg.Detect.DevicePatterns) == 0 {
		t.Fatalf("defaults missing: %+v", cfg.Detect)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadRejectsBadPattern(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[paths]
target_dir = "`+dir+`"

[detect]
device_patterns = ["sd[a-z"]
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed glob pattern")
	}
}

func TestLoadRejectsRelativePrefix(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[paths]
target_dir = "`+dir+`"

[detect]
media_prefixes = ["media"]
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected error for relative media prefix")
	}
}

func TestLoadRejectsUnknownLogFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
[paths]
target_dir = "`+dir+`"

[logging]
format = "xml"
`)
	if _, _, _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CARDBOX_TARGET_DIR", dir)

	cfg, _, exists, err := Load(filepath.Join(dir, "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("file should not exist")
	}
	if cfg.Detect.PollInterval != 5 {
		t.Fatalf("defaults not applied: %+v", cfg.Detect)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.LogDir = "/var/lib/cardbox/logs"
	if got := cfg.SocketPath(); got != "/var/lib/cardbox/logs/cardbox.sock" {
		t.Fatalf("socket path: %q", got)
	}
	if got := cfg.LockPath(); got != "/var/lib/cardbox/logs/cardboxd.lock" {
		t.Fatalf("lock path: %q", got)
	}
	if got := cfg.LogPath(); got != "/var/lib/cardbox/logs/cardbox.log" {
		t.Fatalf("log path: %q", got)
	}
	if got := cfg.HistoryDBPath(); got != "/var/lib/cardbox/logs/history.db" {
		t.Fatalf("history db path: %q", got)
	}
}

func TestEnsureDirectoriesDoesNotCreateTarget(t *testing.T) {
	base := t.TempDir()
	cfg := Default()
	cfg.Paths.TargetDir = filepath.Join(base, "never-created")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(cfg.Paths.LogDir); err != nil {
		t.Fatalf("log dir should exist: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.TargetDir); !os.IsNotExist(err) {
		t.Fatal("target dir must never be created by the engine")
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := CreateSample(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "target_dir") {
		t.Fatal("sample should mention target_dir")
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/cardbox")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "cardbox") {
		t.Fatalf("expand: got %q", got)
	}
}
