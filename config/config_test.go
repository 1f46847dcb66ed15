package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("default driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Monitor.ScanIntervalSeconds != 3600 {
		t.Errorf("default interval = %d, want 3600", cfg.Monitor.ScanIntervalSeconds)
	}
	if cfg.Monitor.DealThreshold != 15.0 {
		t.Errorf("default threshold = %v, want 15.0", cfg.Monitor.DealThreshold)
	}
	if cfg.Email.SMTPPort != 587 {
		t.Errorf("default smtp port = %d, want 587", cfg.Email.SMTPPort)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeTempConfig(t, `
database:
  driver: sqlite
  path: /tmp/test.db
monitor:
  scan_interval_seconds: 600
  regions: "EU,USA"
  deal_threshold: 20.5
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("path = %q", cfg.Database.Path)
	}
	if cfg.Monitor.ScanIntervalSeconds != 600 {
		t.Errorf("interval = %d, want 600", cfg.Monitor.ScanIntervalSeconds)
	}
	if cfg.Monitor.Regions != "EU,USA" {
		t.Errorf("regions = %q", cfg.Monitor.Regions)
	}
	if cfg.Monitor.DealThreshold != 20.5 {
		t.Errorf("threshold = %v", cfg.Monitor.DealThreshold)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log config = %+v", cfg.Log)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Scraper.BaseURL == "" {
		t.Errorf("expected default base URL")
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "monitor:\n  scan_interval_seconds: 600\n")

	t.Setenv("SCAN_INTERVAL_SECONDS", "120")
	t.Setenv("SCAN_REGIONS", "Canada")
	t.Setenv("TELEGRAM_BOT_TOKEN", "test-token")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Monitor.ScanIntervalSeconds != 120 {
		t.Errorf("env override lost: interval = %d", cfg.Monitor.ScanIntervalSeconds)
	}
	if cfg.Monitor.Regions != "Canada" {
		t.Errorf("regions = %q", cfg.Monitor.Regions)
	}
	if cfg.Telegram.BotToken != "test-token" || cfg.Telegram.ChatID != 42 {
		t.Errorf("telegram config = %+v", cfg.Telegram)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	// Ensure the ambient environment does not mask the file value.
	t.Setenv("DATABASE_DRIVER", "")

	path := writeTempConfig(t, "database:\n  driver: oracle\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("DATABASE_URL", "")

	path := writeTempConfig(t, "database:\n  driver: postgres\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for postgres without URL")
	}
}
