package logger

import (
	"path/filepath"
	"testing"
)

func TestWithComponent(t *testing.T) {
	entry := WithComponent("monitor")
	if v, ok := entry.Data["component"]; !ok || v != "monitor" {
		t.Fatalf("component field missing: %v", entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	if err := Configure("loud", "text", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	if err := Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gridwatch.log")
	if err := Configure("debug", "json", path, 7); err != nil {
		t.Fatalf("configure file output: %v", err)
	}
	// Restore stdout for other tests.
	if err := Configure("info", "text", "stdout", 0); err != nil {
		t.Fatalf("restore: %v", err)
	}
}
