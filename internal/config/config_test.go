package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/usagebar/usagebar/internal/core"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.PreferredSource != "claude-code" {
		t.Errorf("default source = %s, want claude-code", cfg.PreferredSource)
	}
	if cfg.RefreshIntervalSeconds != 60 {
		t.Errorf("default refresh = %d, want 60", cfg.RefreshIntervalSeconds)
	}
	if cfg.Widget.Format != "waybar" {
		t.Errorf("default widget format = %s, want waybar", cfg.Widget.Format)
	}
}

func TestLoadFrom_MissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RefreshIntervalSeconds != 60 {
		t.Error("should return defaults for missing file")
	}
}

func TestLoadFrom_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
  "preferred_source": "manual",
  "refresh_interval_seconds": 120,
  "widget": {"format": "plain"}
}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}

	if cfg.PreferredSource != "manual" {
		t.Errorf("source = %s, want manual", cfg.PreferredSource)
	}
	if cfg.RefreshIntervalSeconds != 120 {
		t.Errorf("refresh = %d, want 120", cfg.RefreshIntervalSeconds)
	}
	if cfg.Widget.Format != "plain" {
		t.Errorf("widget format = %s, want plain", cfg.Widget.Format)
	}
}

func TestLoadFrom_ClampsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	content := `{
  "preferred_source": "browser",
  "refresh_interval_seconds": -5,
  "widget": {"format": "conky"}
}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}

	if cfg.PreferredSource != "claude-code" {
		t.Errorf("source = %s, want claude-code fallback", cfg.PreferredSource)
	}
	if cfg.RefreshIntervalSeconds != 60 {
		t.Errorf("refresh = %d, want 60 fallback", cfg.RefreshIntervalSeconds)
	}
	if cfg.Widget.Format != "waybar" {
		t.Errorf("widget format = %s, want waybar fallback", cfg.Widget.Format)
	}
}

func TestLoadFrom_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err == nil {
		t.Fatal("LoadFrom() error = nil, want parse error")
	}
	if cfg.PreferredSource != "claude-code" {
		t.Error("malformed file should fall back to defaults")
	}
}

func TestSavePreferredSourceTo_PreservesOtherFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := DefaultConfig()
	cfg.RefreshIntervalSeconds = 120
	cfg.Widget.Format = "plain"
	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo() error: %v", err)
	}

	if err := SavePreferredSourceTo(path, core.SourceManual); err != nil {
		t.Fatalf("SavePreferredSourceTo() error: %v", err)
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if got.PreferredSource != "manual" {
		t.Errorf("source = %s, want manual", got.PreferredSource)
	}
	if got.RefreshIntervalSeconds != 120 {
		t.Errorf("refresh = %d, want 120 preserved", got.RefreshIntervalSeconds)
	}
	if got.Widget.Format != "plain" {
		t.Errorf("widget format = %s, want plain preserved", got.Widget.Format)
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	store := NewFileStore(path)

	if err := store.SetPreferredSource(core.SourceManual); err != nil {
		t.Fatalf("SetPreferredSource() error: %v", err)
	}
	got, err := store.PreferredSource()
	if err != nil {
		t.Fatalf("PreferredSource() error: %v", err)
	}
	if got != core.SourceManual {
		t.Errorf("PreferredSource() = %s, want manual", got)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	changes := make(chan Config, 4)
	stop, err := Watch(path, func(cfg Config) { changes <- cfg })
	if err != nil {
		t.Fatalf("Watch() error: %v", err)
	}
	defer stop()

	cfg := DefaultConfig()
	cfg.PreferredSource = "manual"
	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("SaveTo() error: %v", err)
	}

	select {
	case got := <-changes:
		if got.PreferredSource != "manual" {
			t.Errorf("reloaded source = %s, want manual", got.PreferredSource)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed after writing the config")
	}
}
