package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/usagebar/usagebar/internal/core"
)

type WidgetConfig struct {
	Format string `json:"format"`
}

type Config struct {
	PreferredSource        string       `json:"preferred_source"`
	RefreshIntervalSeconds int          `json:"refresh_interval_seconds"`
	Widget                 WidgetConfig `json:"widget"`
}

func DefaultConfig() Config {
	return Config{
		PreferredSource:        string(core.SourceClaudeCode),
		RefreshIntervalSeconds: 60,
		Widget:                 WidgetConfig{Format: "waybar"},
	}
}

func ConfigDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "usagebar")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "usagebar")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func Load() (Config, error) {
	return LoadFrom(ConfigPath())
}

func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parsing config %s: %w", path, err)
	}

	if _, err := core.ParseTokenSource(cfg.PreferredSource); err != nil {
		cfg.PreferredSource = DefaultConfig().PreferredSource
	}
	if cfg.RefreshIntervalSeconds <= 0 {
		cfg.RefreshIntervalSeconds = 60
	}
	switch cfg.Widget.Format {
	case "waybar", "plain", "json":
	default:
		cfg.Widget.Format = DefaultConfig().Widget.Format
	}

	return cfg, nil
}

// saveMu guards read-modify-write cycles on the config file.
var saveMu sync.Mutex

func Save(cfg Config) error {
	return SaveTo(ConfigPath(), cfg)
}

func SaveTo(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// SavePreferredSource persists the token source into the config file
// (read-modify-write).
func SavePreferredSource(source core.TokenSource) error {
	return SavePreferredSourceTo(ConfigPath(), source)
}

func SavePreferredSourceTo(path string, source core.TokenSource) error {
	saveMu.Lock()
	defer saveMu.Unlock()

	cfg, err := LoadFrom(path)
	if err != nil {
		cfg = DefaultConfig()
	}
	cfg.PreferredSource = string(source)
	return SaveTo(path, cfg)
}

// FileStore exposes the config file as the service's preference store.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = ConfigPath()
	}
	return &FileStore{path: path}
}

func (f *FileStore) PreferredSource() (core.TokenSource, error) {
	cfg, err := LoadFrom(f.path)
	if err != nil {
		return "", err
	}
	return core.ParseTokenSource(cfg.PreferredSource)
}

func (f *FileStore) SetPreferredSource(source core.TokenSource) error {
	return SavePreferredSourceTo(f.path, source)
}
