package confloader

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type testConfig struct {
	Storage struct {
		Backend        string        `koanf:"backend"`
		DataDir        string        `koanf:"data_dir"`
		DebounceWindow time.Duration `koanf:"debounce_window"`
	} `koanf:"storage"`
	Backup struct {
		MaxCount      int  `koanf:"max_count"`
		SeparatePools bool `koanf:"separate_pools"`
	} `koanf:"backup"`
	Debug bool `koanf:"debug"`
}

func unmarshal(t *testing.T, l *Loader) testConfig {
	t.Helper()
	var cfg testConfig
	if err := l.Unmarshal(&cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docguard.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestNewLoader(t *testing.T) {
	l := NewLoader()
	if l == nil {
		t.Fatal("NewLoader() returned nil")
	}
	if l.envPrefix != DefaultEnvPrefix {
		t.Errorf("envPrefix = %q, want %q", l.envPrefix, DefaultEnvPrefix)
	}
}

func TestNewLoader_WithOptions(t *testing.T) {
	l := NewLoader(
		WithConfigFile("/path/to/config.yaml"),
		WithOverrides(map[string]any{"storage.backend": "fs"}),
	)

	if l.filePath != "/path/to/config.yaml" {
		t.Errorf("filePath = %q, want %q", l.filePath, "/path/to/config.yaml")
	}
	if len(l.overrides) != 1 {
		t.Errorf("overrides = %v, want one entry", l.overrides)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"DOCGUARD_STORAGE_DATA_DIR", "storage.data_dir"},
		{"DOCGUARD_BACKUP_MAX_COUNT", "backup.max_count"},
		{"DOCGUARD_LOG_LEVEL", "log.level"},
		{"DOCGUARD_DEBUG", "debug"},
	}
	for _, tt := range tests {
		if got := EnvKey(DefaultEnvPrefix, tt.name); got != tt.want {
			t.Errorf("EnvKey(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: badger
  data_dir: /srv/docguard
backup:
  separate_pools: true
`)

	l := NewLoader()
	if err := l.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	cfg := unmarshal(t, l)
	if cfg.Storage.Backend != "badger" {
		t.Errorf("storage.backend = %q, want badger", cfg.Storage.Backend)
	}
	if !cfg.Backup.SeparatePools {
		t.Error("backup.separate_pools should be true")
	}
}

func TestLoader_LoadFile_NotFound(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFile() should return error for nonexistent file")
	}
}

func TestLoader_LoadFile_Empty(t *testing.T) {
	l := NewLoader()
	if err := l.LoadFile(""); err != nil {
		t.Errorf("LoadFile(\"\") should not error, got: %v", err)
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	t.Setenv("DOCGUARD_STORAGE_DATA_DIR", "/tmp/docs")
	t.Setenv("DOCGUARD_BACKUP_MAX_COUNT", "4")

	l := NewLoader()
	if err := l.LoadEnv(); err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}

	cfg := unmarshal(t, l)
	if cfg.Storage.DataDir != "/tmp/docs" {
		t.Errorf("storage.data_dir = %q, want /tmp/docs", cfg.Storage.DataDir)
	}
	if cfg.Backup.MaxCount != 4 {
		t.Errorf("backup.max_count = %d, want 4", cfg.Backup.MaxCount)
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l := NewLoader()

	if err := l.LoadMap(map[string]any{
		"storage.backend": "sqlite",
		"debug":           true,
	}); err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}

	cfg := unmarshal(t, l)
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("storage.backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
}

func TestLoader_Load_Priority(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: badger
  data_dir: /from/file
backup:
  max_count: 3
`)
	t.Setenv("DOCGUARD_STORAGE_DATA_DIR", "/from/env")
	t.Setenv("DOCGUARD_STORAGE_BACKEND", "sqlite")

	l := NewLoader(
		WithConfigFile(path),
		WithOverrides(map[string]any{"storage.backend": "fs"}),
	)

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.DataDir != "/from/env" {
		t.Errorf("DataDir = %q, want env to override file", cfg.Storage.DataDir)
	}
	if cfg.Storage.Backend != "fs" {
		t.Errorf("Backend = %q, want override to win", cfg.Storage.Backend)
	}
	if cfg.Backup.MaxCount != 3 {
		t.Errorf("MaxCount = %d, want 3 from file", cfg.Backup.MaxCount)
	}
}

func TestLoader_Load_KeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  debounce_window: 250ms
`)

	var cfg testConfig
	cfg.Storage.Backend = "fs"
	cfg.Backup.MaxCount = 10

	if err := NewLoader(WithConfigFile(path)).Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.DebounceWindow != 250*time.Millisecond {
		t.Errorf("DebounceWindow = %v, want 250ms", cfg.Storage.DebounceWindow)
	}
	if cfg.Storage.Backend != "fs" || cfg.Backup.MaxCount != 10 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}
