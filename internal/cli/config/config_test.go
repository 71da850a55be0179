package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/docguard/internal/storage/backup"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Storage.Backend != DefaultBackend {
		t.Errorf("Backend = %q, want %q", cfg.Storage.Backend, DefaultBackend)
	}
	if cfg.Storage.DebounceWindow != 500*time.Millisecond {
		t.Errorf("DebounceWindow = %v, want 500ms", cfg.Storage.DebounceWindow)
	}
	if cfg.Backup.MaxCount != 10 || cfg.Backup.RetentionDays != 30 {
		t.Errorf("Backup = %+v, want 10 backups / 30 days", cfg.Backup)
	}
	if cfg.Backup.SeparatePools {
		t.Error("backup pools should be shared by default")
	}
	if !cfg.Badger.SyncWrites {
		t.Error("badger sync writes should be on by default")
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify(Default()) error = %v", err)
	}
}

func TestRetentionPolicy(t *testing.T) {
	cfg := Default()
	if got := cfg.RetentionPolicy(); got != backup.DefaultPolicy() {
		t.Errorf("RetentionPolicy() = %+v, want default policy", got)
	}

	cfg.Backup.SeparatePools = true
	cfg.Backup.RetentionDays = 7
	got := cfg.RetentionPolicy()
	if !got.SeparatePools || got.Horizon != 7*24*time.Hour {
		t.Errorf("RetentionPolicy() = %+v", got)
	}
}

func TestBackendConfig(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "badger"
	cfg.Badger.GCInterval = time.Minute

	bc := cfg.BackendConfig(nil)
	if bc.Kind != "badger" || bc.DataDir != DefaultDataDir {
		t.Errorf("BackendConfig() = %+v", bc)
	}
	if bc.Badger.GCInterval != time.Minute || !bc.Badger.SyncWrites {
		t.Errorf("Badger = %+v", bc.Badger)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "storage.backend"},
		{"memory backend", func(c *Config) { c.Storage.Backend = "memory" }, "storage.backend"},
		{"empty data dir", func(c *Config) { c.Storage.DataDir = "" }, "storage.data_dir"},
		{"zero window", func(c *Config) { c.Storage.DebounceWindow = 0 }, "debounce_window"},
		{"zero max count", func(c *Config) { c.Backup.MaxCount = 0 }, "max_count"},
		{"negative days", func(c *Config) { c.Backup.RetentionDays = -1 }, "retention_days"},
		{"bad key hex", func(c *Config) { c.Storage.EncryptionKey = "zz" }, "encryption_key"},
		{"short key", func(c *Config) { c.Storage.EncryptionKey = "0011" }, "encryption_key"},
		{"unknown cipher", func(c *Config) { c.Storage.EncryptionKey = testKey; c.Storage.Cipher = "rot13" }, "storage.cipher"},
		{"cipher without key", func(c *Config) { c.Storage.Cipher = "aes-gcm" }, "requires"},
		{"gc threshold", func(c *Config) { c.Badger.GCThreshold = 1 }, "gc_threshold"},
		{"gc interval", func(c *Config) { c.Badger.GCInterval = 0 }, "gc_interval"},
		{"monitor interval", func(c *Config) { c.Monitor.Interval = 0 }, "monitor.interval"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestVerify_WithKey(t *testing.T) {
	cfg := Default()
	cfg.Storage.EncryptionKey = testKey
	cfg.Storage.Cipher = "chacha20-poly1305"

	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	sealer, err := cfg.Storage.Sealer()
	if err != nil || sealer == nil {
		t.Fatalf("Sealer() = %v, %v", sealer, err)
	}
	if sealer.Type() != "chacha20-poly1305" {
		t.Errorf("Type() = %q", sealer.Type())
	}
}

func TestSealer_NoKey(t *testing.T) {
	sealer, err := Default().Storage.Sealer()
	if err != nil || sealer != nil {
		t.Errorf("Sealer() = %v, %v; want nil, nil", sealer, err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := Default()
	cfg.Storage.EncryptionKey = testKey

	sanitized := Sanitize(cfg)

	if cfg.Storage.EncryptionKey != testKey {
		t.Error("Original config should not be modified")
	}
	if sanitized.Storage.EncryptionKey == testKey {
		t.Error("Sanitized config should mask the encryption key")
	}
	if want := testKey[:3] + "..." + testKey[len(testKey)-3:]; sanitized.Storage.EncryptionKey != want {
		t.Errorf("masked key = %q, want %q", sanitized.Storage.EncryptionKey, want)
	}
}

func TestSanitize_EmptyKey(t *testing.T) {
	sanitized := Sanitize(Default())
	if sanitized.Storage.EncryptionKey != "" {
		t.Errorf("empty key should stay empty, got %q", sanitized.Storage.EncryptionKey)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docguard.yaml")
	content := `
storage:
  backend: sqlite
  data_dir: /var/lib/docguard
  debounce_window: 1s
backup:
  max_count: 5
log:
  format: text
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOCGUARD_BACKUP_RETENTION_DAYS", "7")

	cfg, err := Load(path, map[string]any{"log.level": "debug"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Backend != "sqlite" || cfg.Storage.DebounceWindow != time.Second {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Backup.MaxCount != 5 || cfg.Backup.RetentionDays != 7 {
		t.Errorf("Backup = %+v", cfg.Backup)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Monitor.Interval != DefaultMonitorInterval {
		t.Errorf("Monitor.Interval = %v, want default", cfg.Monitor.Interval)
	}
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load("", map[string]any{"storage.backend": "floppy"})
	if err == nil {
		t.Fatal("Load() should reject an unknown backend")
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != DefaultBackend {
		t.Errorf("Backend = %q, want default", cfg.Storage.Backend)
	}
}
