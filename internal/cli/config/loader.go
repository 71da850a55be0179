package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/yndnr/docguard/internal/infra/confloader"
	"github.com/yndnr/docguard/internal/storage"
	"github.com/yndnr/docguard/internal/storage/backend/badgerkv"
	"github.com/yndnr/docguard/internal/storage/backup"
	"github.com/yndnr/docguard/internal/telemetry/logger"
)

// Load builds the configuration from defaults, the optional YAML file at
// path, DOCGUARD_* environment variables and overrides, then verifies it.
func Load(path string, overrides map[string]any) (*Config, error) {
	cfg := Default()
	l := confloader.NewLoader(
		confloader.WithConfigFile(path),
		confloader.WithOverrides(overrides),
	)
	if err := l.Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// RetentionPolicy converts the backup section to a retention policy.
func (c *Config) RetentionPolicy() backup.Policy {
	return backup.Policy{
		MaxCount:      c.Backup.MaxCount,
		Horizon:       time.Duration(c.Backup.RetentionDays) * 24 * time.Hour,
		SeparatePools: c.Backup.SeparatePools,
	}
}

// BackendConfig returns the settings for storage.OpenBackend.
func (c *Config) BackendConfig(log *slog.Logger) storage.BackendConfig {
	bc := badgerkv.DefaultConfig("")
	bc.GCInterval = c.Badger.GCInterval
	bc.GCThreshold = c.Badger.GCThreshold
	bc.SyncWrites = c.Badger.SyncWrites
	return storage.BackendConfig{
		Kind:    c.Storage.Backend,
		DataDir: c.Storage.DataDir,
		Badger:  bc,
		Logger:  log,
	}
}

// LoggerConfig returns the settings for logger.New.
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.DefaultConfig()
	lc.Level = c.Log.Level
	lc.Format = c.Log.Format
	return lc
}
