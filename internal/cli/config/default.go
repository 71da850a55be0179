package config

import (
	"time"

	"github.com/yndnr/docguard/internal/storage"
	"github.com/yndnr/docguard/internal/storage/backup"
	"github.com/yndnr/docguard/internal/storage/queue"
)

// Default configuration values.
const (
	DefaultBackend = storage.BackendFS
	DefaultDataDir = "./data"

	DefaultBadgerGCInterval  = 10 * time.Minute
	DefaultBadgerGCThreshold = 0.5

	DefaultMonitorInterval = 30 * time.Second
	DefaultMetricsAddr     = "127.0.0.1:9464"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Storage: StorageSection{
			Backend:        DefaultBackend,
			DataDir:        DefaultDataDir,
			DebounceWindow: queue.DefaultWindow,
		},
		Backup: BackupSection{
			MaxCount:      backup.DefaultMaxCount,
			RetentionDays: backup.DefaultRetentionDays,
		},
		Badger: BadgerSection{
			GCInterval:  DefaultBadgerGCInterval,
			GCThreshold: DefaultBadgerGCThreshold,
			SyncWrites:  true,
		},
		Monitor: MonitorSection{
			Interval:    DefaultMonitorInterval,
			MetricsAddr: DefaultMetricsAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
