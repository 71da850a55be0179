package config

import "time"

// Config is the root configuration for docguard.
type Config struct {
	Storage StorageSection `koanf:"storage"`
	Backup  BackupSection  `koanf:"backup"`
	Badger  BadgerSection  `koanf:"badger"`
	Monitor MonitorSection `koanf:"monitor"`
	Log     LogSection     `koanf:"log"`
}

// StorageSection configures the document store.
type StorageSection struct {
	// Backend is fs, badger or sqlite.
	Backend string `koanf:"backend"`

	DataDir string `koanf:"data_dir"`

	// DebounceWindow is the save quiescence period.
	DebounceWindow time.Duration `koanf:"debounce_window"`

	// EncryptionKey is an optional hex key (16, 24 or 32 bytes) used to
	// seal stored blobs.
	EncryptionKey string `koanf:"encryption_key"`

	// Cipher is aes-gcm, chacha20-poly1305 or empty for automatic.
	Cipher string `koanf:"cipher"`

	// Compression is reserved; stored blobs are never compressed.
	Compression bool `koanf:"compression"`
}

// BackupSection configures backup retention.
type BackupSection struct {
	MaxCount      int  `koanf:"max_count"`
	RetentionDays int  `koanf:"retention_days"`
	SeparatePools bool `koanf:"separate_pools"`
}

// BadgerSection tunes the badger backend.
type BadgerSection struct {
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
	SyncWrites  bool          `koanf:"sync_writes"`
}

// MonitorSection configures the monitor command.
type MonitorSection struct {
	// Interval between integrity checks.
	Interval time.Duration `koanf:"interval"`

	// MetricsAddr is the listen address for /metrics. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
