package config

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/yndnr/docguard/internal/storage"
	"github.com/yndnr/docguard/internal/storage/codec"
	"github.com/yndnr/docguard/internal/telemetry/logger"
)

// Verify validates the configuration.
func Verify(cfg *Config) error {
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if err := verifyBackup(&cfg.Backup); err != nil {
		return err
	}
	if err := verifyBadger(&cfg.Badger); err != nil {
		return err
	}
	if cfg.Monitor.Interval <= 0 {
		return errors.New("monitor.interval must be positive")
	}
	if !logger.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", cfg.Log.Format)
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch cfg.Backend {
	case storage.BackendFS, storage.BackendBadger, storage.BackendSQLite:
	default:
		return fmt.Errorf("storage.backend %q is not one of fs, badger, sqlite", cfg.Backend)
	}
	if cfg.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if cfg.DebounceWindow <= 0 {
		return errors.New("storage.debounce_window must be positive")
	}

	switch codec.CipherType(cfg.Cipher) {
	case "", codec.CipherAESGCM, codec.CipherChaCha20:
	default:
		return fmt.Errorf("storage.cipher %q is not one of aes-gcm, chacha20-poly1305", cfg.Cipher)
	}
	if cfg.EncryptionKey != "" {
		if _, err := cfg.Sealer(); err != nil {
			return fmt.Errorf("storage.encryption_key: %w", err)
		}
	} else if cfg.Cipher != "" {
		return errors.New("storage.cipher requires storage.encryption_key")
	}
	return nil
}

func verifyBackup(cfg *BackupSection) error {
	if cfg.MaxCount < 1 {
		return errors.New("backup.max_count must be at least 1")
	}
	if cfg.RetentionDays < 1 {
		return errors.New("backup.retention_days must be at least 1")
	}
	return nil
}

func verifyBadger(cfg *BadgerSection) error {
	if cfg.GCInterval <= 0 {
		return errors.New("badger.gc_interval must be positive")
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		return errors.New("badger.gc_threshold must be between 0 and 1")
	}
	return nil
}

// Sealer returns the sealer for the configured key, or nil when no key is
// set.
func (s *StorageSection) Sealer() (codec.Sealer, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, errors.New("not valid hex")
	}
	return codec.NewSealer(key, codec.CipherType(s.Cipher))
}
