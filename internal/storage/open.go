package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/yndnr/docguard/internal/storage/backend"
	"github.com/yndnr/docguard/internal/storage/backend/badgerkv"
	"github.com/yndnr/docguard/internal/storage/backend/fsbackend"
	"github.com/yndnr/docguard/internal/storage/backend/memkv"
	"github.com/yndnr/docguard/internal/storage/backend/sqlitekv"
)

// Backend kinds accepted by OpenBackend.
const (
	BackendFS     = "fs"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

const (
	badgerSubdir = "badger"
	sqliteFile   = "docguard.db"
)

// BackendConfig selects and configures a physical backend.
type BackendConfig struct {
	// Kind is one of fs, badger, sqlite or memory.
	Kind string

	// DataDir is the directory holding the backend's files.
	DataDir string

	// Badger tunes the badger backend. Dir is derived from DataDir. The
	// zero value means badgerkv.DefaultConfig.
	Badger badgerkv.Config

	Logger *slog.Logger
}

// OpenBackend opens the backend named by cfg.Kind. The kind is always
// explicit; existing data is never sniffed to pick one.
func OpenBackend(cfg BackendConfig) (backend.Backend, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Kind != BackendMemory && cfg.DataDir == "" {
		return nil, fmt.Errorf("storage: data dir is required for %q backend", cfg.Kind)
	}

	switch cfg.Kind {
	case BackendFS:
		return fsbackend.Open(cfg.DataDir, cfg.Logger)
	case BackendBadger:
		dir := filepath.Join(cfg.DataDir, badgerSubdir)
		bc := cfg.Badger
		if bc == (badgerkv.Config{}) {
			bc = badgerkv.DefaultConfig(dir)
		}
		bc.Dir = dir
		return badgerkv.Open(bc, cfg.Logger)
	case BackendSQLite:
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return nil, fmt.Errorf("storage: create data dir: %w", err)
		}
		return sqlitekv.Open(filepath.Join(cfg.DataDir, sqliteFile), cfg.Logger)
	case BackendMemory:
		return memkv.New(), nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Kind)
	}
}
