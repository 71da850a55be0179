// Package fsbackend stores the document as plain files in a directory.
//
// Layout:
//
//	<dir>/document.json        live document
//	<dir>/document.json.tmp    staging slot
//	<dir>/backups/<id>.json    backups
//
// Every blob is written to a uniquely named temp file, fsynced and renamed
// into place, followed by an fsync of the parent directory. Promote is a
// single rename of the staging file over the live file.
package fsbackend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/yndnr/docguard/internal/storage/backend"
)

const (
	liveFile    = "document.json"
	stagingFile = "document.json.tmp"
	backupDir   = "backups"
	backupExt   = ".json"
	partSuffix  = ".part"

	dirPerm  = 0750
	filePerm = 0600
)

// Backend is a filesystem backend.Backend.
type Backend struct {
	dir    string
	logger *slog.Logger
	closed atomic.Bool
}

var _ backend.Backend = (*Backend)(nil)

// Open prepares dir for use, creating it if needed, and removes temp files
// left behind by interrupted writes.
func Open(dir string, logger *slog.Logger) (*Backend, error) {
	if dir == "" {
		return nil, fmt.Errorf("fsbackend: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Join(dir, backupDir), dirPerm); err != nil {
		return nil, fmt.Errorf("fsbackend: create dir: %w", err)
	}

	b := &Backend{dir: dir, logger: logger}
	b.removeParts(dir)
	b.removeParts(filepath.Join(dir, backupDir))

	logger.Debug("fs backend opened", "dir", dir)
	return b, nil
}

// Dir returns the data directory.
func (b *Backend) Dir() string { return b.dir }

func (b *Backend) Name() string { return "fs" }

func (b *Backend) livePath() string    { return filepath.Join(b.dir, liveFile) }
func (b *Backend) stagingPath() string { return filepath.Join(b.dir, stagingFile) }

func (b *Backend) backupPath(id string) string {
	return filepath.Join(b.dir, backupDir, id+backupExt)
}

func (b *Backend) check() error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	return nil
}

func (b *Backend) ReadLive(_ context.Context) ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return readFile(b.livePath())
}

func (b *Backend) WriteStaging(_ context.Context, data []byte) error {
	if err := b.check(); err != nil {
		return err
	}
	return writeFileAtomic(b.stagingPath(), data)
}

func (b *Backend) ReadStaging(_ context.Context) ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	return readFile(b.stagingPath())
}

func (b *Backend) DiscardStaging(_ context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := os.Remove(b.stagingPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("fsbackend: discard staging: %w", err)
	}
	return nil
}

func (b *Backend) Promote(_ context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := os.Rename(b.stagingPath(), b.livePath()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("fsbackend: promote: %w", err)
	}
	return syncDir(b.dir)
}

func (b *Backend) PutBackup(_ context.Context, id string, data []byte) error {
	if err := backend.CheckID(id); err != nil {
		return err
	}
	if err := b.check(); err != nil {
		return err
	}
	return writeFileAtomic(b.backupPath(id), data)
}

func (b *Backend) GetBackup(_ context.Context, id string) ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	if !backend.ValidID(id) {
		return nil, backend.ErrNotFound
	}
	return readFile(b.backupPath(id))
}

func (b *Backend) DeleteBackup(_ context.Context, id string) error {
	if err := b.check(); err != nil {
		return err
	}
	if !backend.ValidID(id) {
		return backend.ErrNotFound
	}
	if err := os.Remove(b.backupPath(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("fsbackend: delete backup: %w", err)
	}
	return nil
}

func (b *Backend) ListBackups(_ context.Context) ([]backend.BackupEntry, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(filepath.Join(b.dir, backupDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsbackend: list backups: %w", err)
	}

	entries := make([]backend.BackupEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, backupExt) {
			continue
		}
		id := strings.TrimSuffix(name, backupExt)
		if !backend.ValidID(id) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, backend.BackupEntry{ID: id, Size: info.Size()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (b *Backend) Clear(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	for _, p := range []string{b.livePath(), b.stagingPath()} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("fsbackend: clear: %w", err)
		}
	}
	entries, err := b.ListBackups(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.Remove(b.backupPath(e.ID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("fsbackend: clear backup %s: %w", e.ID, err)
		}
	}
	return syncDir(b.dir)
}

func (b *Backend) Size(ctx context.Context) (int64, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	var total int64
	if info, err := os.Stat(b.livePath()); err == nil {
		total += info.Size()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("fsbackend: stat live: %w", err)
	}
	entries, err := b.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}

func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *Backend) removeParts(dir string) {
	matches, _ := filepath.Glob(filepath.Join(dir, "*"+partSuffix))
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			b.logger.Warn("removed interrupted write", "path", m)
		}
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("fsbackend: read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*"+partSuffix)
	if err != nil {
		return fmt.Errorf("fsbackend: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("fsbackend: chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("fsbackend: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsbackend: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fsbackend: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("fsbackend: rename: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("fsbackend: open dir: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("fsbackend: sync dir: %w", err)
	}
	return nil
}
