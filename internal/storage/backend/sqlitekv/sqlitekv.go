// Package sqlitekv stores the document in a single SQLite database file.
//
// Promote runs as one SQL transaction that copies the staging row over the
// live row and deletes staging.
package sqlitekv

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/yndnr/docguard/internal/storage/backend"
)

//go:embed schema.sql
var schemaSQL string

const (
	slotLive    = "live"
	slotStaging = "staging"
)

// Backend is a SQLite backend.Backend.
type Backend struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	closed atomic.Bool
}

var _ backend.Backend = (*Backend)(nil)

// Open creates or opens the database at path and applies the schema.
//
// The database is configured with:
//   - WAL mode so readers do not block the writer
//   - FULL synchronous mode; every commit is durable
//   - 5-second busy timeout for lock contention
func Open(path string, logger *slog.Logger) (*Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlitekv: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitekv: connect: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitekv: apply schema: %w", err)
	}

	logger.Debug("sqlite backend opened", "path", path)
	return &Backend{db: db, path: path, logger: logger}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("sqlitekv: execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (b *Backend) Name() string { return "sqlite" }

func (b *Backend) check() error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	return nil
}

func (b *Backend) readSlot(ctx context.Context, name string) ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	var body []byte
	err := b.db.QueryRowContext(ctx, `SELECT body FROM slots WHERE name = ?`, name).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitekv: read %s: %w", name, err)
	}
	return nonNil(body), nil
}

func (b *Backend) ReadLive(ctx context.Context) ([]byte, error) {
	return b.readSlot(ctx, slotLive)
}

func (b *Backend) WriteStaging(ctx context.Context, data []byte) error {
	if err := b.check(); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO slots (name, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		slotStaging, nonNil(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlitekv: write staging: %w", err)
	}
	return nil
}

func (b *Backend) ReadStaging(ctx context.Context) ([]byte, error) {
	return b.readSlot(ctx, slotStaging)
}

func (b *Backend) DiscardStaging(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, slotStaging); err != nil {
		return fmt.Errorf("sqlitekv: discard staging: %w", err)
	}
	return nil
}

func (b *Backend) Promote(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitekv: begin promote: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO slots (name, body, updated_at)
		 SELECT ?, body, ? FROM slots WHERE name = ?
		 ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		slotLive, time.Now().UnixMilli(), slotStaging)
	if err != nil {
		return fmt.Errorf("sqlitekv: promote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return backend.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, slotStaging); err != nil {
		return fmt.Errorf("sqlitekv: promote: clear staging: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitekv: commit promote: %w", err)
	}
	return nil
}

func (b *Backend) PutBackup(ctx context.Context, id string, data []byte) error {
	if err := backend.CheckID(id); err != nil {
		return err
	}
	if err := b.check(); err != nil {
		return err
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO backups (id, body, size, created_at) VALUES (?, ?, ?, ?)`,
		id, nonNil(data), len(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlitekv: put backup: %w", err)
	}
	return nil
}

func (b *Backend) GetBackup(ctx context.Context, id string) ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	var body []byte
	err := b.db.QueryRowContext(ctx, `SELECT body FROM backups WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("sqlitekv: get backup: %w", err)
	}
	return nonNil(body), nil
}

func (b *Backend) DeleteBackup(ctx context.Context, id string) error {
	if err := b.check(); err != nil {
		return err
	}
	res, err := b.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlitekv: delete backup: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return backend.ErrNotFound
	}
	return nil
}

func (b *Backend) ListBackups(ctx context.Context) ([]backend.BackupEntry, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	rows, err := b.db.QueryContext(ctx, `SELECT id, size FROM backups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlitekv: list backups: %w", err)
	}
	defer rows.Close()

	var entries []backend.BackupEntry
	for rows.Next() {
		var e backend.BackupEntry
		if err := rows.Scan(&e.ID, &e.Size); err != nil {
			return nil, fmt.Errorf("sqlitekv: scan backup: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlitekv: list backups: %w", err)
	}
	return entries, nil
}

func (b *Backend) Clear(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitekv: begin clear: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM slots`, `DELETE FROM backups`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitekv: clear: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlitekv: commit clear: %w", err)
	}
	return nil
}

func (b *Backend) Size(ctx context.Context) (int64, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	var total int64
	err := b.db.QueryRowContext(ctx,
		`SELECT
		   COALESCE((SELECT length(body) FROM slots WHERE name = ?), 0) +
		   COALESCE((SELECT SUM(size) FROM backups), 0)`,
		slotLive).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sqlitekv: size: %w", err)
	}
	return total, nil
}

func (b *Backend) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("sqlitekv: close: %w", err)
	}
	return nil
}

// nonNil keeps empty blobs distinct from SQL NULL.
func nonNil(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
