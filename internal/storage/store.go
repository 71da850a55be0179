package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/core/integrity"
	"github.com/yndnr/docguard/internal/storage/backend"
	"github.com/yndnr/docguard/internal/storage/backup"
	"github.com/yndnr/docguard/internal/storage/codec"
	"github.com/yndnr/docguard/internal/storage/queue"
	"github.com/yndnr/docguard/internal/storage/recovery"
	"github.com/yndnr/docguard/internal/storage/writer"
	"github.com/yndnr/docguard/internal/telemetry/metric"
)

// Config configures a Store.
type Config struct {
	// Backend is the physical storage. Required. The Store takes ownership
	// and closes it on Close.
	Backend backend.Backend

	// Codec encodes stored blobs. Defaults to plain JSON.
	Codec *codec.Codec

	// DebounceWindow is the save quiescence period.
	// Default: 500ms
	DebounceWindow time.Duration

	// Retention bounds the backup pool. The zero value means
	// backup.DefaultPolicy().
	Retention backup.Policy

	// Clock overrides the time source. Default: time.Now
	Clock func() time.Time

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Store is the storage adapter used by the domain layer: debounced saves,
// verified loads with automatic recovery, and backup management.
type Store struct {
	backend   backend.Backend
	codec     *codec.Codec
	backups   *backup.Manager
	writer    *writer.Writer
	recoverer *recovery.Recoverer
	queue     *queue.Queue
	logger    *slog.Logger
	metrics   *metric.Registry
	now       func() time.Time
	closed    atomic.Bool
}

// New assembles a Store over cfg.Backend.
func New(cfg Config) (*Store, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("storage: backend is required")
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Retention == (backup.Policy{}) {
		cfg.Retention = backup.DefaultPolicy()
	}
	if err := cfg.Retention.Validate(); err != nil {
		return nil, err
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = queue.DefaultWindow
	}

	logger := cfg.Logger.With("backend", cfg.Backend.Name())
	s := &Store{
		backend: cfg.Backend,
		codec:   cfg.Codec,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     cfg.Clock,
	}

	s.backups = backup.New(cfg.Backend,
		backup.WithCodec(cfg.Codec),
		backup.WithPolicy(cfg.Retention),
		backup.WithClock(cfg.Clock),
		backup.WithLogger(logger),
		backup.WithMetrics(cfg.Metrics))
	s.writer = writer.New(cfg.Backend, cfg.Codec, s.backups,
		writer.WithLogger(logger),
		writer.WithMetrics(cfg.Metrics))
	s.recoverer = recovery.New(s.backups, cfg.Codec, s.writer,
		recovery.WithLogger(logger),
		recovery.WithMetrics(cfg.Metrics))
	s.queue = queue.New(s.writer.Persist,
		queue.WithWindow(cfg.DebounceWindow),
		queue.WithPrepare(s.stamp),
		queue.WithLogger(logger),
		queue.WithMetrics(cfg.Metrics))

	return s, nil
}

// BackendName returns the name of the physical backend.
func (s *Store) BackendName() string {
	return s.backend.Name()
}

// stamp records sync and backup times on the queue's copy just before it
// is handed to the writer. The writer refreshes the digest afterwards.
func (s *Store) stamp(ctx context.Context, doc *domain.Document) {
	doc.Metadata.LastSync = s.now().UTC()
	last, err := s.backups.Latest(ctx)
	if err != nil {
		s.logger.Warn("could not determine last backup time", "error", err)
		return
	}
	if !last.IsZero() {
		doc.Metadata.LastBackup = last.UTC()
	}
}

func (s *Store) check() error {
	if s.closed.Load() {
		return domain.ErrClosed
	}
	return nil
}

// Save validates doc and schedules it for writing. Structural errors are
// reported immediately; write errors surface on Flush or in the log.
func (s *Store) Save(doc *domain.Document) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := integrity.Validate(doc); err != nil {
		return err
	}
	return s.queue.Save(doc)
}

// Flush writes any pending save now.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.queue.Flush(ctx)
}

// Load returns the live document, recovering from backups if it is missing,
// unreadable or fails verification.
//
// Returns domain.ErrNoDocument on first run (no live document and no
// backups) and domain.ErrRecoveryExhausted if no backup is usable.
func (s *Store) Load(ctx context.Context) (*domain.Document, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	raw, err := s.backend.ReadLive(ctx)
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			// The live slot may still hold good content: serve the newest
			// valid backup but leave live alone.
			s.logger.Warn("live document unreadable, serving newest backup", "error", err)
			doc, _, ferr := s.recoverer.Find(ctx)
			if ferr != nil {
				return nil, ferr
			}
			return doc, nil
		}
		infos, ierr := s.backups.Index(ctx)
		if ierr != nil {
			return nil, ierr
		}
		if len(infos) == 0 {
			return nil, domain.ErrNoDocument
		}
		return s.recover(ctx, "live document missing", err)
	}

	doc, err := s.codec.Decode(raw)
	if err != nil {
		return s.recover(ctx, "live document invalid", err)
	}
	if !integrity.Verify(doc) {
		return s.recover(ctx, "live document checksum mismatch", domain.ErrChecksumMismatch)
	}
	return doc, nil
}

func (s *Store) recover(ctx context.Context, reason string, cause error) (*domain.Document, error) {
	s.logger.Warn("starting recovery", "reason", reason, "error", cause)
	doc, _, err := s.recoverer.Recover(ctx)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Verify checks the stored live document without recovering or modifying
// anything. Returns nil, domain.ErrNoDocument (first run),
// domain.ErrLiveMissing (no live document but backups exist),
// domain.ErrStructural, domain.ErrChecksumMismatch or domain.ErrIO.
func (s *Store) Verify(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	raw, err := s.backend.ReadLive(ctx)
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			return domain.ErrIO.WithDetails("read live document").WithCause(err)
		}
		infos, ierr := s.backups.Index(ctx)
		if ierr != nil {
			return ierr
		}
		if len(infos) == 0 {
			return domain.ErrNoDocument
		}
		return domain.ErrLiveMissing.WithDetails(fmt.Sprintf("%d backups available", len(infos)))
	}
	doc, err := s.codec.Decode(raw)
	if err != nil {
		return err
	}
	if !integrity.Verify(doc) {
		return domain.ErrChecksumMismatch
	}
	return nil
}

// CreateBackup snapshots the current live bytes as a manual backup.
// Pending saves are not flushed first.
func (s *Store) CreateBackup(ctx context.Context) (string, error) {
	if err := s.check(); err != nil {
		return "", err
	}
	var id string
	err := s.writer.Exclusive(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.backups.Create(ctx, domain.BackupManual)
		return err
	})
	if err != nil {
		return "", err
	}
	s.logger.Info("backup created", "id", id)
	return id, nil
}

// ListBackups returns all backups oldest first, with checksums.
func (s *Store) ListBackups(ctx context.Context) ([]domain.BackupInfo, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.backups.List(ctx)
}

// RestoreBackup validates backup id and writes it as the live document. The
// current live document is snapshotted first. A save already being written
// completes first; pending saves are discarded so they cannot overwrite the
// restored content.
//
// A backup that fails validation or verification yields
// domain.ErrStructural and live is left unchanged.
func (s *Store) RestoreBackup(ctx context.Context, id string) error {
	if err := s.check(); err != nil {
		return err
	}
	raw, err := s.backups.Read(ctx, id)
	if err != nil {
		return err
	}
	doc, err := s.codec.Decode(raw)
	if err != nil {
		return err
	}
	if !integrity.Verify(doc) {
		return domain.ErrStructural.WithDetails("backup " + id).WithCause(domain.ErrChecksumMismatch)
	}

	err = s.queue.Exclusive(ctx, func(ctx context.Context) error {
		return s.writer.Persist(ctx, doc)
	})
	if err != nil {
		return err
	}
	s.logger.Info("backup restored", "id", id)
	return nil
}

// Clear removes the live document and every backup. A save already being
// written completes first; pending saves are discarded.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	err := s.queue.Exclusive(ctx, func(ctx context.Context) error {
		return s.writer.Exclusive(ctx, func(ctx context.Context) error {
			if err := s.backend.Clear(ctx); err != nil {
				return domain.ErrIO.WithDetails("clear").WithCause(err)
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	s.backups.Reset()
	s.logger.Info("store cleared")
	return nil
}

// Size returns the bytes occupied by the live document and all backups.
func (s *Store) Size(ctx context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	n, err := s.backend.Size(ctx)
	if err != nil {
		return 0, domain.ErrIO.WithDetails("size").WithCause(err)
	}
	return n, nil
}

// SetRetention replaces the backup retention policy and applies it.
func (s *Store) SetRetention(ctx context.Context, p backup.Policy) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.backups.SetPolicy(p); err != nil {
		return err
	}
	_, err := s.backups.Sweep(ctx)
	return err
}

// Retention returns the current backup retention policy.
func (s *Store) Retention() backup.Policy {
	return s.backups.Policy()
}

// Stats reports store statistics for metrics collection.
func (s *Store) Stats(ctx context.Context) (metric.StoreStats, error) {
	if err := s.check(); err != nil {
		return metric.StoreStats{}, err
	}
	infos, err := s.backups.Index(ctx)
	if err != nil {
		return metric.StoreStats{}, err
	}
	size, err := s.Size(ctx)
	if err != nil {
		return metric.StoreStats{}, err
	}
	stats := metric.StoreStats{
		BackupCount: len(infos),
		StoredBytes: size,
		PendingSave: s.queue.Pending(),
	}
	if len(infos) > 0 {
		stats.LastBackupAt = infos[len(infos)-1].Timestamp
	}
	return stats, nil
}

// QueueStats returns cumulative save queue counters.
func (s *Store) QueueStats() queue.Stats {
	return s.queue.Stats()
}

// Close flushes pending saves, waits for background sweeps and closes the
// backend. Further calls return domain.ErrClosed.
func (s *Store) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	var errs []error
	if err := s.queue.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush pending save: %w", err))
	}
	s.writer.Wait()
	if err := s.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	return errors.Join(errs...)
}
