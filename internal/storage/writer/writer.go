// Package writer implements the atomic write path for the live document.
//
// A persist stages the encoded document, reads it back and verifies it,
// snapshots the current live bytes as an auto backup, and only then asks the
// backend to promote staging to live. Any failure before promotion leaves
// the live document untouched and the staging slot discarded.
//
// At most one write-path operation runs at a time per Writer.
package writer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/core/integrity"
	"github.com/yndnr/docguard/internal/storage/backend"
	"github.com/yndnr/docguard/internal/storage/backup"
	"github.com/yndnr/docguard/internal/storage/codec"
	"github.com/yndnr/docguard/internal/telemetry/metric"
)

const sweepTimeout = time.Minute

// Writer owns the write path of one backend.
type Writer struct {
	backend backend.Backend
	codec   *codec.Codec
	backups *backup.Manager
	logger  *slog.Logger
	metrics *metric.Registry

	sem    chan struct{}
	sweeps sync.WaitGroup
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(w *Writer) {
		w.metrics = r
	}
}

// New creates a Writer.
func New(b backend.Backend, c *codec.Codec, backups *backup.Manager, opts ...Option) *Writer {
	w := &Writer{
		backend: b,
		codec:   c,
		backups: backups,
		logger:  slog.Default(),
		sem:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Persist writes doc as the new live document. Whatever bytes are live
// beforehand, readable but corrupt ones included, are copied into an auto
// backup first; verification skips corrupt copies during recovery.
//
// doc is not modified; the stored copy carries a freshly computed digest.
// Errors: domain.ErrStructural (nothing written), domain.ErrStagingCorrupt,
// domain.ErrIO, or the context error if ctx ends while waiting for the lock.
func (w *Writer) Persist(ctx context.Context, doc *domain.Document) (err error) {
	start := time.Now()
	size := 0
	defer func() {
		w.metrics.ObserveWrite(time.Since(start), size, err)
	}()

	if err := integrity.Validate(doc); err != nil {
		return err
	}

	if err := w.acquire(ctx); err != nil {
		return err
	}
	defer w.release()

	fresh, err := integrity.RefreshDigest(doc)
	if err != nil {
		return err
	}
	raw, err := w.codec.Encode(fresh)
	if err != nil {
		return err
	}

	if err := w.backend.WriteStaging(ctx, raw); err != nil {
		w.discardStaging(ctx)
		return domain.ErrIO.WithDetails("write staging").WithCause(err)
	}

	if err := w.verifyStaging(ctx, raw); err != nil {
		w.discardStaging(ctx)
		return err
	}

	backupID, err := w.snapshotLive(ctx)
	if err != nil {
		w.discardStaging(ctx)
		return err
	}

	if err := w.backend.Promote(ctx); err != nil {
		w.discardStaging(ctx)
		return domain.ErrIO.WithDetails("promote staging").WithCause(err)
	}
	size = len(raw)

	w.logger.Debug("document persisted",
		"size", size,
		"checksum", fresh.Metadata.Checksum,
		"backup_id", backupID,
		"elapsed", time.Since(start))

	w.sweepAsync()
	return nil
}

// verifyStaging reads the staging slot back and checks it is exactly what
// was written and still decodes to a digest-consistent document.
func (w *Writer) verifyStaging(ctx context.Context, want []byte) error {
	staged, err := w.backend.ReadStaging(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return domain.ErrStagingCorrupt.WithDetails("staging slot empty after write")
		}
		return domain.ErrIO.WithDetails("read staging").WithCause(err)
	}
	if !bytes.Equal(staged, want) {
		return domain.ErrStagingCorrupt.WithDetails("staged bytes differ from encoded document")
	}
	doc, err := w.codec.Decode(staged)
	if err != nil {
		return domain.ErrStagingCorrupt.WithCause(err)
	}
	if !integrity.Verify(doc) {
		return domain.ErrStagingCorrupt.WithCause(domain.ErrChecksumMismatch)
	}
	return nil
}

// snapshotLive copies the current live bytes into an auto backup. Returns ""
// when there is no live document yet.
func (w *Writer) snapshotLive(ctx context.Context) (string, error) {
	live, err := w.backend.ReadLive(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return "", nil
		}
		return "", domain.ErrIO.WithDetails("read live document").WithCause(err)
	}
	return w.backups.Snapshot(ctx, live, domain.BackupAuto)
}

// discardStaging removes staging after a failed persist. It runs even if ctx
// was canceled.
func (w *Writer) discardStaging(ctx context.Context) {
	if err := w.backend.DiscardStaging(context.WithoutCancel(ctx)); err != nil {
		w.logger.Warn("discard staging failed", "error", err)
	}
}

func (w *Writer) sweepAsync() {
	w.sweeps.Add(1)
	go func() {
		defer w.sweeps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := w.backups.Sweep(ctx); err != nil {
			w.logger.Warn("backup retention sweep failed", "error", err)
		}
	}()
}

// Exclusive runs fn while holding the write lock, so fn never overlaps a
// persist. Used for manual backups and clear.
func (w *Writer) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := w.acquire(ctx); err != nil {
		return err
	}
	defer w.release()
	return fn(ctx)
}

// Wait blocks until background retention sweeps have finished.
func (w *Writer) Wait() {
	w.sweeps.Wait()
}

func (w *Writer) acquire(ctx context.Context) error {
	select {
	case w.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) release() {
	<-w.sem
}
