// Package recovery restores the live document from the newest backup that
// passes structural validation and digest verification.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/core/integrity"
	"github.com/yndnr/docguard/internal/storage/backup"
	"github.com/yndnr/docguard/internal/storage/codec"
	"github.com/yndnr/docguard/internal/storage/writer"
	"github.com/yndnr/docguard/internal/telemetry/metric"
)

// Recoverer walks the backup pool newest first.
type Recoverer struct {
	backups *backup.Manager
	codec   *codec.Codec
	writer  *writer.Writer
	logger  *slog.Logger
	metrics *metric.Registry
}

// Option configures a Recoverer.
type Option func(*Recoverer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recoverer) {
		r.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metric.Registry) Option {
	return func(r *Recoverer) {
		r.metrics = m
	}
}

// New creates a Recoverer.
func New(backups *backup.Manager, c *codec.Codec, w *writer.Writer, opts ...Option) *Recoverer {
	r := &Recoverer{
		backups: backups,
		codec:   c,
		writer:  w,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recover returns the newest valid backup and the id it came from, after
// promoting it to live. Promotion goes through the normal write path, so the
// bytes it replaces are kept as an auto backup. If promotion fails the
// document is still returned; the next successful save replaces the bad
// live document.
//
// Returns domain.ErrRecoveryExhausted when no backup passes.
func (r *Recoverer) Recover(ctx context.Context) (*domain.Document, string, error) {
	doc, id, err := r.Find(ctx)
	if err != nil {
		return nil, "", err
	}
	if err := r.writer.Persist(ctx, doc); err != nil {
		r.logger.Error("recovered backup could not be promoted to live",
			"id", id, "error", err)
	}
	return doc, id, nil
}

// Find returns the newest valid backup without touching the live slot.
// The store uses it when the live slot could not be read at all.
func (r *Recoverer) Find(ctx context.Context) (*domain.Document, string, error) {
	infos, err := r.backups.Index(ctx)
	if err != nil {
		return nil, "", err
	}

	rejected := 0
	for i := len(infos) - 1; i >= 0; i-- {
		id := infos[i].ID
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		doc, reason := r.candidate(ctx, id)
		if doc == nil {
			rejected++
			r.logger.Warn("backup rejected during recovery", "id", id, "reason", reason)
			continue
		}

		r.metrics.Recovery(metric.RecoveryRestored)
		r.logger.Warn("document recovered from backup",
			"id", id,
			"backup_time", infos[i].Timestamp,
			"rejected", rejected)
		return doc, id, nil
	}

	r.metrics.Recovery(metric.RecoveryExhausted)
	r.logger.Error("recovery exhausted", "candidates", len(infos))
	return nil, "", domain.ErrRecoveryExhausted.WithDetails(
		fmt.Sprintf("%d backups examined, none valid", len(infos)))
}

// candidate loads and checks one backup. It returns nil and the rejection
// reason if the backup is unusable.
func (r *Recoverer) candidate(ctx context.Context, id string) (*domain.Document, error) {
	raw, err := r.backups.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	doc, err := r.codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	if !integrity.Verify(doc) {
		return nil, domain.ErrChecksumMismatch
	}
	return doc, nil
}
