// Package backup manages point-in-time copies of the live document.
//
// Backups are keyed by "{ulid_lowercase}-{kind}", so the backend's id order
// is creation order and the creation time is recoverable from the id alone.
// Backups are verbatim copies of stored bytes: a sealed live blob produces a
// sealed backup.
package backup

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/storage/backend"
	"github.com/yndnr/docguard/internal/storage/codec"
	"github.com/yndnr/docguard/internal/telemetry/metric"
)

// Manager creates, lists and evicts backups.
type Manager struct {
	backend backend.Backend
	codec   *codec.Codec
	logger  *slog.Logger
	metrics *metric.Registry
	now     func() time.Time

	mu          sync.Mutex
	policy      Policy
	entropy     *ulid.MonotonicEntropy
	lastCreated time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for ids and retention.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithPolicy sets the retention policy.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithCodec sets the codec used to read checksums from stored blobs.
func WithCodec(c *codec.Codec) Option {
	return func(m *Manager) {
		m.codec = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metric.Registry) Option {
	return func(m *Manager) {
		m.metrics = r
	}
}

// New creates a Manager over b.
func New(b backend.Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: b,
		codec:   codec.New(),
		logger:  slog.Default(),
		now:     time.Now,
		policy:  DefaultPolicy(),
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the current retention policy.
func (m *Manager) Policy() Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// SetPolicy replaces the retention policy. It takes effect at the next sweep.
func (m *Manager) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.policy = p
	m.mu.Unlock()
	m.logger.Info("backup retention updated",
		"max_count", p.MaxCount,
		"horizon", p.Horizon,
		"separate_pools", p.SeparatePools)
	return nil
}

// Create copies the current live bytes into a new backup of kind.
// Returns domain.ErrNotFound if there is no live document.
func (m *Manager) Create(ctx context.Context, kind domain.BackupKind) (string, error) {
	raw, err := m.backend.ReadLive(ctx)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return "", domain.ErrNotFound.WithDetails("no live document to back up")
		}
		return "", domain.ErrIO.WithDetails("read live document").WithCause(err)
	}
	return m.Snapshot(ctx, raw, kind)
}

// Snapshot stores raw verbatim as a new backup of kind and returns its id.
func (m *Manager) Snapshot(ctx context.Context, raw []byte, kind domain.BackupKind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("backup: invalid kind %q", kind)
	}

	m.mu.Lock()
	now := m.now()
	id, err := domain.GenerateBackupID(now, kind, m.entropy)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}

	if err := m.backend.PutBackup(ctx, id, raw); err != nil {
		return "", domain.ErrIO.WithDetails("store backup " + id).WithCause(err)
	}

	m.mu.Lock()
	if now.After(m.lastCreated) {
		m.lastCreated = now
	}
	m.mu.Unlock()

	m.metrics.BackupCreated(kind)
	m.logger.Debug("backup created", "id", id, "kind", kind, "size", len(raw))
	return id, nil
}

// Index lists backups oldest to newest without reading their contents.
// Checksum is left empty. Entries whose id cannot be parsed are skipped.
func (m *Manager) Index(ctx context.Context) ([]domain.BackupInfo, error) {
	entries, err := m.backend.ListBackups(ctx)
	if err != nil {
		return nil, domain.ErrIO.WithDetails("list backups").WithCause(err)
	}

	infos := make([]domain.BackupInfo, 0, len(entries))
	for _, e := range entries {
		ts, kind, err := domain.ParseBackupID(e.ID)
		if err != nil {
			m.logger.Debug("skipping unrecognized backup", "id", e.ID, "error", err)
			continue
		}
		infos = append(infos, domain.BackupInfo{
			ID:        e.ID,
			Timestamp: ts,
			Size:      e.Size,
			Kind:      kind,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos, nil
}

// List is Index plus each backup's stored checksum, read with a
// metadata-only decode. Unreadable backups get an empty checksum.
func (m *Manager) List(ctx context.Context) ([]domain.BackupInfo, error) {
	infos, err := m.Index(ctx)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		raw, err := m.backend.GetBackup(ctx, infos[i].ID)
		if err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				continue
			}
			return nil, domain.ErrIO.WithDetails("read backup " + infos[i].ID).WithCause(err)
		}
		infos[i].Checksum = m.codec.PeekChecksum(raw)
	}
	return infos, nil
}

// Read returns the stored bytes of a backup.
func (m *Manager) Read(ctx context.Context, id string) ([]byte, error) {
	if !domain.IsValidBackupID(id) {
		return nil, domain.ErrNotFound.WithDetails("malformed backup id " + id)
	}
	raw, err := m.backend.GetBackup(ctx, id)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, domain.ErrNotFound.WithDetails(id)
		}
		return nil, domain.ErrIO.WithDetails("read backup " + id).WithCause(err)
	}
	return raw, nil
}

// Latest returns the time of the newest backup, or the zero time if there
// are none.
func (m *Manager) Latest(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	last := m.lastCreated
	m.mu.Unlock()
	if !last.IsZero() {
		return last, nil
	}

	infos, err := m.Index(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if len(infos) == 0 {
		return time.Time{}, nil
	}
	newest := infos[len(infos)-1].Timestamp

	m.mu.Lock()
	if newest.After(m.lastCreated) {
		m.lastCreated = newest
	}
	m.mu.Unlock()
	return newest, nil
}

// Reset forgets cached state after the backend was cleared.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.lastCreated = time.Time{}
	m.mu.Unlock()
}

// Sweep evicts backups outside the retention policy and returns how many
// were removed. Deletion failures are collected; the sweep continues past
// them.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	infos, err := m.Index(ctx)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	policy := m.policy
	now := m.now()
	m.mu.Unlock()

	victims := Evictions(infos, policy, now)
	var (
		evicted int
		errs    []error
	)
	for _, info := range victims {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := m.backend.DeleteBackup(ctx, info.ID); err != nil {
			if errors.Is(err, backend.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete %s: %w", info.ID, err))
			continue
		}
		evicted++
	}

	m.metrics.BackupsSwept(evicted)
	if evicted > 0 {
		m.logger.Debug("backup sweep", "evicted", evicted, "remaining", len(infos)-evicted)
	}
	if len(errs) > 0 {
		return evicted, domain.ErrIO.WithDetails("backup sweep").WithCause(errors.Join(errs...))
	}
	return evicted, nil
}

// Evictions returns the backups in infos that policy evicts at now.
// infos must be sorted oldest to newest.
func Evictions(infos []domain.BackupInfo, policy Policy, now time.Time) []domain.BackupInfo {
	rank := make(map[domain.BackupKind]int)
	shared := 0

	var victims []domain.BackupInfo
	for i := len(infos) - 1; i >= 0; i-- {
		info := infos[i]

		var r int
		if policy.SeparatePools {
			r = rank[info.Kind]
			rank[info.Kind]++
		} else {
			r = shared
			shared++
		}

		tooOld := policy.Horizon > 0 && now.Sub(info.Timestamp) > policy.Horizon
		overCap := policy.MaxCount > 0 && r >= policy.MaxCount
		if tooOld || overCap {
			victims = append(victims, info)
		}
	}
	return victims
}
