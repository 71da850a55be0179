// Package badgerkv stores the document in an embedded Badger key-value store.
//
// Keys:
//
//	doc/live        live document
//	doc/staging     staging slot
//	backup/<id>     backups
//
// Promote runs in a single Badger transaction that copies staging to live
// and deletes staging, so readers see either the old or the new live value.
package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/docguard/internal/storage/backend"
)

var (
	keyLive      = []byte("doc/live")
	keyStaging   = []byte("doc/staging")
	prefixDoc    = []byte("doc/")
	prefixBackup = []byte("backup/")
)

// Config contains Badger tuning parameters.
type Config struct {
	// Dir is the Badger data directory.
	Dir string

	// GCInterval is the interval between value log GC runs.
	// Default: 10m
	GCInterval time.Duration

	// GCThreshold is the discard ratio passed to RunValueLogGC.
	// Default: 0.5
	GCThreshold float64

	// CacheSize is the block cache size in bytes.
	// Default: 16MB
	CacheSize int64

	// ValueLogFileSize is the max value log file size in bytes.
	// Default: 64MB
	ValueLogFileSize int64

	// SyncWrites fsyncs every commit. The document store relies on this
	// for crash durability.
	// Default: true
	SyncWrites bool
}

// DefaultConfig returns the default configuration for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:              dir,
		GCInterval:       10 * time.Minute,
		GCThreshold:      0.5,
		CacheSize:        16 << 20,
		ValueLogFileSize: 64 << 20,
		SyncWrites:       true,
	}
}

// Stats contains physical storage statistics.
type Stats struct {
	LSMSize          uint64
	ValueLogSize     uint64
	TotalSize        uint64
	LastGCTime       int64 // Unix milliseconds
	GCBytesReclaimed uint64
}

// Backend is a Badger backend.Backend.
type Backend struct {
	db     *badger.DB
	cfg    Config
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime       atomic.Int64
	gcBytesReclaimed atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsTotalSize    prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCReclaimed  prometheus.Counter
	reportedReclaimed   uint64

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ backend.Backend = (*Backend)(nil)

// Open opens (or creates) a Badger store and starts its GC loop.
func Open(cfg Config, logger *slog.Logger) (*Backend, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badgerkv: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig(cfg.Dir)
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = def.GCInterval
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = def.GCThreshold
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.ValueLogFileSize <= 0 {
		cfg.ValueLogFileSize = def.ValueLogFileSize
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.BlockCacheSize = cfg.CacheSize
	opts.ValueLogFileSize = cfg.ValueLogFileSize
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerkv: open db: %w", err)
	}

	b := &Backend{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	b.wg.Add(1)
	go b.gcLoop()

	logger.Debug("badger backend opened",
		"dir", cfg.Dir,
		"sync_writes", cfg.SyncWrites,
		"gc_interval", cfg.GCInterval)

	return b, nil
}

func (b *Backend) Name() string { return "badger" }

func (b *Backend) check() error {
	if b.closed.Load() {
		return backend.ErrClosed
	}
	return nil
}

func (b *Backend) get(key []byte) ([]byte, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("badgerkv: get %s: %w", key, err)
	}
	return value, nil
}

func (b *Backend) set(key, value []byte) error {
	if err := b.check(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("badgerkv: set %s: %w", key, err)
	}
	return nil
}

func backupKey(id string) []byte {
	return append(append([]byte{}, prefixBackup...), id...)
}

func (b *Backend) ReadLive(_ context.Context) ([]byte, error) {
	return b.get(keyLive)
}

func (b *Backend) WriteStaging(_ context.Context, data []byte) error {
	return b.set(keyStaging, data)
}

func (b *Backend) ReadStaging(_ context.Context) ([]byte, error) {
	return b.get(keyStaging)
}

func (b *Backend) DiscardStaging(_ context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyStaging)
	})
}

func (b *Backend) Promote(_ context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyStaging)
		if err != nil {
			return err
		}
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Set(keyLive, value); err != nil {
			return err
		}
		return txn.Delete(keyStaging)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("badgerkv: promote: %w", err)
	}
	return nil
}

func (b *Backend) PutBackup(_ context.Context, id string, data []byte) error {
	if err := backend.CheckID(id); err != nil {
		return err
	}
	return b.set(backupKey(id), data)
}

func (b *Backend) GetBackup(_ context.Context, id string) ([]byte, error) {
	return b.get(backupKey(id))
}

func (b *Backend) DeleteBackup(_ context.Context, id string) error {
	if err := b.check(); err != nil {
		return err
	}
	key := backupKey(id)
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err != nil {
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return backend.ErrNotFound
		}
		return fmt.Errorf("badgerkv: delete backup: %w", err)
	}
	return nil
}

// ListBackups scans the backup prefix. Keys iterate in byte order, which is
// id order.
func (b *Backend) ListBackups(_ context.Context) ([]backend.BackupEntry, error) {
	if err := b.check(); err != nil {
		return nil, err
	}
	var entries []backend.BackupEntry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefixBackup
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(prefixBackup):])
			// ValueSize is approximate for value-log entries; read the value.
			var size int64
			if err := item.Value(func(v []byte) error {
				size = int64(len(v))
				return nil
			}); err != nil {
				return err
			}
			entries = append(entries, backend.BackupEntry{ID: id, Size: size})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerkv: list backups: %w", err)
	}
	return entries, nil
}

func (b *Backend) Clear(_ context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	if err := b.db.DropPrefix(prefixDoc, prefixBackup); err != nil {
		return fmt.Errorf("badgerkv: clear: %w", err)
	}
	return nil
}

func (b *Backend) Size(ctx context.Context) (int64, error) {
	live, err := b.ReadLive(ctx)
	if err != nil && !errors.Is(err, backend.ErrNotFound) {
		return 0, err
	}
	total := int64(len(live))
	entries, err := b.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		total += e.Size
	}
	return total, nil
}

// GC runs value log garbage collection until Badger reports nothing left to
// rewrite. Returns bytes reclaimed (approximate).
func (b *Backend) GC(_ context.Context) (uint64, error) {
	if err := b.check(); err != nil {
		return 0, err
	}
	start := time.Now()

	var reclaimed uint64
	for {
		err := b.db.RunValueLogGC(b.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return reclaimed, fmt.Errorf("badgerkv: gc: %w", err)
		}
		// Badger does not report exact numbers; count one value log file.
		reclaimed += uint64(b.cfg.ValueLogFileSize)
	}

	b.lastGCTime.Store(time.Now().UnixMilli())
	b.gcBytesReclaimed.Add(reclaimed)

	b.logger.Debug("badger gc completed",
		"bytes_reclaimed", reclaimed,
		"elapsed", time.Since(start))

	return reclaimed, nil
}

// Stats returns physical storage statistics.
func (b *Backend) Stats() Stats {
	lsm, vlog := b.db.Size()
	return Stats{
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		TotalSize:        uint64(lsm + vlog),
		LastGCTime:       b.lastGCTime.Load(),
		GCBytesReclaimed: b.gcBytesReclaimed.Load(),
	}
}

// Close stops background loops and closes the database. Safe to call twice.
func (b *Backend) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.stopCh)
		b.wg.Wait()
		if cerr := b.db.Close(); cerr != nil {
			err = fmt.Errorf("badgerkv: close db: %w", cerr)
		}
		b.logger.Debug("badger backend closed")
	})
	return err
}

// RegisterMetrics registers Badger size gauges with reg and starts the
// updater loop. Call at most once.
func (b *Backend) RegisterMetrics(reg prometheus.Registerer) error {
	b.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docguard",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	b.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docguard",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	b.metricsTotalSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docguard",
		Subsystem: "badger",
		Name:      "total_size_bytes",
		Help:      "Badger total storage size in bytes (LSM + value log)",
	})
	b.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docguard",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})
	b.metricsGCReclaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docguard",
		Subsystem: "badger",
		Name:      "gc_bytes_reclaimed_total",
		Help:      "Total bytes reclaimed by Badger garbage collection",
	})

	for _, c := range []prometheus.Collector{
		b.metricsLSMSize,
		b.metricsValueLogSize,
		b.metricsTotalSize,
		b.metricsLastGCTime,
		b.metricsGCReclaimed,
	} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("badgerkv: register metrics: %w", err)
		}
	}

	b.updateMetrics()
	b.wg.Add(1)
	go b.metricsLoop()
	return nil
}

func (b *Backend) updateMetrics() {
	stats := b.Stats()
	b.metricsLSMSize.Set(float64(stats.LSMSize))
	b.metricsValueLogSize.Set(float64(stats.ValueLogSize))
	b.metricsTotalSize.Set(float64(stats.TotalSize))
	if stats.LastGCTime > 0 {
		b.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0)
	}
	// Counters only move forward; add the delta since the last report.
	if delta := stats.GCBytesReclaimed - b.reportedReclaimed; delta > 0 {
		b.metricsGCReclaimed.Add(float64(delta))
		b.reportedReclaimed = stats.GCBytesReclaimed
	}
}

func (b *Backend) metricsLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.updateMetrics()
		case <-b.stopCh:
			return
		}
	}
}

func (b *Backend) gcLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := b.GC(ctx); err != nil {
				b.logger.Error("badger auto gc failed", "error", err)
			}
			cancel()
		case <-b.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger's
// info output is routine compaction chatter and goes to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
