package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreStats is a point-in-time view of a document store.
type StoreStats struct {
	BackupCount  int
	StoredBytes  int64
	PendingSave  bool
	LastBackupAt time.Time
}

// StatsFunc returns current store statistics.
type StatsFunc func(ctx context.Context) (StoreStats, error)

// Collector reports store statistics at scrape time.
type Collector struct {
	source  StatsFunc
	timeout time.Duration

	backups    *prometheus.Desc
	stored     *prometheus.Desc
	pending    *prometheus.Desc
	lastBackup *prometheus.Desc
	up         *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector that calls source on each scrape.
func NewCollector(source StatsFunc) *Collector {
	return &Collector{
		source:  source,
		timeout: 5 * time.Second,
		backups: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "backups"),
			"Number of stored backups", nil, nil),
		stored: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "stored_bytes"),
			"Bytes occupied by the live document and all backups", nil, nil),
		pending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "pending_save"),
			"1 if a debounced save is waiting to be written", nil, nil),
		lastBackup: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "last_backup_timestamp_seconds"),
			"Unix time of the newest backup", nil, nil),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "up"),
			"1 if store statistics could be read", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.backups
	ch <- c.stored
	ch <- c.pending
	ch <- c.lastBackup
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.source(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.backups, prometheus.GaugeValue, float64(stats.BackupCount))
	ch <- prometheus.MustNewConstMetric(c.stored, prometheus.GaugeValue, float64(stats.StoredBytes))

	pending := 0.0
	if stats.PendingSave {
		pending = 1
	}
	ch <- prometheus.MustNewConstMetric(c.pending, prometheus.GaugeValue, pending)

	if !stats.LastBackupAt.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastBackup, prometheus.GaugeValue,
			float64(stats.LastBackupAt.UnixMilli())/1000.0)
	}
}
