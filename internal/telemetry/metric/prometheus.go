package metric

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yndnr/docguard/internal/core/domain"
)

const namespace = "docguard"

// Recovery outcomes.
const (
	RecoveryRestored  = "restored"
	RecoveryExhausted = "exhausted"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Write path
	Writes         prometheus.Counter
	WriteFailures  *prometheus.CounterVec
	WriteDuration  prometheus.Histogram
	DocumentSize   prometheus.Gauge
	SavesCoalesced prometheus.Counter

	// Backups
	BackupsCreated *prometheus.CounterVec
	BackupsEvicted prometheus.Counter

	// Recovery and verification
	Recoveries      *prometheus.CounterVec
	IntegrityChecks *prometheus.CounterVec
}

// NewRegistry creates a registry with all docguard metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "writes_total",
			Help:      "Documents promoted to live",
		}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "write_failures_total",
			Help:      "Failed persists by error code",
		}, []string{"reason"}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "write_duration_seconds",
			Help:      "Duration of a full persist (stage, verify, snapshot, promote)",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		DocumentSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      "document_size_bytes",
			Help:      "Size of the last promoted document blob",
		}),
		SavesCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "saves_coalesced_total",
			Help:      "Saves superseded by a later save in the same debounce window",
		}),
		BackupsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "created_total",
			Help:      "Backups created by kind",
		}, []string{"kind"}),
		BackupsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backup",
			Name:      "evicted_total",
			Help:      "Backups removed by retention sweeps",
		}),
		Recoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "runs_total",
			Help:      "Recovery runs by outcome",
		}, []string{"outcome"}),
		IntegrityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "integrity_checks_total",
			Help:      "Periodic integrity checks by result",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Writes,
		r.WriteFailures,
		r.WriteDuration,
		r.DocumentSize,
		r.SavesCoalesced,
		r.BackupsCreated,
		r.BackupsEvicted,
		r.Recoveries,
		r.IntegrityChecks,
	)
	return r
}

// Registerer exposes the underlying registry for components that register
// their own collectors (e.g. the Badger backend).
func (r *Registry) Registerer() prometheus.Registerer {
	if r == nil {
		return nil
	}
	return r.registry
}

// Gatherer exposes the underlying registry for tests and exporters.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Gatherer(), promhttp.HandlerOpts{})
}

// ObserveWrite records a persist attempt. size is the promoted blob size and
// is ignored on failure.
func (r *Registry) ObserveWrite(d time.Duration, size int, err error) {
	if r == nil {
		return
	}
	r.WriteDuration.Observe(d.Seconds())
	if err != nil {
		r.WriteFailures.WithLabelValues(reason(err)).Inc()
		return
	}
	r.Writes.Inc()
	r.DocumentSize.Set(float64(size))
}

// BackupCreated records a new backup of kind.
func (r *Registry) BackupCreated(kind domain.BackupKind) {
	if r == nil {
		return
	}
	r.BackupsCreated.WithLabelValues(string(kind)).Inc()
}

// BackupsSwept records backups removed by a retention sweep.
func (r *Registry) BackupsSwept(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.BackupsEvicted.Add(float64(n))
}

// Recovery records a recovery run.
func (r *Registry) Recovery(outcome string) {
	if r == nil {
		return
	}
	r.Recoveries.WithLabelValues(outcome).Inc()
}

// Coalesced records saves superseded within a debounce window.
func (r *Registry) Coalesced(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.SavesCoalesced.Add(float64(n))
}

// IntegrityCheck records the result of a periodic verification: "ok", or the
// error code of the failure.
func (r *Registry) IntegrityCheck(err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = reason(err)
	}
	r.IntegrityChecks.WithLabelValues(result).Inc()
}

// reason maps an error to a bounded label value.
func reason(err error) string {
	if code := domain.GetErrorCode(err); code != "" {
		return code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "unknown"
}
