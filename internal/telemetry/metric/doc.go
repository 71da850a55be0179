// Package metric provides Prometheus metrics for docguard.
//
//   - prometheus.go: registry of persistence metrics and HTTP handler
//   - collector.go: scrape-time collector for store statistics
//
// All Registry methods are safe on a nil *Registry, so components can be
// built without metrics.
//
// Metrics are exposed at /metrics by the monitor command.
package metric
