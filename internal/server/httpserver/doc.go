// Package httpserver serves the monitor's HTTP endpoints:
//
//   - GET /metrics: Prometheus exposition
//   - GET /healthz: live document verification result
package httpserver
