// Package logger provides structured logging for docguard.
//
// It configures the standard library log/slog:
//
//   - logger.go: handler construction and dynamic level
//   - context.go: context propagation and per-operation enrichment
//   - redact.go: sensitive data redaction
//
// Components receive a *slog.Logger; the CLI builds one from configuration
// and stores it in the command context.
package logger
