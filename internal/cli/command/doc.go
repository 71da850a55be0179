// Package command implements the docguard CLI commands:
//
//   - show, import, export, verify, size, clear: document operations
//   - backup create|list|restore: backup management
//   - monitor: periodic verification, recovery and /metrics
//   - version: build information
package command
