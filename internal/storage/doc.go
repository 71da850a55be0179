// Package storage is the persistence adapter for the single application
// document.
//
// A Store ties the pieces together:
//
//   - queue: debounced, single-flight saves
//   - writer: stage, verify, snapshot live, promote
//   - backup: backup creation, listing and retention
//   - recovery: newest-valid-backup fallback when live is unusable
//
// Physical storage is pluggable through backend.Backend; OpenBackend
// selects the filesystem, badger, sqlite or in-memory implementation.
package storage
