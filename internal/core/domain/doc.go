// Package domain defines the core domain models for docguard.
//
// Domain models are plain values without IO dependencies:
//
//   - Document: the persisted client/project/task document
//   - BackupInfo: metadata describing one stored snapshot
//   - Errors: the persistence error taxonomy with stable codes
//
// Record contents are opaque to this package; only the structural
// shape of a Document is interpreted.
package domain
