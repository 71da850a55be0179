// Package backend defines the physical storage primitives shared by every
// document store variant.
//
// A backend holds three kinds of blobs: the live document, a single staging
// slot, and any number of backups keyed by id. Backends never interpret the
// bytes they hold; validation, digests and retention live above them.
//
// Implementations must make Promote indivisible: after a crash, ReadLive
// returns either the previous live bytes or the promoted staging bytes,
// never a mixture.
package backend

import (
	"context"
	"errors"
	"regexp"
)

// ErrNotFound is returned when the requested slot or backup does not exist.
var ErrNotFound = errors.New("backend: not found")

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("backend: closed")

// ErrInvalidID is returned for backup ids outside the accepted alphabet.
var ErrInvalidID = errors.New("backend: invalid backup id")

// BackupEntry is a cheap listing record for one stored backup.
type BackupEntry struct {
	ID   string
	Size int64
}

// Backend is the physical storage contract.
//
// All methods are safe for concurrent use. Callers serialize writers; the
// backend only guarantees that reads observe whole blobs.
type Backend interface {
	// Name identifies the variant ("fs", "badger", "sqlite", "memory").
	Name() string

	// ReadLive returns the live blob, or ErrNotFound.
	ReadLive(ctx context.Context) ([]byte, error)

	// WriteStaging durably replaces the staging slot.
	WriteStaging(ctx context.Context, data []byte) error

	// ReadStaging returns the staging blob, or ErrNotFound.
	ReadStaging(ctx context.Context) ([]byte, error)

	// DiscardStaging removes the staging slot. Missing staging is not an error.
	DiscardStaging(ctx context.Context) error

	// Promote replaces live with staging in one indivisible step and clears
	// staging. Returns ErrNotFound if staging is empty.
	Promote(ctx context.Context) error

	// PutBackup stores a backup blob under id.
	PutBackup(ctx context.Context, id string, data []byte) error

	// GetBackup returns a backup blob, or ErrNotFound.
	GetBackup(ctx context.Context, id string) ([]byte, error)

	// DeleteBackup removes a backup, or returns ErrNotFound.
	DeleteBackup(ctx context.Context, id string) error

	// ListBackups returns all backups sorted by id ascending.
	ListBackups(ctx context.Context) ([]BackupEntry, error)

	// Clear removes live, staging and every backup.
	Clear(ctx context.Context) error

	// Size returns the bytes occupied by live plus all backups.
	Size(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}

var idPattern = regexp.MustCompile(`^[0-9a-z][0-9a-z_-]{0,127}$`)

// ValidID reports whether id may be used as a backup key. Ids are restricted
// so they are safe as file names and key suffixes.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// CheckID returns ErrInvalidID when id is not a valid backup key.
func CheckID(id string) error {
	if !ValidID(id) {
		return ErrInvalidID
	}
	return nil
}
