package domain

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// BackupKind distinguishes automatic pre-write snapshots from manual ones.
type BackupKind string

const (
	// BackupAuto is taken by the writer before replacing the live document.
	BackupAuto BackupKind = "auto"

	// BackupManual is taken on demand.
	BackupManual BackupKind = "manual"
)

// Valid reports whether k is a known backup kind.
func (k BackupKind) Valid() bool {
	return k == BackupAuto || k == BackupManual
}

// BackupInfo describes one stored snapshot.
type BackupInfo struct {
	// ID is "{ulid_lowercase}-{kind}". Lexicographic order is chronological.
	ID string `json:"id" yaml:"id"`

	// Timestamp is derived from the ULID embedded in ID.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// Size is the stored size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// Checksum is the snapshot's metadata.checksum, empty if unreadable.
	Checksum string `json:"checksum" yaml:"checksum"`

	Kind BackupKind `json:"kind" yaml:"kind"`
}

// ulidLength is the length of a Crockford base32 encoded ULID.
const ulidLength = 26

// GenerateBackupID builds a backup identifier for t using the given entropy
// source. Callers sharing an entropy source must serialize calls.
func GenerateBackupID(t time.Time, kind BackupKind, entropy io.Reader) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("invalid backup kind %q", kind)
	}
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", ErrIO.WithDetails("generate backup id").WithCause(err)
	}
	return strings.ToLower(id.String()) + "-" + string(kind), nil
}

// ParseBackupID extracts the timestamp and kind from a backup identifier.
func ParseBackupID(id string) (time.Time, BackupKind, error) {
	if len(id) <= ulidLength+1 || id[ulidLength] != '-' {
		return time.Time{}, "", fmt.Errorf("malformed backup id %q", id)
	}
	kind := BackupKind(id[ulidLength+1:])
	if !kind.Valid() {
		return time.Time{}, "", fmt.Errorf("unknown backup kind in id %q", id)
	}
	u, err := ulid.ParseStrict(strings.ToUpper(id[:ulidLength]))
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse backup id %q: %w", id, err)
	}
	return ulid.Time(u.Time()).UTC(), kind, nil
}

// IsValidBackupID reports whether id is a well-formed backup identifier.
func IsValidBackupID(id string) bool {
	_, _, err := ParseBackupID(id)
	return err == nil
}
