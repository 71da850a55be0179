package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a persistence error with a structured error code.
//
// Two DomainErrors are considered equal by errors.Is when their codes match,
// so callers compare against the sentinels below regardless of details.
type DomainError struct {
	Code    string // Error code (e.g., "DG-DOC-4000")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Document errors (DOC)
// ============================================================================

var (
	// ErrStructural indicates the document shape is invalid. Nothing was
	// written when this is returned from a write path.
	ErrStructural = NewDomainError("DG-DOC-4000", "document structure invalid")

	// ErrNoDocument indicates no document has ever been stored (first run).
	// It is not a failure: the caller supplies default content.
	ErrNoDocument = NewDomainError("DG-DOC-4041", "no document stored")

	// ErrLiveMissing indicates the live document is gone while backups remain.
	// Unlike ErrNoDocument it calls for recovery.
	ErrLiveMissing = NewDomainError("DG-DOC-4042", "live document missing")

	// ErrChecksumMismatch indicates the stored digest disagrees with the content.
	ErrChecksumMismatch = NewDomainError("DG-DOC-4220", "document checksum mismatch")
)

// ============================================================================
// Write path errors (STG, IO, STO)
// ============================================================================

var (
	// ErrStagingCorrupt indicates the staged bytes failed re-validation.
	// The live document was not touched.
	ErrStagingCorrupt = NewDomainError("DG-STG-5000", "staged document failed verification")

	// ErrIO indicates the backing store failed (permissions, space, device).
	ErrIO = NewDomainError("DG-IO-5030", "storage io failure")

	// ErrClosed indicates the store has been closed.
	ErrClosed = NewDomainError("DG-STO-5031", "store closed")
)

// ============================================================================
// Backup and recovery errors (BAK, REC)
// ============================================================================

var (
	// ErrNotFound indicates an unknown backup id, or no live document to copy.
	ErrNotFound = NewDomainError("DG-BAK-4040", "backup not found")

	// ErrRecoveryExhausted indicates no backup passed validation and digest
	// verification. Distinct from ErrNoDocument.
	ErrRecoveryExhausted = NewDomainError("DG-REC-5001", "recovery exhausted: no valid backup")
)
