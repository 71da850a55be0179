package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/yndnr/docguard/internal/core/domain"
)

// Canonical returns the canonical serialization used for digests: the
// document with metadata.checksum cleared, struct fields in declaration
// order and map keys sorted.
func Canonical(doc *domain.Document) ([]byte, error) {
	if doc == nil {
		return nil, domain.ErrStructural.WithDetails("document is nil")
	}
	data, err := json.Marshal(doc.WithoutChecksum())
	if err != nil {
		return nil, domain.ErrStructural.WithDetails("document is not serializable").WithCause(err)
	}
	return data, nil
}

// Digest computes the content digest of doc.
func Digest(doc *domain.Document) (string, error) {
	data, err := Canonical(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether doc's stored checksum matches its content.
func Verify(doc *domain.Document) bool {
	if doc == nil || doc.Metadata.Checksum == "" {
		return false
	}
	sum, err := Digest(doc)
	if err != nil {
		return false
	}
	return sum == doc.Metadata.Checksum
}

// RefreshDigest returns a copy of doc with metadata.checksum set to the
// freshly computed digest. doc itself is not modified.
func RefreshDigest(doc *domain.Document) (*domain.Document, error) {
	sum, err := Digest(doc)
	if err != nil {
		return nil, err
	}
	out := doc.Clone()
	out.Metadata.Checksum = sum
	return out, nil
}
