// Package integrity provides structural validation and content digests
// for documents.
//
// Validation checks the generic JSON form of a document against an
// embedded JSON Schema, so in-memory documents and stored bytes are held
// to the same rules. Digests are lowercase hex SHA-256 over the canonical
// serialization of a document with metadata.checksum cleared.
package integrity
