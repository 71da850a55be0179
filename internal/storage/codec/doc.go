// Package codec serializes documents into the bytes stored by backends.
//
// Plain blobs are the document's JSON. When a Sealer is configured, blobs
// are sealed with authenticated encryption:
//
//	[magic:8 "DGSEAL01"][nonce][ciphertext+tag]
//
// Digests are always computed over the plaintext canonical JSON, so sealing
// does not change a document's checksum.
package codec
