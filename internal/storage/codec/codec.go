package codec

import (
	"bytes"
	"encoding/json"

	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/core/integrity"
)

var sealMagic = []byte("DGSEAL01")

// Codec encodes documents to stored bytes and back.
type Codec struct {
	sealer Sealer
}

// Option configures a Codec.
type Option func(*Codec)

// WithSealer enables sealing of every encoded blob.
func WithSealer(s Sealer) Option {
	return func(c *Codec) {
		c.sealer = s
	}
}

// New creates a codec. Without options blobs are plain JSON.
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sealed reports whether the codec seals blobs.
func (c *Codec) Sealed() bool {
	return c.sealer != nil
}

// Encode serializes doc as stored bytes. The document is written as is;
// callers refresh the digest first.
func (c *Codec) Encode(doc *domain.Document) ([]byte, error) {
	if doc == nil {
		return nil, domain.ErrStructural.WithDetails("document is nil")
	}
	plain, err := json.Marshal(doc)
	if err != nil {
		return nil, domain.ErrStructural.WithDetails("encode document").WithCause(err)
	}
	if c.sealer == nil {
		return plain, nil
	}
	sealed, err := c.sealer.Seal(plain)
	if err != nil {
		return nil, domain.ErrIO.WithDetails("seal document").WithCause(err)
	}
	out := make([]byte, 0, len(sealMagic)+len(sealed))
	out = append(out, sealMagic...)
	return append(out, sealed...), nil
}

// Open returns the plaintext JSON of a stored blob.
//
// A sealed blob without a configured sealer, a plain blob when sealing is
// configured, and a blob failing authentication are all reported as
// domain.ErrStructural: the bytes cannot be trusted as a document.
func (c *Codec) Open(raw []byte) ([]byte, error) {
	isSealed := bytes.HasPrefix(raw, sealMagic)
	switch {
	case isSealed && c.sealer == nil:
		return nil, domain.ErrStructural.WithDetails("blob is sealed but no encryption key is configured")
	case !isSealed && c.sealer != nil:
		return nil, domain.ErrStructural.WithDetails("expected sealed blob")
	case !isSealed:
		return raw, nil
	}
	plain, err := c.sealer.Unseal(raw[len(sealMagic):])
	if err != nil {
		return nil, domain.ErrStructural.WithDetails("unseal blob").WithCause(err)
	}
	return plain, nil
}

// Decode opens and structurally validates a stored blob. It does not verify
// the digest; see integrity.Verify.
func (c *Codec) Decode(raw []byte) (*domain.Document, error) {
	plain, err := c.Open(raw)
	if err != nil {
		return nil, err
	}
	return integrity.ValidateBytes(plain)
}

// PeekChecksum returns metadata.checksum from a stored blob without
// decoding records. It returns "" if the blob cannot be read.
func (c *Codec) PeekChecksum(raw []byte) string {
	plain, err := c.Open(raw)
	if err != nil {
		return ""
	}
	var head struct {
		Metadata struct {
			Checksum string `json:"checksum"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(plain, &head); err != nil {
		return ""
	}
	return head.Metadata.Checksum
}
