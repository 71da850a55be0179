package integrity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yndnr/docguard/internal/core/domain"
)

// Validate returns nil if doc is structurally valid: version is an integer,
// clients/projects/tasks are arrays of objects, and config and metadata are
// objects. Otherwise it returns domain.ErrStructural with the failing path.
func Validate(doc *domain.Document) error {
	if doc == nil {
		return domain.ErrStructural.WithDetails("document is nil")
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return domain.ErrStructural.WithDetails("document is not serializable").WithCause(err)
	}
	_, err = ValidateBytes(data)
	return err
}

// ValidateBytes decodes stored JSON bytes and validates them.
//
// Numbers inside records are decoded as json.Number so they re-serialize
// exactly and digests stay stable across load/save cycles.
func ValidateBytes(raw []byte) (*domain.Document, error) {
	generic, err := decodeGeneric(raw)
	if err != nil {
		return nil, domain.ErrStructural.WithDetails("invalid json").WithCause(err)
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, schemaError(err)
	}

	var doc domain.Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, domain.ErrStructural.WithDetails("decode document").WithCause(err)
	}
	return &doc, nil
}

func decodeGeneric(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after document")
	}
	return v, nil
}

// schemaError converts a jsonschema failure into ErrStructural, reporting
// the first leaf cause.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return domain.ErrStructural.WithCause(err)
	}
	leaf := firstLeaf(ve)
	location := leaf.InstanceLocation
	if location == "" {
		location = "/"
	}
	return domain.ErrStructural.WithDetails(location + ": " + leaf.Message)
}

func firstLeaf(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
