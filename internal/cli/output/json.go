package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// JSONFormatter writes data as two-space indented JSON followed by a newline.
// HTML characters are not escaped, so names such as "R&D <ops>" are written as
// stored.
type JSONFormatter struct{}

// Format encodes data to w.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	raw, err := MarshalJSON(data)
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}

// MarshalJSON returns the bytes JSONFormatter would write for data.
func MarshalJSON(data any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return buf.Bytes(), nil
}
