package confloader

import (
	"errors"
	"strings"
)

// ErrReadBytesNotSupported is returned when ReadBytes is called on a map provider.
var ErrReadBytesNotSupported = errors.New("confloader: map provider has no byte form")

// mapProvider is a koanf provider over dotted key/value pairs. koanf calls
// Read for providers loaded without a parser.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

// Read unflattens the dotted keys into nested maps.
func (m mapProvider) Read() (map[string]any, error) {
	out := make(map[string]any)
	for key, value := range m {
		insert(out, key, value)
	}
	return out, nil
}

func insert(dst map[string]any, key string, value any) {
	for {
		head, rest, ok := strings.Cut(key, ".")
		if !ok {
			dst[key] = value
			return
		}
		child, ok := dst[head].(map[string]any)
		if !ok {
			child = make(map[string]any)
			dst[head] = child
		}
		dst, key = child, rest
	}
}
