package codec

import (
	"encoding/json"
	"errors"
)

// JSON implements Codec using encoding/json.
// This is the default codec, providing human-readable output.
type JSON[P any] struct{}

// Encode serializes a payload to JSON bytes
func (JSON[P]) Encode(payload P) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode deserializes JSON bytes to a payload
func (JSON[P]) Decode(data []byte) (P, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		var zero P
		return zero, errors.Join(ErrDecodeFailure, err)
	}
	return p, nil
}

// ContentType returns the MIME type for JSON
func (JSON[P]) ContentType() string {
	return "application/json"
}

// Name returns the codec identifier
func (JSON[P]) Name() string {
	return "json"
}

// Compile-time check
var _ Codec[int] = JSON[int]{}
