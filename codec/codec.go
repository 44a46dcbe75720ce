// Package codec provides payload serialization for the network buses.
//
// Supported formats:
//   - JSON (default, human-readable)
//   - MessagePack (binary, compact)
//   - Protocol Buffers (binary, schema-based)
//
// The bus contracts define no wire format; a codec only matters where a
// payload leaves the process.
package codec

import "errors"

// Codec errors
var (
	ErrEncodeFailure = errors.New("failed to encode payload")
	ErrDecodeFailure = errors.New("failed to decode payload")
)

// Codec converts payloads of type P to and from bytes.
// Implementations must be safe for concurrent use.
type Codec[P any] interface {
	// Encode serializes a payload.
	// Returns an error wrapping ErrEncodeFailure if serialization fails.
	Encode(payload P) ([]byte, error)

	// Decode deserializes a payload.
	// Returns an error wrapping ErrDecodeFailure if deserialization fails.
	Decode(data []byte) (P, error)

	// ContentType returns the MIME type for this codec (e.g., "application/json").
	ContentType() string

	// Name returns a short identifier for this codec (e.g., "json", "msgpack", "proto").
	Name() string
}

// Default returns the default codec (JSON)
func Default[P any]() Codec[P] {
	return JSON[P]{}
}
