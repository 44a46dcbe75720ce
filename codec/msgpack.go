package codec

import (
	"errors"

	"github.com/vmihailenco/msgpack/v5"
)

// MsgPack implements Codec using MessagePack serialization.
// MessagePack is a binary format that's more compact than JSON
// while maintaining schema-less flexibility. Struct fields honour
// `msgpack:"..."` tags.
type MsgPack[P any] struct{}

// Encode serializes a payload to MessagePack bytes
func (MsgPack[P]) Encode(payload P) ([]byte, error) {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode deserializes MessagePack bytes to a payload
func (MsgPack[P]) Decode(data []byte) (P, error) {
	var p P
	if err := msgpack.Unmarshal(data, &p); err != nil {
		var zero P
		return zero, errors.Join(ErrDecodeFailure, err)
	}
	return p, nil
}

// ContentType returns the MIME type for MessagePack
func (MsgPack[P]) ContentType() string {
	return "application/msgpack"
}

// Name returns the codec identifier
func (MsgPack[P]) Name() string {
	return "msgpack"
}

// Compile-time check
var _ Codec[int] = MsgPack[int]{}
