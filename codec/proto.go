package codec

import (
	"errors"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Proto implements Codec for payloads that are generated protobuf messages.
// P is the pointer type, e.g. Proto[*orderpb.Created].
type Proto[P proto.Message] struct{}

// Encode serializes a payload to Protocol Buffer bytes
func (Proto[P]) Encode(payload P) ([]byte, error) {
	data, err := proto.Marshal(payload)
	if err != nil {
		return nil, errors.Join(ErrEncodeFailure, err)
	}
	return data, nil
}

// Decode deserializes Protocol Buffer bytes to a fresh message
func (Proto[P]) Decode(data []byte) (P, error) {
	var zero P
	p, ok := zero.ProtoReflect().Type().New().Interface().(P)
	if !ok {
		return zero, ErrDecodeFailure
	}
	if err := proto.Unmarshal(data, p); err != nil {
		return zero, errors.Join(ErrDecodeFailure, err)
	}
	return p, nil
}

// ContentType returns the MIME type for Protocol Buffers
func (Proto[P]) ContentType() string {
	return "application/x-protobuf"
}

// Name returns the codec identifier
func (Proto[P]) Name() string {
	return "proto"
}

// Compile-time check
var _ Codec[*wrapperspb.StringValue] = Proto[*wrapperspb.StringValue]{}
