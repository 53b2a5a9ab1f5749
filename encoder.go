package leaseq

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Encoder defines the interface for task payload serialization.
type Encoder interface {
	// Encode serializes a value to bytes.
	Encode(any) ([]byte, error)
	// Decode deserializes bytes to a value.
	Decode([]byte, any) error
}

// JSONEncoder is the default Encoder. It uses the standard library for
// encoding and sonic for decoding.
type JSONEncoder struct{}

// Encode serializes a value to JSON. Raw byte slices are stored as-is.
func (*JSONEncoder) Encode(v any) ([]byte, error) {
	if b, ok := v.([]byte); ok {
		return b, nil
	}
	return json.Marshal(v)
}

// Decode deserializes JSON bytes using sonic.
func (*JSONEncoder) Decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
