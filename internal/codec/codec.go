// Package codec holds the serialization contracts shared by the RPC client
// and the fake server used in tests.
package codec

import "io"

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec encodes and decodes in a single wire format.
type Codec interface {
	Marshaler
	Unmarshaler
}
