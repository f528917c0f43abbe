package models

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/surrealdb/surrealgeo/internal/codec"
)

// CBOR tag numbers used by the SurrealDB RPC protocol.
//
// See https://surrealdb.com/docs/surrealdb/integration/cbor
const (
	TagNone           uint64 = 6
	TagTable          uint64 = 7
	TagRecordID       uint64 = 8
	TagSpecBinaryUUID uint64 = 37
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	tags := cbor.NewTagSet()
	opts := cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired}
	if err := tags.Add(opts, reflect.TypeOf(RecordID{}), TagRecordID); err != nil {
		panic(err)
	}
	if err := tags.Add(opts, reflect.TypeOf(Table("")), TagTable); err != nil {
		panic(err)
	}

	var err error
	encMode, err = cbor.EncOptions{
		Time:    cbor.TimeRFC3339,
		TimeTag: cbor.EncTagRequired,
	}.EncModeWithTags(tags)
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{
		TimeTagToAny:   cbor.TimeTagToTime,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecModeWithTags(tags)
	if err != nil {
		panic(err)
	}
}

// CborMarshaler encodes values the way SurrealDB expects them on the wire.
type CborMarshaler struct{}

func (CborMarshaler) Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (CborMarshaler) NewEncoder(w io.Writer) codec.Encoder {
	return encMode.NewEncoder(w)
}

// CborUnmarshaler decodes SurrealDB CBOR payloads. Maps decode to
// map[string]any when the destination is an interface.
type CborUnmarshaler struct{}

func (CborUnmarshaler) Unmarshal(data []byte, dst any) error {
	return decMode.Unmarshal(data, dst)
}

func (CborUnmarshaler) NewDecoder(r io.Reader) codec.Decoder {
	return decMode.NewDecoder(r)
}

// Codec bundles both directions for callers that need one value.
type Codec struct {
	CborMarshaler
	CborUnmarshaler
}

// NewCodec returns the SurrealDB CBOR codec.
func NewCodec() Codec {
	return Codec{}
}
