package models

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofrs/uuid"
)

// UUID is a SurrealDB uuid value, encoded as CBOR tag 37 over the 16 raw
// bytes. Live query ids use it.
//
// [CBOR tag documentation]: https://surrealdb.com/docs/surrealdb/integration/cbor#tag-37
type UUID struct {
	uuid.UUID
}

// NewUUID returns a random version 4 UUID.
func NewUUID() (UUID, error) {
	u, err := uuid.NewV4()
	if err != nil {
		return UUID{}, err
	}
	return UUID{UUID: u}, nil
}

// UUIDFromTag converts a generic tag 37 value, as produced when decoding into
// an interface, into a UUID.
func UUIDFromTag(v any) (UUID, error) {
	switch t := v.(type) {
	case UUID:
		return t, nil
	case *UUID:
		return *t, nil
	case cbor.Tag:
		if t.Number != TagSpecBinaryUUID {
			return UUID{}, fmt.Errorf("unexpected tag number for UUID: got %d, want %d", t.Number, TagSpecBinaryUUID)
		}
		b, ok := t.Content.([]byte)
		if !ok {
			return UUID{}, fmt.Errorf("UUID tag content must be byte string, got %T", t.Content)
		}
		return uuidFromBytes(b)
	case string:
		u, err := uuid.FromString(t)
		if err != nil {
			return UUID{}, fmt.Errorf("failed to parse UUID string: %w", err)
		}
		return UUID{UUID: u}, nil
	default:
		return UUID{}, fmt.Errorf("cannot convert %T to UUID", v)
	}
}

func (u UUID) MarshalCBOR() ([]byte, error) {
	return encMode.Marshal(cbor.Tag{
		Number:  TagSpecBinaryUUID,
		Content: u.Bytes(),
	})
}

func (u *UUID) UnmarshalCBOR(data []byte) error {
	var tag cbor.Tag
	if err := decMode.Unmarshal(data, &tag); err != nil {
		return err
	}
	parsed, err := UUIDFromTag(tag)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

func uuidFromBytes(b []byte) (UUID, error) {
	if len(b) != uuid.Size {
		return UUID{}, fmt.Errorf("UUID must be exactly %d bytes, got %d", uuid.Size, len(b))
	}
	parsed, err := uuid.FromBytes(b)
	if err != nil {
		return UUID{}, fmt.Errorf("failed to parse UUID bytes: %w", err)
	}
	return UUID{UUID: parsed}, nil
}
