package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidRecordID = errors.New("invalid record id")

// Table is a SurrealDB table name. It travels as CBOR tag 7.
type Table string

func (t Table) String() string {
	return string(t)
}

// RecordID identifies a record by table and key. It travels as CBOR tag 8
// wrapping the two element array [table, id].
type RecordID struct {
	_     struct{} `cbor:",toarray"`
	Table string
	ID    any
}

func NewRecordID(table string, id any) RecordID {
	return RecordID{Table: table, ID: id}
}

// ParseRecordID parses the "table:id" form. The key is kept as a string.
func ParseRecordID(s string) (*RecordID, error) {
	table, id, ok := strings.Cut(s, ":")
	if !ok || table == "" || id == "" {
		return nil, fmt.Errorf("%w: %q, expected format is 'table:identifier'", ErrInvalidRecordID, s)
	}
	return &RecordID{Table: table, ID: id}, nil
}

// Key returns the record key in its text form.
func (r RecordID) Key() string {
	switch id := r.ID.(type) {
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func (r RecordID) String() string {
	return r.Table + ":" + r.Key()
}
