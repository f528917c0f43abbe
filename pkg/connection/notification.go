package connection

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/surrealdb/surrealgeo/pkg/models"
)

type Notification struct {
	ID     *models.UUID    `json:"id,omitempty" cbor:"id,omitempty"`
	Action Action          `json:"action" cbor:"action"`
	Result cbor.RawMessage `json:"result" cbor:"result"`
}

type Action string

const (
	CreateAction Action = "CREATE"
	UpdateAction Action = "UPDATE"
	DeleteAction Action = "DELETE"
	KilledAction Action = "KILLED"
)
