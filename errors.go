package surrealgeo

import (
	"errors"
	"fmt"

	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

var (
	ErrInvalidLatitude  = geo.ErrInvalidLatitude
	ErrInvalidLongitude = geo.ErrInvalidLongitude
	ErrInvalidRadius    = geo.ErrInvalidRadius
	ErrInvalidRegion    = geo.ErrInvalidRegion
	ErrInvalidPrecision = geohash.ErrInvalidPrecision
	ErrInvalidID        = store.ErrInvalidID
	ErrNotFound         = store.ErrNotFound
)

var (
	ErrInvalidLimit     = errors.New("limit must not be negative")
	ErrInvalidEventType = errors.New("unknown event type")
	ErrNilCallback      = errors.New("callback must not be nil")
	ErrNotCircleQuery   = errors.New("query is not a circle query")
	ErrNilStore         = errors.New("store must not be nil")
)

// ConsistencyError is the panic value raised when the query's watch map no
// longer matches its active ranges. It is always a bug in this package.
type ConsistencyError struct {
	Op    string
	Range store.RangeQuery
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("BUG: %s: no watch registered for range %s (limit %d)", e.Op, e.Range.Range, e.Range.Limit)
}
