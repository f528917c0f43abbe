// Package store defines the boundary between the subscription engine and a
// keyed document store that can watch ordered geohash ranges.
package store

import (
	"context"
	"errors"

	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/geohash"
)

var (
	ErrNotFound  = errors.New("location not found")
	ErrUnwatched = errors.New("watch was removed before its initial load completed")
	ErrInvalidID = errors.New("document id must not be empty")
)

// Document is one entity location record. Stores persist it as
// {"g": Geohash, "l": [Latitude, Longitude]} keyed by ID.
type Document struct {
	ID       string
	Location geo.Point
	Geohash  string
}

// RangeQuery selects every document whose geohash falls in Range, ordered by
// geohash. A Limit greater than zero bounds the initial load.
type RangeQuery struct {
	Range geohash.Range
	Limit int
}

// Handler receives the changes observed by one Watch.
type Handler interface {
	// Added is called when a document appears in the watched range,
	// including once per document of the initial load.
	Added(doc Document)
	// Modified is called when a document already in the range is updated.
	Modified(doc Document)
	// Removed is called when a document leaves the range. current is the
	// document as it now exists in the store, or nil if it was deleted.
	Removed(id string, current *Document)
}

// Watch is a live subscription to one RangeQuery.
type Watch interface {
	// RequestInitialLoad delivers the documents currently in range as Added
	// changes and then reports completion exactly once on the returned channel.
	RequestInitialLoad() <-chan error
	// Unwatch stops delivery. It is safe to call more than once.
	Unwatch()
}

// Store is implemented by memstore, surrealstore and redisstore.
//
// Implementations must never call a Handler synchronously from WatchRange,
// RequestInitialLoad or Unwatch, and must deliver the changes of one Watch in
// order.
type Store interface {
	SetLocation(ctx context.Context, doc Document) error
	// Location returns ErrNotFound when no document exists for id.
	Location(ctx context.Context, id string) (Document, error)
	RemoveLocation(ctx context.Context, id string) error
	WatchRange(q RangeQuery, h Handler) Watch
}

// Contains reports whether doc is selected by q.
func (q RangeQuery) Contains(doc *Document) bool {
	return doc != nil && q.Range.Contains(doc.Geohash)
}
