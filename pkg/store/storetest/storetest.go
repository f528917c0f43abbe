// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

// Recorder is a store.Handler that logs what it sees as "kind:id" strings.
// Removed is logged as "left" when the document still exists and "deleted"
// otherwise.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *Recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *Recorder) Added(doc store.Document)    { r.add("added:" + doc.ID) }
func (r *Recorder) Modified(doc store.Document) { r.add("modified:" + doc.ID) }
func (r *Recorder) Removed(id string, current *store.Document) {
	if current == nil {
		r.add("deleted:" + id)
		return
	}
	r.add("left:" + id)
}

func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// WaitFor waits until exactly want has been recorded.
func (r *Recorder) WaitFor(t *testing.T, want ...string) {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.Events()) >= len(want) }, 5*time.Second, time.Millisecond)
	assert.Equal(t, want, r.Events())
}

// Document returns a document for id at (lat, lon) hashed at the default precision.
func Document(t *testing.T, id string, lat, lon float64) store.Document {
	t.Helper()
	p := geo.NewPoint(lat, lon)
	hash, err := geohash.Encode(p, geohash.DefaultPrecision)
	require.NoError(t, err)
	return store.Document{ID: id, Location: p, Geohash: hash}
}

// Bay Area prefix; New York sorts outside it.
var bayArea = store.RangeQuery{Range: geohash.Range{Start: "9q", End: "9r"}}

// Run exercises s against the store.Store contract. newStore must return an
// empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("LocationRoundTrip", func(t *testing.T) {
		testLocationRoundTrip(t, newStore(t))
	})
	t.Run("WatchRange", func(t *testing.T) {
		testWatchRange(t, newStore(t))
	})
	t.Run("WatchRangeLimit", func(t *testing.T) {
		testWatchRangeLimit(t, newStore(t))
	})
	t.Run("UnwatchBeforeLoad", func(t *testing.T) {
		testUnwatchBeforeLoad(t, newStore(t))
	})
}

func testLocationRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Location(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	doc := Document(t, "a", 37.7853889, -122.4056973)
	require.NoError(t, s.SetLocation(ctx, doc))

	got, err := s.Location(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	require.NoError(t, s.RemoveLocation(ctx, "a"))
	require.NoError(t, s.RemoveLocation(ctx, "a"))

	_, err = s.Location(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.SetLocation(ctx, store.Document{}), store.ErrInvalidID)
}

func testWatchRange(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.SetLocation(ctx, Document(t, "inside", 37.7853889, -122.4056973)))
	require.NoError(t, s.SetLocation(ctx, Document(t, "outside", 40.7128, -74.0060)))

	rec := &Recorder{}
	w := s.WatchRange(bayArea, rec)
	defer w.Unwatch()
	require.NoError(t, <-w.RequestInitialLoad())
	assert.Equal(t, []string{"added:inside"}, rec.Events())

	require.NoError(t, s.SetLocation(ctx, Document(t, "inside", 37.79, -122.41)))
	rec.WaitFor(t, "added:inside", "modified:inside")

	require.NoError(t, s.SetLocation(ctx, Document(t, "outside", 37.78, -122.40)))
	rec.WaitFor(t, "added:inside", "modified:inside", "added:outside")

	require.NoError(t, s.SetLocation(ctx, Document(t, "inside", 51.5, -0.12)))
	rec.WaitFor(t, "added:inside", "modified:inside", "added:outside", "left:inside")

	require.NoError(t, s.RemoveLocation(ctx, "outside"))
	rec.WaitFor(t, "added:inside", "modified:inside", "added:outside", "left:inside", "deleted:outside")

	w.Unwatch()
	w.Unwatch()
}

func testWatchRangeLimit(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.SetLocation(ctx, Document(t, "a", 37.78, -122.40)))
	require.NoError(t, s.SetLocation(ctx, Document(t, "b", 37.79, -122.41)))
	require.NoError(t, s.SetLocation(ctx, Document(t, "c", 37.80, -122.42)))

	rec := &Recorder{}
	q := bayArea
	q.Limit = 2
	w := s.WatchRange(q, rec)
	defer w.Unwatch()
	require.NoError(t, <-w.RequestInitialLoad())
	assert.Len(t, rec.Events(), 2)
}

func testUnwatchBeforeLoad(t *testing.T, s store.Store) {
	w := s.WatchRange(bayArea, &Recorder{})
	w.Unwatch()

	select {
	case err := <-w.RequestInitialLoad():
		assert.ErrorIs(t, err, store.ErrUnwatched)
	case <-time.After(5 * time.Second):
		t.Fatal("initial load never completed")
	}
}
