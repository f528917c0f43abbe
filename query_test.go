package surrealgeo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

func TestQueryRejectsInvalidCriteria(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)

	_, err := g.QueryAtLocation(geo.NewPoint(95, 0), 1)
	assert.ErrorIs(t, err, ErrInvalidLatitude)

	_, err = g.QueryAtLocation(geo.NewPoint(0, 181), 1)
	assert.ErrorIs(t, err, ErrInvalidLongitude)

	_, err = g.QueryAtLocation(sanFrancisco, -1)
	assert.ErrorIs(t, err, ErrInvalidRadius)

	_, err = g.QueryInRegion(geo.NewRectangle(10, 0, 5, 1))
	assert.ErrorIs(t, err, ErrInvalidRegion)

	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, q.SetCenter(geo.NewPoint(95, 0)), ErrInvalidLatitude)
	assert.ErrorIs(t, q.SetRadius(-1), ErrInvalidRadius)
	assert.ErrorIs(t, q.SetLimit(-1), ErrInvalidLimit)
	assert.ErrorIs(t, q.SetRegion(nil), ErrInvalidRegion)

	_, err = q.Observe(EventType(7), func(string, geo.Point) {})
	assert.ErrorIs(t, err, ErrInvalidEventType)
	_, err = q.Observe(Entered, nil)
	assert.ErrorIs(t, err, ErrNilCallback)
	_, err = q.ObserveReady(nil)
	assert.ErrorIs(t, err, ErrNilCallback)

	assert.Empty(t, fs.all(), "no watch may be registered for rejected input")
	assert.Equal(t, sanFrancisco, q.Center())
	assert.Equal(t, 1.0, q.Radius())
}

func TestQueryNotCircle(t *testing.T) {
	g := newTestGeoStore(t, &fakeStore{})
	rect := geo.NewRectangle(37.77, -122.42, 37.78, -122.41)
	q, err := g.QueryInRegion(rect)
	require.NoError(t, err)

	assert.ErrorIs(t, q.SetCenter(sanFrancisco), ErrNotCircleQuery)
	assert.ErrorIs(t, q.SetRadius(2), ErrNotCircleQuery)
	assert.Equal(t, rect, q.Region())
	assert.Equal(t, rect.Center(), q.Center())
	assert.Zero(t, q.Radius())
}

func TestObserveStartsWatches(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	assert.Empty(t, fs.all())

	log := &eventLog{}
	_, err = q.Observe(Entered, log.observer(Entered))
	require.NoError(t, err)

	want := geohash.CoverPrecision(geo.NewCircle(sanFrancisco, 1000), geohash.DefaultPrecision)
	watches := fs.all()
	require.Len(t, watches, len(want))
	for _, w := range watches {
		assert.Contains(t, want, w.query.Range)
		assert.Equal(t, 1, w.loads())
	}

	// A second observer reuses the running watches.
	_, err = q.Observe(Exited, log.observer(Exited))
	require.NoError(t, err)
	assert.Len(t, fs.all(), len(want))
	assert.Equal(t, 2, q.TotalObserverCount())
}

func TestReconcileIsIdempotent(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	observeAll(t, q, &eventLog{})

	before := fs.all()
	require.NoError(t, q.SetCenter(sanFrancisco))
	require.NoError(t, q.SetRadius(1))
	require.NoError(t, q.SetRegion(geo.NewCircle(sanFrancisco, 1000)))
	require.NoError(t, q.SetLimit(0))

	assert.Equal(t, before, fs.all())
	for _, w := range before {
		assert.Zero(t, w.unwatchCount())
	}
}

func TestApplyRangesDiff(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	a := store.RangeQuery{Range: geohash.Range{Start: "9q8a", End: "9q8b"}}
	b := store.RangeQuery{Range: geohash.Range{Start: "9q8b", End: "9q8c"}}
	c := store.RangeQuery{Range: geohash.Range{Start: "9q8c", End: "9q8d"}}
	d := store.RangeQuery{Range: geohash.Range{Start: "9q8d", End: "9q8e"}}

	q.mu.Lock()
	q.applyRanges([]store.RangeQuery{a, b, c})
	q.mu.Unlock()
	first := fs.all()
	require.Len(t, first, 3)

	q.mu.Lock()
	q.applyRanges([]store.RangeQuery{b, c, d})
	q.mu.Unlock()

	all := fs.all()
	require.Len(t, all, 4, "exactly one watch is created")
	assert.Equal(t, d, all[3].query)
	for _, w := range first {
		if w.query == a {
			assert.Equal(t, 1, w.unwatchCount())
		} else {
			assert.Zero(t, w.unwatchCount())
		}
	}
	assert.Equal(t, []store.RangeQuery{b, c, d}, fs.liveQueries())
}

func TestApplyRangesPanicsOnMissingWatch(t *testing.T) {
	g := newTestGeoStore(t, &fakeStore{})
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	a := store.RangeQuery{Range: geohash.Range{Start: "9q8a", End: "9q8b"}}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.applyRanges([]store.RangeQuery{a})
	delete(q.watches, a)

	defer func() {
		r := recover()
		var consistency *ConsistencyError
		require.True(t, errors.As(r.(error), &consistency))
		assert.Equal(t, a, consistency.Range)
	}()
	q.applyRanges(nil)
	t.Fatal("expected a panic")
}

func TestReadyAfterAllInitialLoads(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	log := &eventLog{}
	_, err = q.ObserveReady(log.ready)
	require.NoError(t, err)

	watches := fs.live()
	require.NotEmpty(t, watches)
	for _, w := range watches[1:] {
		w.complete(nil)
	}
	time.Sleep(20 * time.Millisecond)
	flush(t, g)
	assert.Zero(t, log.count(readyEvent))
	assert.False(t, q.IsReady())

	watches[0].complete(nil)
	require.Eventually(t, q.IsReady, time.Second, time.Millisecond)
	flush(t, g)
	assert.Equal(t, 1, log.count(readyEvent))

	late := &eventLog{}
	_, err = q.ObserveReady(late.ready)
	require.NoError(t, err)
	flush(t, g)
	assert.Equal(t, 1, late.count(readyEvent))
	assert.Equal(t, 1, log.count(readyEvent), "existing observers are not fired again")
}

func TestReadyFiresAgainAfterCriteriaChange(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	log := &eventLog{}
	_, err = q.ObserveReady(log.ready)
	require.NoError(t, err)
	fs.completeAll()
	require.Eventually(t, q.IsReady, time.Second, time.Millisecond)

	require.NoError(t, q.SetCenter(newYork))
	assert.False(t, q.IsReady())
	fs.completeAll()
	require.Eventually(t, q.IsReady, time.Second, time.Millisecond)
	flush(t, g)
	assert.Equal(t, 2, log.count(readyEvent))
}

func TestReadyFiresAgainWhenRangesAreReused(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	log := &eventLog{}
	_, err = q.ObserveReady(log.ready)
	require.NoError(t, err)
	fs.completeAll()
	require.Eventually(t, q.IsReady, time.Second, time.Millisecond)
	flush(t, g)
	require.Equal(t, 1, log.count(readyEvent))
	before := fs.all()

	nudged := geo.NewPoint(sanFrancisco.Latitude+0.00001, sanFrancisco.Longitude)
	require.NoError(t, q.SetCenter(nudged))
	flush(t, g)
	assert.Equal(t, before, fs.all(), "no range is rewatched")
	assert.True(t, q.IsReady())
	assert.Equal(t, 2, log.count(readyEvent))

	q.mu.Lock()
	same := make([]store.RangeQuery, 0, len(q.active))
	for r := range q.active {
		same = append(same, r)
	}
	q.applyRanges(same)
	q.mu.Unlock()
	flush(t, g)
	assert.Equal(t, before, fs.all())
	assert.Equal(t, 3, log.count(readyEvent))
}

func TestInitialLoadFailureKeepsQueryPending(t *testing.T) {
	fs := &fakeStore{}
	var failed []store.RangeQuery
	done := make(chan struct{}, 16)
	g := newTestGeoStore(t, fs, WithWatchErrorHandler(func(q store.RangeQuery, err error) {
		failed = append(failed, q)
		done <- struct{}{}
	}))
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	log := &eventLog{}
	_, err = q.ObserveReady(log.ready)
	require.NoError(t, err)

	watches := fs.live()
	watches[0].complete(errors.New("boom"))
	for _, w := range watches[1:] {
		w.complete(nil)
	}
	<-done
	time.Sleep(20 * time.Millisecond)
	flush(t, g)

	assert.False(t, q.IsReady())
	assert.Zero(t, log.count(readyEvent))
	assert.Equal(t, []store.RangeQuery{watches[0].query}, failed)
}

func TestEnteredAndExitedAlternate(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	log := &eventLog{}
	observeAll(t, q, log)

	w := fs.watchFor(t, nearby)
	steps := []geo.Point{nearby, nearby, farther, farther, nearby, sanFrancisco, farther, newYork, nearby}
	for _, p := range steps {
		w.upsert(t, "car", p)
	}
	flush(t, g)

	assert.Equal(t, []string{
		"entered:car",
		"exited:car",
		"entered:car",
		"moved:car",
		"exited:car",
		"entered:car",
	}, log.snapshot())

	last := ""
	for _, e := range log.snapshot() {
		if e == "moved:car" {
			continue
		}
		assert.NotEqual(t, last, e)
		last = e
	}
}

func TestUpsertOutsideRegionIsSilent(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	log := &eventLog{}
	observeAll(t, q, log)

	w := fs.watchFor(t, nearby)
	w.upsert(t, "bike", farther)
	w.upsert(t, "bike", geo.NewPoint(farther.Latitude+0.001, farther.Longitude))
	flush(t, g)
	assert.Empty(t, log.snapshot())
}

func TestRemovalWhileStillCoveredIsSuppressed(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	log := &eventLog{}
	observeAll(t, q, log)

	w := fs.watchFor(t, nearby)
	w.upsert(t, "car", nearby)
	current := store.Document{ID: "car", Location: sanFrancisco, Geohash: mustEncode(t, sanFrancisco)}
	w.handler.Removed("car", &current)
	flush(t, g)
	assert.Equal(t, []string{"entered:car"}, log.snapshot())

	fs.watchFor(t, sanFrancisco).upsert(t, "car", sanFrancisco)
	flush(t, g)
	assert.Equal(t, []string{"entered:car", "moved:car"}, log.snapshot())
}

func TestRemovalFiresExitedOnce(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	log := &eventLog{}
	observeAll(t, q, log)

	w := fs.watchFor(t, nearby)
	w.upsert(t, "deleted", nearby)
	w.upsert(t, "moved-away", nearby)
	w.upsert(t, "never-inside", farther)

	w.handler.Removed("deleted", nil)
	w.handler.Removed("deleted", nil)
	away := store.Document{ID: "moved-away", Location: newYork, Geohash: mustEncode(t, newYork)}
	w.handler.Removed("moved-away", &away)
	w.handler.Removed("never-inside", nil)
	w.handler.Removed("unknown", nil)
	flush(t, g)

	assert.Equal(t, []string{
		"entered:deleted",
		"entered:moved-away",
		"exited:deleted",
		"exited:moved-away",
	}, log.snapshot())

	q.mu.Lock()
	assert.Empty(t, q.locations)
	q.mu.Unlock()
}

func TestEnteredObserverReplaysCurrentMembers(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	first := &eventLog{}
	observeAll(t, q, first)

	w := fs.watchFor(t, nearby)
	w.upsert(t, "b", nearby)
	w.upsert(t, "a", sanFrancisco)
	w.upsert(t, "outside", farther)
	flush(t, g)

	late := &eventLog{}
	_, err = q.Observe(Entered, late.observer(Entered))
	require.NoError(t, err)
	flush(t, g)

	assert.Equal(t, []string{"entered:a", "entered:b"}, late.snapshot())
	assert.Len(t, first.snapshot(), 2)

	// Other kinds do not replay.
	moved := &eventLog{}
	_, err = q.Observe(Moved, moved.observer(Moved))
	require.NoError(t, err)
	flush(t, g)
	assert.Empty(t, moved.snapshot())
}

func TestCriteriaChangeReevaluatesMembers(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	log := &eventLog{}
	observeAll(t, q, log)

	fs.watchFor(t, nearby).upsert(t, "car", nearby)
	fs.watchFor(t, sanFrancisco).upsert(t, "van", sanFrancisco)
	flush(t, g)

	// Shrinking the circle to 100 m leaves only "van" inside.
	require.NoError(t, q.SetRadius(0.1))
	flush(t, g)
	assert.Equal(t, []string{"entered:car", "entered:van", "exited:car"}, log.snapshot())

	// Moving the query away exits the records still inside, then drops them.
	require.NoError(t, q.SetCenter(newYork))
	flush(t, g)
	assert.Equal(t, []string{"entered:car", "entered:van", "exited:car", "exited:van"}, log.snapshot())

	q.mu.Lock()
	assert.Empty(t, q.locations)
	q.mu.Unlock()
}

func TestRemoveAllObserversTearsDown(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	log := &eventLog{}
	observeAll(t, q, log)
	fs.completeAll()

	old := fs.watchFor(t, nearby)
	old.upsert(t, "car", nearby)
	flush(t, g)
	generation := fs.all()

	q.RemoveAllObservers()
	assert.Zero(t, q.TotalObserverCount())
	assert.False(t, q.IsReady())
	assert.Empty(t, fs.live())
	for _, w := range generation {
		assert.Equal(t, 1, w.unwatchCount())
	}

	// Notifications in flight for the old watches are dropped.
	old.upsert(t, "ghost", nearby)
	old.handler.Removed("car", nil)

	rebuilt := &eventLog{}
	observeAll(t, q, rebuilt)
	flush(t, g)
	assert.Empty(t, rebuilt.snapshot())
	assert.Len(t, fs.live(), len(generation))
	assert.Len(t, fs.all(), 2*len(generation))

	old.upsert(t, "ghost", nearby)
	fs.watchFor(t, nearby).upsert(t, "fresh", nearby)
	flush(t, g)
	assert.Equal(t, []string{"entered:car"}, log.snapshot())
	assert.Equal(t, []string{"entered:fresh"}, rebuilt.snapshot())
}

func TestRemovingLastObserverTearsDown(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	h1, err := q.Observe(Entered, func(string, geo.Point) {})
	require.NoError(t, err)
	h2, err := q.ObserveReady(func() {})
	require.NoError(t, err)
	assert.Greater(t, h2, h1)

	q.RemoveObserver(h1)
	assert.NotEmpty(t, fs.live())
	q.RemoveObserver(Handle(999))
	assert.NotEmpty(t, fs.live())

	q.RemoveObserver(h2)
	assert.Empty(t, fs.live())

	h3, err := q.Observe(Moved, func(string, geo.Point) {})
	require.NoError(t, err)
	assert.Greater(t, h3, h2, "handles are never reused")
}

func TestRemovedObserverMissesQueuedEvents(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	block := make(chan struct{})
	blocked := make(chan struct{})
	_, err = q.Observe(Entered, func(id string, _ geo.Point) {
		if id == "first" {
			close(blocked)
			<-block
		}
	})
	require.NoError(t, err)
	log := &eventLog{}
	h, err := q.Observe(Entered, log.observer(Entered))
	require.NoError(t, err)

	w := fs.watchFor(t, nearby)
	w.upsert(t, "first", nearby)
	<-blocked
	w.upsert(t, "second", nearby)
	q.RemoveObserver(h)
	close(block)
	flush(t, g)

	assert.Empty(t, log.snapshot())
}

func TestObserverPanicIsRecovered(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	_, err = q.Observe(Entered, func(string, geo.Point) { panic("boom") })
	require.NoError(t, err)
	log := &eventLog{}
	_, err = q.Observe(Entered, log.observer(Entered))
	require.NoError(t, err)

	fs.watchFor(t, nearby).upsert(t, "car", nearby)
	flush(t, g)
	assert.Equal(t, []string{"entered:car"}, log.snapshot())
}

func TestObserverMayCallBackIntoQuery(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)

	var h Handle
	done := make(chan struct{})
	h, err = q.Observe(Entered, func(string, geo.Point) {
		q.RemoveObserver(h)
		close(done)
	})
	require.NoError(t, err)

	fs.watchFor(t, nearby).upsert(t, "car", nearby)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("observer never ran")
	}
	require.Eventually(t, func() bool { return len(fs.live()) == 0 }, time.Second, time.Millisecond)
}

func TestSetLimitRewatchesRanges(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	q, err := g.QueryAtLocation(sanFrancisco, 1)
	require.NoError(t, err)
	observeAll(t, q, &eventLog{})
	n := len(fs.live())

	require.NoError(t, q.SetLimit(25))
	assert.Equal(t, 25, q.Limit())
	live := fs.live()
	require.Len(t, live, n)
	for _, w := range live {
		assert.Equal(t, 25, w.query.Limit)
	}
	assert.Len(t, fs.all(), 2*n)
}

func TestRectangleQueryEdgesAreInside(t *testing.T) {
	fs := &fakeStore{}
	g := newTestGeoStore(t, fs)
	rect := geo.NewRectangle(37.77, -122.42, 37.78, -122.41)
	q, err := g.QueryInRegion(rect)
	require.NoError(t, err)
	log := &eventLog{}
	observeAll(t, q, log)

	corner := geo.NewPoint(rect.North, rect.East)
	fs.watchFor(t, corner).upsert(t, "corner", corner)
	edge := geo.NewPoint(rect.South, -122.415)
	fs.watchFor(t, edge).upsert(t, "edge", edge)
	flush(t, g)

	assert.Equal(t, []string{"entered:corner", "entered:edge"}, log.sorted())
}
