package surrealgeo

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/logger"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

var (
	sanFrancisco = geo.NewPoint(37.7749, -122.4194)
	// About 500 m north of sanFrancisco.
	nearby = geo.NewPoint(37.7794, -122.4194)
	// About 2 km north of sanFrancisco.
	farther = geo.NewPoint(37.7929, -122.4194)
	newYork = geo.NewPoint(40.7128, -74.0060)
)

// fakeStore hands every watch to the test, which drives loads and changes.
type fakeStore struct {
	mu      sync.Mutex
	watches []*fakeWatch
}

type fakeWatch struct {
	query   store.RangeQuery
	handler store.Handler
	load    chan error

	mu           sync.Mutex
	loadRequests int
	unwatched    int
}

var _ store.Store = (*fakeStore)(nil)

func (s *fakeStore) SetLocation(context.Context, store.Document) error { return nil }

func (s *fakeStore) Location(context.Context, string) (store.Document, error) {
	return store.Document{}, store.ErrNotFound
}

func (s *fakeStore) RemoveLocation(context.Context, string) error { return nil }

func (s *fakeStore) WatchRange(q store.RangeQuery, h store.Handler) store.Watch {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &fakeWatch{query: q, handler: h, load: make(chan error, 1)}
	s.watches = append(s.watches, w)
	return w
}

func (s *fakeStore) all() []*fakeWatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeWatch(nil), s.watches...)
}

func (s *fakeStore) live() []*fakeWatch {
	var live []*fakeWatch
	for _, w := range s.all() {
		if w.unwatchCount() == 0 {
			live = append(live, w)
		}
	}
	return live
}

func (s *fakeStore) liveQueries() []store.RangeQuery {
	var qs []store.RangeQuery
	for _, w := range s.live() {
		qs = append(qs, w.query)
	}
	sortRangeQueries(qs)
	return qs
}

// watchFor returns the live watch whose range contains the geohash of p.
func (s *fakeStore) watchFor(t *testing.T, p geo.Point) *fakeWatch {
	t.Helper()
	hash := mustEncode(t, p)
	for _, w := range s.live() {
		if w.query.Range.Contains(hash) {
			return w
		}
	}
	t.Fatalf("no live watch covers %s", hash)
	return nil
}

func (s *fakeStore) completeAll() {
	for _, w := range s.live() {
		w.complete(nil)
	}
}

func (w *fakeWatch) RequestInitialLoad() <-chan error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loadRequests++
	return w.load
}

func (w *fakeWatch) Unwatch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.unwatched++
}

func (w *fakeWatch) loads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadRequests
}

func (w *fakeWatch) unwatchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unwatched
}

func (w *fakeWatch) complete(err error) {
	w.load <- err
}

func (w *fakeWatch) upsert(t *testing.T, id string, p geo.Point) {
	w.handler.Modified(store.Document{ID: id, Location: p, Geohash: mustEncode(t, p)})
}

func mustEncode(t *testing.T, p geo.Point) string {
	t.Helper()
	hash, err := geohash.Encode(p, geohash.DefaultPrecision)
	require.NoError(t, err)
	return hash
}

// eventLog records observer calls as "kind:id".
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) observer(kind EventType) LocationFunc {
	return func(id string, _ geo.Point) {
		l.add(kind.String() + ":" + id)
	}
}

func (l *eventLog) ready() {
	l.add(readyEvent)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) count(event string) int {
	n := 0
	for _, e := range l.snapshot() {
		if e == event {
			n++
		}
	}
	return n
}

func (l *eventLog) sorted() []string {
	events := l.snapshot()
	sort.Strings(events)
	return events
}

func newTestGeoStore(t *testing.T, s store.Store, opts ...Option) *GeoStore {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	g, err := New(s, opts...)
	require.NoError(t, err)
	return g
}

// observeAll registers entered, exited and moved observers on q.
func observeAll(t *testing.T, q *Query, log *eventLog) {
	t.Helper()
	for _, kind := range []EventType{Entered, Exited, Moved} {
		_, err := q.Observe(kind, log.observer(kind))
		require.NoError(t, err)
	}
}

// flush waits until every callback queued so far has run.
func flush(t *testing.T, g *GeoStore) {
	t.Helper()
	done := make(chan struct{})
	g.dispatcher.enqueue(delivery{kind: "flush", fn: func() { close(done) }})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not drain")
	}
}
