// Package memstore is an in-memory store.Store with live range watches.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/surrealdb/surrealgeo/pkg/store"
)

// Store keeps documents in a map. Every write gets a revision so that an
// initial load never replays a change it already reflects.
type Store struct {
	mu      sync.Mutex
	docs    map[string]store.Document
	rev     uint64
	watches map[*watch]struct{}
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		docs:    make(map[string]store.Document),
		watches: make(map[*watch]struct{}),
	}
}

func (s *Store) SetLocation(ctx context.Context, doc store.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if doc.ID == "" {
		return store.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *store.Document
	if old, ok := s.docs[doc.ID]; ok {
		prev = &old
	}
	s.docs[doc.ID] = doc
	s.publish(doc.ID, prev, &doc)
	return nil
}

func (s *Store) Location(ctx context.Context, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

// RemoveLocation deletes id. Removing a missing document is not an error.
func (s *Store) RemoveLocation(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.docs[id]
	if !ok {
		return nil
	}
	delete(s.docs, id)
	s.publish(id, &old, nil)
	return nil
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Watches returns the number of live watches.
func (s *Store) Watches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watches)
}

func (s *Store) WatchRange(q store.RangeQuery, h store.Handler) store.Watch {
	w := &watch{s: s, q: q, feed: store.NewFeed(h)}

	s.mu.Lock()
	s.watches[w] = struct{}{}
	s.mu.Unlock()

	return w
}

func (s *Store) publish(id string, prev, cur *store.Document) {
	s.rev++
	for w := range s.watches {
		if c, ok := store.NewChange(w.q.Range, id, prev, cur, s.rev); ok {
			w.feed.Push(c)
		}
	}
}

func (s *Store) load(q store.RangeQuery) ([]store.Document, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []store.Document
	for _, doc := range s.docs {
		if q.Range.Contains(doc.Geohash) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Geohash != docs[j].Geohash {
			return docs[i].Geohash < docs[j].Geohash
		}
		return docs[i].ID < docs[j].ID
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, s.rev
}

type watch struct {
	s    *Store
	q    store.RangeQuery
	feed *store.Feed
}

func (w *watch) RequestInitialLoad() <-chan error {
	ch := make(chan error, 1)
	go func() {
		docs, rev := w.s.load(w.q)
		w.feed.Load(docs, rev, func(err error) { ch <- err })
	}()
	return ch
}

func (w *watch) Unwatch() {
	w.s.mu.Lock()
	delete(w.s.watches, w)
	w.s.mu.Unlock()

	w.feed.Stop()
}
