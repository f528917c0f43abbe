package redisstore

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

// hub owns the single change subscription of a Store and fans each event out
// to the feeds of the watches it concerns.
type hub struct {
	s *Store

	mu      sync.Mutex
	pubsub  *redis.PubSub
	watches map[*watch]struct{}
	done    chan struct{}
}

func newHub(s *Store) *hub {
	return &hub{s: s, watches: make(map[*watch]struct{})}
}

// add registers w, subscribing first if needed. Events published after add
// returns reach w.
func (h *hub) add(ctx context.Context, w *watch) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pubsub == nil {
		ps := h.s.rdb.Subscribe(ctx, h.s.channel())
		// Wait for the subscription to be confirmed.
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return err
		}
		h.pubsub = ps
		h.done = make(chan struct{})
		go h.run(ps, h.done)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h.watches[w] = struct{}{}
	return nil
}

func (h *hub) remove(w *watch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watches, w)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watches)
}

func (h *hub) close() error {
	h.mu.Lock()
	ps, done := h.pubsub, h.done
	h.pubsub = nil
	h.mu.Unlock()

	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}

func (h *hub) run(ps *redis.PubSub, done chan struct{}) {
	defer close(done)

	for msg := range ps.Channel() {
		e, err := decodeEvent(msg.Payload)
		if err != nil {
			h.s.logger.Error("dropping change event", "error", err)
			continue
		}
		prev, cur, err := e.documents()
		if err != nil {
			h.s.logger.Debug("dropping change event", "entity_id", e.ID, "error", err)
			continue
		}

		h.mu.Lock()
		for w := range h.watches {
			if c, ok := store.NewChange(w.q.Range, e.ID, prev, cur, e.Rev); ok {
				w.feed.Push(c)
			}
		}
		h.mu.Unlock()
	}
}

type watch struct {
	s    *Store
	q    store.RangeQuery
	feed *store.Feed

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func (w *watch) RequestInitialLoad() <-chan error {
	ch := make(chan error, 1)
	go func() {
		if err := w.s.hub.add(w.ctx, w); err != nil {
			w.feed.Release()
			ch <- w.loadError(err)
			return
		}

		docs, rev, err := w.s.snapshot(w.ctx, w.q)
		if err != nil {
			w.feed.Release()
			ch <- w.loadError(err)
			return
		}
		w.feed.Load(docs, rev, func(err error) { ch <- err })
	}()
	return ch
}

func (w *watch) loadError(err error) error {
	if w.ctx.Err() != nil {
		return store.ErrUnwatched
	}
	return err
}

func (w *watch) Unwatch() {
	w.once.Do(func() {
		w.cancel()
		w.s.hub.remove(w)
		w.feed.Stop()
	})
}
