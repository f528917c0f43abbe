package surrealstore

import (
	"context"
	"errors"
	"sync"

	"github.com/surrealdb/surrealgeo/pkg/connection"
	"github.com/surrealdb/surrealgeo/pkg/models"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

// watch is one LIVE SELECT over a geohash range.
//
// The live query is registered before the initial SELECT runs, and the feed
// holds notifications until the snapshot is delivered. SurrealDB does not
// expose a revision to order the two, so a change racing the snapshot may be
// seen twice.
type watch struct {
	s    *Store
	q    store.RangeQuery
	feed *store.Feed

	ctx     context.Context
	cancel  context.CancelFunc
	started chan struct{}

	mu        sync.Mutex
	liveID    *models.UUID
	liveErr   error
	unwatched bool
	once      sync.Once
}

func (w *watch) run() {
	id, err := w.s.startLive(w.ctx, w.q)
	if err != nil {
		w.mu.Lock()
		w.liveErr = err
		w.mu.Unlock()
		close(w.started)
		return
	}

	ch, err := w.s.conn.LiveNotifications(id.String())
	if err != nil {
		w.mu.Lock()
		w.liveErr = err
		w.mu.Unlock()
		close(w.started)
		go w.s.kill(id)
		return
	}

	w.mu.Lock()
	if w.unwatched {
		w.mu.Unlock()
		close(w.started)
		w.s.kill(id)
		return
	}
	w.liveID = &id
	w.mu.Unlock()
	close(w.started)

	w.s.logger.Debug("live query started", "live_id", id.String(), "range_start", w.q.Range.Start, "range_end", w.q.Range.End)

	for n := range ch {
		w.handle(n)
	}
	if w.ctx.Err() == nil {
		w.s.logger.Warn("live query stopped before unwatch", "live_id", id.String(), "range_start", w.q.Range.Start, "range_end", w.q.Range.End)
	}
}

func (w *watch) RequestInitialLoad() <-chan error {
	ch := make(chan error, 1)
	go func() {
		select {
		case <-w.started:
		case <-w.ctx.Done():
			ch <- store.ErrUnwatched
			return
		}

		w.mu.Lock()
		liveErr := w.liveErr
		w.mu.Unlock()
		if liveErr != nil {
			w.feed.Release()
			ch <- w.loadError(liveErr)
			return
		}

		docs, err := w.s.selectRange(w.ctx, w.q)
		if err != nil {
			w.feed.Release()
			ch <- w.loadError(err)
			return
		}
		w.feed.Load(docs, 0, func(err error) { ch <- err })
	}()
	return ch
}

// loadError reports ErrUnwatched for failures caused by Unwatch itself.
func (w *watch) loadError(err error) error {
	if w.ctx.Err() != nil {
		return store.ErrUnwatched
	}
	return err
}

func (w *watch) Unwatch() {
	w.once.Do(func() {
		w.cancel()
		w.feed.Stop()

		w.mu.Lock()
		w.unwatched = true
		id := w.liveID
		w.mu.Unlock()

		if id != nil {
			go w.s.kill(*id)
		}
	})
}

func (w *watch) handle(n connection.Notification) {
	var r row
	if err := w.s.conn.GetUnmarshaler().Unmarshal(n.Result, &r); err != nil {
		w.s.logger.Error("failed to decode live notification", "action", string(n.Action), "error", err)
		return
	}
	id := r.ID.Key()

	switch n.Action {
	case connection.CreateAction, connection.UpdateAction:
		doc, ok := r.document()
		if !ok {
			w.s.logger.Debug("skipping record without valid location", "entity_id", id)
			return
		}
		switch {
		case !w.q.Contains(&doc):
			w.feed.Push(store.Change{Kind: store.ChangeRemoved, ID: id, Document: &doc})
		case n.Action == connection.CreateAction:
			w.feed.Push(store.Change{Kind: store.ChangeAdded, ID: id, Document: &doc})
		default:
			w.feed.Push(store.Change{Kind: store.ChangeModified, ID: id, Document: &doc})
		}

	case connection.DeleteAction:
		// The notification does not say whether the record was deleted or
		// moved out of the range, so read it back.
		cur, err := w.s.Location(w.ctx, id)
		switch {
		case err == nil:
			w.feed.Push(store.Change{Kind: store.ChangeRemoved, ID: id, Document: &cur})
		case errors.Is(err, store.ErrNotFound):
			w.feed.Push(store.Change{Kind: store.ChangeRemoved, ID: id})
		case w.ctx.Err() != nil:
		default:
			w.s.logger.Warn("failed to read back removed record", "entity_id", id, "error", err)
			w.feed.Push(store.Change{Kind: store.ChangeRemoved, ID: id})
		}

	case connection.KilledAction:
		w.s.logger.Debug("live query killed by server", "range_start", w.q.Range.Start)
	}
}
