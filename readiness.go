package surrealgeo

import (
	"time"

	"github.com/surrealdb/surrealgeo/pkg/store"
)

func (q *Query) onInitialLoad(rw *rangeWatch, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isCurrent(rw) {
		return
	}
	if err != nil {
		q.g.logger.Error("initial load failed", "range_start", rw.query.Range.Start, "range_end", rw.query.Range.End, "error", err)
		q.reportWatchError(rw.query, err)
		return
	}

	delete(q.outstanding, rw.query)
	q.checkReady()
}

// checkReady fires the ready observers once per reconcile, when no range is
// waiting for its initial load.
func (q *Query) checkReady() {
	if len(q.active) == 0 || len(q.outstanding) > 0 || q.readyFired {
		return
	}
	q.readyFired = true
	q.g.metrics.Ready(time.Since(q.cycleStart))
	q.g.logger.Debug("query ready", "ranges", len(q.active), "entities", len(q.locations))
	q.fireReady(q.observers.readyObservers())
}

func (q *Query) fireReady(handles []Handle) {
	deliveries := make([]delivery, 0, len(handles))
	for _, h := range handles {
		fn := q.observers.ready[h]
		deliveries = append(deliveries, delivery{
			kind: readyEvent,
			live: q.observerLive(h),
			fn:   func() { fn() },
		})
	}
	q.g.dispatcher.enqueue(deliveries...)
}

func (q *Query) reportWatchError(r store.RangeQuery, err error) {
	if q.g.onWatchError == nil {
		return
	}
	fn := q.g.onWatchError
	q.g.dispatcher.enqueue(delivery{
		kind: "watch_error",
		fn:   func() { fn(r, err) },
	})
}
