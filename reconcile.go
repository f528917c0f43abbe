package surrealgeo

import (
	"sort"
	"time"

	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

// rangeWatch is the store watch behind one active range. Store callbacks are
// only applied while it is still the registered watch for its range.
type rangeWatch struct {
	q     *Query
	query store.RangeQuery
	watch store.Watch
}

func (rw *rangeWatch) Added(doc store.Document) {
	rw.q.onUpsert(rw, doc)
}

func (rw *rangeWatch) Modified(doc store.Document) {
	rw.q.onUpsert(rw, doc)
}

func (rw *rangeWatch) Removed(id string, current *store.Document) {
	rw.q.onRemove(rw, id, current)
}

func (q *Query) rangesForCriteria() []store.RangeQuery {
	ranges := geohash.CoverPrecision(q.region, q.g.precision)
	queries := make([]store.RangeQuery, len(ranges))
	for i, r := range ranges {
		queries[i] = store.RangeQuery{Range: r, Limit: q.limit}
	}
	return queries
}

// reconcile watches the ranges covering the current criteria. q.mu must be held.
func (q *Query) reconcile() {
	q.applyRanges(q.rangesForCriteria())
}

func (q *Query) applyRanges(next []store.RangeQuery) {
	want := make(map[store.RangeQuery]struct{}, len(next))
	var toAdd []store.RangeQuery
	for _, r := range next {
		if _, dup := want[r]; dup {
			continue
		}
		want[r] = struct{}{}
		if _, ok := q.active[r]; !ok {
			toAdd = append(toAdd, r)
		}
	}

	var toRemove []store.RangeQuery
	for r := range q.active {
		if _, ok := want[r]; !ok {
			toRemove = append(toRemove, r)
		}
	}
	sortRangeQueries(toRemove)

	for _, r := range toRemove {
		rw, ok := q.watches[r]
		if !ok {
			panic(&ConsistencyError{Op: "unwatch", Range: r})
		}
		q.stopWatch(rw)
		delete(q.watches, r)
		delete(q.outstanding, r)
	}

	// Every reconcile is a new cycle, even one that reuses loaded ranges.
	q.readyFired = false
	q.cycleStart = time.Now()
	for _, r := range toAdd {
		q.outstanding[r] = struct{}{}
		q.startWatch(r)
	}

	q.active = want
	q.revalidate()
	q.checkReady()
}

func (q *Query) startWatch(r store.RangeQuery) {
	rw := &rangeWatch{q: q, query: r}
	q.watches[r] = rw
	rw.watch = q.g.store.WatchRange(r, rw)
	q.g.metrics.WatchStarted()
	q.g.logger.Debug("watching range", "range_start", r.Range.Start, "range_end", r.Range.End, "limit", r.Limit)

	loaded := rw.watch.RequestInitialLoad()
	go func() {
		err := <-loaded
		q.onInitialLoad(rw, err)
	}()
}

func (q *Query) stopWatch(rw *rangeWatch) {
	rw.watch.Unwatch()
	q.g.metrics.WatchStopped()
	q.g.logger.Debug("unwatched range", "range_start", rw.query.Range.Start, "range_end", rw.query.Range.End)
}

// reset unwatches every range and forgets all state and observers.
func (q *Query) reset() {
	active := make([]store.RangeQuery, 0, len(q.active))
	for r := range q.active {
		active = append(active, r)
	}
	sortRangeQueries(active)

	for _, r := range active {
		rw, ok := q.watches[r]
		if !ok {
			panic(&ConsistencyError{Op: "reset", Range: r})
		}
		q.stopWatch(rw)
	}

	if n := len(q.locations); n > 0 {
		q.g.metrics.EntitiesTracked(-n)
	}
	q.active = make(map[store.RangeQuery]struct{})
	q.watches = make(map[store.RangeQuery]*rangeWatch)
	q.outstanding = make(map[store.RangeQuery]struct{})
	q.locations = make(map[string]*locationInfo)
	q.observers.clear()
	q.readyFired = false
}

func (q *Query) isCurrent(rw *rangeWatch) bool {
	return q.watches[rw.query] == rw
}

func (q *Query) activeContains(hash string) bool {
	for r := range q.active {
		if r.Range.Contains(hash) {
			return true
		}
	}
	return false
}

func sortRangeQueries(rs []store.RangeQuery) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Range.Start != rs[j].Range.Start {
			return rs[i].Range.Start < rs[j].Range.Start
		}
		if rs[i].Range.End != rs[j].Range.End {
			return rs[i].Range.End < rs[j].Range.End
		}
		return rs[i].Limit < rs[j].Limit
	})
}
