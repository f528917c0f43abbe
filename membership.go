package surrealgeo

import (
	"sort"

	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/geohash"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

type membership int8

const (
	membershipUnknown membership = iota
	membershipInside
	membershipOutside
)

// locationInfo is the last known state of one record seen by a query.
type locationInfo struct {
	location   geo.Point
	geohash    string
	membership membership
}

func (q *Query) onUpsert(rw *rangeWatch, doc store.Document) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isCurrent(rw) {
		return
	}
	if err := doc.Location.Validate(); err != nil {
		q.g.logger.Debug("skipping record without a usable location", "entity_id", doc.ID, "error", err)
		return
	}

	hash := doc.Geohash
	if hash == "" {
		hash, _ = geohash.Encode(doc.Location, q.g.precision)
	}
	q.updateLocation(doc.ID, doc.Location, hash)
}

// updateLocation records location for id and fires at most one event:
// entered when it becomes inside, moved when it changes location inside,
// exited when it stops being inside.
func (q *Query) updateLocation(id string, location geo.Point, hash string) {
	info, ok := q.locations[id]
	isNew := !ok
	if isNew {
		info = &locationInfo{}
		q.locations[id] = info
		q.g.metrics.EntitiesTracked(1)
	}

	changed := !isNew && info.location != location
	wasInside := info.membership == membershipInside
	nowInside := q.region.Contains(location)

	info.location = location
	info.geohash = hash
	info.membership = membershipOutside
	if nowInside {
		info.membership = membershipInside
	}

	switch {
	case (isNew || !wasInside) && nowInside:
		q.fire(Entered, id, location)
	case !isNew && changed && nowInside:
		q.fire(Moved, id, location)
	case wasInside && !nowInside:
		q.fire(Exited, id, location)
	}
}

// onRemove handles a record leaving one watched range. current is nil when the
// record was deleted. A record that is still in another active range is left to
// that range's watch.
func (q *Query) onRemove(rw *rangeWatch, id string, current *store.Document) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.isCurrent(rw) {
		return
	}
	info, ok := q.locations[id]
	if !ok {
		return
	}

	if current != nil {
		if hash, err := geohash.Encode(current.Location, q.g.precision); err == nil && q.activeContains(hash) {
			q.g.logger.Debug("record still covered by another range", "entity_id", id, "geohash", hash)
			return
		}
	}

	delete(q.locations, id)
	q.g.metrics.EntitiesTracked(-1)
	if info.membership == membershipInside {
		q.fire(Exited, id, info.location)
	}
}

// revalidate re-evaluates every tracked record against the current region and
// forgets the ones no active range covers anymore.
func (q *Query) revalidate() {
	ids := make([]string, 0, len(q.locations))
	for id := range q.locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		info := q.locations[id]
		q.updateLocation(id, info.location, info.geohash)
	}

	dropped := 0
	for _, id := range ids {
		if !q.activeContains(q.locations[id].geohash) {
			delete(q.locations, id)
			dropped++
		}
	}
	if dropped > 0 {
		q.g.metrics.EntitiesTracked(-dropped)
	}
}

func (q *Query) fire(kind EventType, id string, location geo.Point) {
	handles := q.observers.locationObservers(kind)
	deliveries := make([]delivery, 0, len(handles))
	for _, h := range handles {
		fn := q.observers.location[kind][h]
		deliveries = append(deliveries, delivery{
			kind: kind.String(),
			live: q.observerLive(h),
			fn:   func() { fn(id, location) },
		})
	}
	q.g.dispatcher.enqueue(deliveries...)
}

// replayEntered reports every record currently inside the region to a new
// Entered observer.
func (q *Query) replayEntered(h Handle, fn LocationFunc) {
	ids := make([]string, 0, len(q.locations))
	for id, info := range q.locations {
		if info.membership == membershipInside {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	deliveries := make([]delivery, 0, len(ids))
	for _, id := range ids {
		id, location := id, q.locations[id].location
		deliveries = append(deliveries, delivery{
			kind: Entered.String(),
			live: q.observerLive(h),
			fn:   func() { fn(id, location) },
		})
	}
	q.g.dispatcher.enqueue(deliveries...)
}
