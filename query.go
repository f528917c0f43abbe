package surrealgeo

import (
	"fmt"
	"sync"
	"time"

	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/store"
)

// Query tracks the records inside one region. It is safe for concurrent use.
//
// A query watches nothing until its first observer is registered, and goes
// back to that state when its last observer is removed.
type Query struct {
	g *GeoStore

	mu          sync.Mutex
	region      geo.Region
	limit       int
	active      map[store.RangeQuery]struct{}
	watches     map[store.RangeQuery]*rangeWatch
	outstanding map[store.RangeQuery]struct{}
	locations   map[string]*locationInfo
	observers   observerRegistry
	readyFired  bool
	cycleStart  time.Time
}

func newQuery(g *GeoStore, region geo.Region) *Query {
	return &Query{
		g:           g,
		region:      region,
		active:      make(map[store.RangeQuery]struct{}),
		watches:     make(map[store.RangeQuery]*rangeWatch),
		outstanding: make(map[store.RangeQuery]struct{}),
		locations:   make(map[string]*locationInfo),
		observers:   newObserverRegistry(),
	}
}

// Region returns the current region, a geo.Circle or a geo.Rectangle.
func (q *Query) Region() geo.Region {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.region
}

// Center returns the center of the circle, or the midpoint of the rectangle.
func (q *Query) Center() geo.Point {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch r := q.region.(type) {
	case geo.Circle:
		return r.Center
	case geo.Rectangle:
		return r.Center()
	}
	return geo.Point{}
}

// Radius returns the circle's radius in kilometers, or 0 for a rectangle.
func (q *Query) Radius() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()

	if c, ok := q.region.(geo.Circle); ok {
		return c.Radius / metersPerKilometer
	}
	return 0
}

func (q *Query) Limit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}

// SetCenter moves a circle query.
func (q *Query) SetCenter(center geo.Point) error {
	if err := center.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.region.(geo.Circle)
	if !ok {
		return ErrNotCircleQuery
	}
	c.Center = center
	q.setRegion(c)
	return nil
}

// SetRadius changes the radius, in kilometers, of a circle query.
func (q *Query) SetRadius(radius float64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.region.(geo.Circle)
	if !ok {
		return ErrNotCircleQuery
	}
	c.Radius = radius * metersPerKilometer
	if err := c.Validate(); err != nil {
		return err
	}
	q.setRegion(c)
	return nil
}

// SetRegion replaces the region. r may be a circle or a rectangle, regardless
// of how the query was created.
func (q *Query) SetRegion(r geo.Region) error {
	switch v := r.(type) {
	case nil:
		return fmt.Errorf("%w: nil region", ErrInvalidRegion)
	case *geo.Circle:
		if v == nil {
			return fmt.Errorf("%w: nil region", ErrInvalidRegion)
		}
		r = *v
	case *geo.Rectangle:
		if v == nil {
			return fmt.Errorf("%w: nil region", ErrInvalidRegion)
		}
		r = *v
	}
	if err := r.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.setRegion(r)
	return nil
}

// SetLimit bounds the initial load of every range watch to limit records.
// Zero removes the bound.
func (q *Query) SetLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.limit == limit {
		return nil
	}
	q.limit = limit
	q.criteriaChanged()
	return nil
}

func (q *Query) setRegion(r geo.Region) {
	q.region = r
	q.criteriaChanged()
}

func (q *Query) criteriaChanged() {
	if len(q.active) > 0 {
		q.reconcile()
	}
}

// Observe registers fn for kind and returns its handle. Observing Entered
// first reports every record already inside the region.
func (q *Query) Observe(kind EventType, fn LocationFunc) (Handle, error) {
	if kind < Entered || kind > Moved {
		return 0, fmt.Errorf("%w: %d", ErrInvalidEventType, kind)
	}
	if fn == nil {
		return 0, ErrNilCallback
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.observers.add(kind, fn)
	if kind == Entered {
		q.replayEntered(h, fn)
	}
	if len(q.active) == 0 {
		q.reconcile()
	}
	return h, nil
}

// ObserveReady registers fn to be called each time every watched range has
// finished its initial load. If that is already the case, fn is called once
// straight away, asynchronously.
func (q *Query) ObserveReady(fn ReadyFunc) (Handle, error) {
	if fn == nil {
		return 0, ErrNilCallback
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.observers.addReady(fn)
	if len(q.active) == 0 {
		q.reconcile()
	} else if len(q.outstanding) == 0 {
		q.fireReady([]Handle{h})
	}
	return h, nil
}

// RemoveObserver unregisters h. Removing the last observer stops the query.
// Unknown handles are ignored.
func (q *Query) RemoveObserver(h Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.observers.remove(h) && q.observers.count() == 0 {
		q.reset()
	}
}

// RemoveAllObservers unregisters every observer and stops the query.
func (q *Query) RemoveAllObservers() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset()
}

func (q *Query) TotalObserverCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.observers.count()
}

// IsReady reports whether the query is watching and every range has loaded.
func (q *Query) IsReady() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active) > 0 && len(q.outstanding) == 0
}

// observerLive returns a check, run at delivery time, that h is still registered.
func (q *Query) observerLive(h Handle) func() bool {
	return func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.observers.has(h)
	}
}
