package surrealgeo

import (
	"sort"

	"github.com/surrealdb/surrealgeo/pkg/geo"
)

// EventType selects which location events an observer receives.
type EventType int

const (
	// Entered fires when a record moves into the region, or is first seen inside it.
	Entered EventType = iota
	// Exited fires when a record inside the region leaves it or is deleted.
	Exited
	// Moved fires when a record inside the region changes location and stays inside.
	Moved
)

func (e EventType) String() string {
	switch e {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

const readyEvent = "ready"

// Handle identifies one registered observer. Handles are never reused.
type Handle uint64

type LocationFunc func(id string, location geo.Point)

type ReadyFunc func()

type observerRegistry struct {
	last     Handle
	location [3]map[Handle]LocationFunc
	ready    map[Handle]ReadyFunc
	removers map[Handle]func()
}

func newObserverRegistry() observerRegistry {
	r := observerRegistry{
		ready:    make(map[Handle]ReadyFunc),
		removers: make(map[Handle]func()),
	}
	for i := range r.location {
		r.location[i] = make(map[Handle]LocationFunc)
	}
	return r
}

func (r *observerRegistry) nextHandle() Handle {
	r.last++
	return r.last
}

func (r *observerRegistry) add(kind EventType, fn LocationFunc) Handle {
	h := r.nextHandle()
	observers := r.location[kind]
	observers[h] = fn
	r.removers[h] = func() { delete(observers, h) }
	return h
}

func (r *observerRegistry) addReady(fn ReadyFunc) Handle {
	h := r.nextHandle()
	r.ready[h] = fn
	r.removers[h] = func() { delete(r.ready, h) }
	return h
}

func (r *observerRegistry) remove(h Handle) bool {
	remove, ok := r.removers[h]
	if !ok {
		return false
	}
	remove()
	delete(r.removers, h)
	return true
}

func (r *observerRegistry) has(h Handle) bool {
	_, ok := r.removers[h]
	return ok
}

func (r *observerRegistry) count() int {
	return len(r.removers)
}

// clear drops every observer but keeps the handle counter.
func (r *observerRegistry) clear() {
	last := r.last
	*r = newObserverRegistry()
	r.last = last
}

// locationObservers returns the handles observing kind in registration order.
func (r *observerRegistry) locationObservers(kind EventType) []Handle {
	return sortedHandles(r.location[kind])
}

func (r *observerRegistry) readyObservers() []Handle {
	return sortedHandles(r.ready)
}

func sortedHandles[T any](m map[Handle]T) []Handle {
	handles := make([]Handle, 0, len(m))
	for h := range m {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}
