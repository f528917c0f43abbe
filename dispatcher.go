package surrealgeo

import (
	"sync"

	"github.com/surrealdb/surrealgeo/pkg/logger"
)

// delivery is one observer callback waiting to run.
type delivery struct {
	kind string
	// live reports whether the observer is still registered.
	live func() bool
	fn   func()
}

// dispatcher runs callbacks one at a time, in submission order, on a goroutine
// that exists only while the queue is non-empty.
type dispatcher struct {
	logger  logger.Logger
	metrics Metrics

	mu      sync.Mutex
	queue   []delivery
	running bool
}

func newDispatcher(l logger.Logger, m Metrics) *dispatcher {
	return &dispatcher{logger: l, metrics: m}
}

func (d *dispatcher) enqueue(ds ...delivery) {
	if len(ds) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.queue = append(d.queue, ds...)
	if !d.running {
		d.running = true
		go d.run()
	}
}

func (d *dispatcher) next() (delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		d.running = false
		d.queue = nil
		return delivery{}, false
	}
	it := d.queue[0]
	d.queue[0] = delivery{}
	d.queue = d.queue[1:]
	return it, true
}

func (d *dispatcher) run() {
	for {
		it, ok := d.next()
		if !ok {
			return
		}
		d.deliver(it)
	}
}

func (d *dispatcher) deliver(it delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panicked", "event", it.kind, "panic", r)
		}
	}()

	if it.live != nil && !it.live() {
		return
	}
	d.metrics.EventDispatched(it.kind)
	it.fn()
}
