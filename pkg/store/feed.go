package store

import "sync"

// Feed delivers the changes of one watch to its Handler on a dedicated
// goroutine, in the order they were pushed.
//
// Changes pushed before Load are held back. Load queues the initial documents
// as Added changes first, then the held changes whose revision is newer than
// the load, then the completion callback.
type Feed struct {
	handler Handler

	mu       sync.Mutex
	queue    []feedItem
	held     []Change
	loaded   bool
	stopped  bool
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

type feedItem struct {
	change Change
	loaded func(error)
}

func NewFeed(h Handler) *Feed {
	f := &Feed{
		handler: h,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go f.run()
	return f
}

// Push queues c, or holds it until Load when the initial load is pending.
func (f *Feed) Push(c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped || c.Kind == ChangeNone {
		return
	}
	if !f.loaded {
		f.held = append(f.held, c)
		return
	}
	f.queue = append(f.queue, feedItem{change: c})
	f.signal()
}

// Load queues docs as the initial load taken at revision rev. loaded is called
// after they have been handled, with ErrUnwatched if the feed stops first.
// A rev of zero keeps every held change.
func (f *Feed) Load(docs []Document, rev uint64, loaded func(error)) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		if loaded != nil {
			loaded(ErrUnwatched)
		}
		return
	}
	defer f.mu.Unlock()

	for i := range docs {
		doc := docs[i]
		f.queue = append(f.queue, feedItem{change: Change{Kind: ChangeAdded, ID: doc.ID, Document: &doc, Rev: rev}})
	}
	for _, c := range f.held {
		if rev == 0 || c.Rev == 0 || c.Rev > rev {
			f.queue = append(f.queue, feedItem{change: c})
		}
	}
	f.held = nil
	f.loaded = true
	if loaded != nil {
		f.queue = append(f.queue, feedItem{loaded: loaded})
	}
	f.signal()
}

// Release starts delivering held changes without an initial load, for stores
// whose load failed.
func (f *Feed) Release() {
	f.Load(nil, 0, nil)
}

// Stop drops everything not yet delivered. It does not wait for a handler call
// in progress and is safe to call more than once.
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	pending := f.queue
	f.queue = nil
	f.held = nil
	f.mu.Unlock()

	f.stopOnce.Do(func() { close(f.stop) })
	for _, it := range pending {
		if it.loaded != nil {
			it.loaded(ErrUnwatched)
		}
	}
}

func (f *Feed) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Feed) next() (feedItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped || len(f.queue) == 0 {
		return feedItem{}, false
	}
	it := f.queue[0]
	f.queue[0] = feedItem{}
	f.queue = f.queue[1:]
	return it, true
}

func (f *Feed) run() {
	for {
		select {
		case <-f.stop:
			return
		case <-f.wake:
		}

		for {
			it, ok := f.next()
			if !ok {
				break
			}
			if it.loaded != nil {
				it.loaded(nil)
				continue
			}
			f.deliver(it.change)
		}
	}
}

func (f *Feed) deliver(c Change) {
	switch c.Kind {
	case ChangeAdded:
		f.handler.Added(*c.Document)
	case ChangeModified:
		f.handler.Modified(*c.Document)
	case ChangeRemoved:
		f.handler.Removed(c.ID, c.Document)
	}
}
