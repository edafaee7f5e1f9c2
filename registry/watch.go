package registry

import (
	"context"
	"sync"
	"time"
)

// Change describes one committed transition.
type Change struct {
	// ID uniquely identifies the change (UUID).
	ID     string    `json:"id"`
	Op     Op        `json:"op"`
	Module string    `json:"module"`
	// Changed lists the modules whose flag flipped, in apply order.
	Changed []string `json:"changed"`
	// Enabled is the full sorted set of enabled ids after the change.
	Enabled    []string  `json:"enabled"`
	Generation uint64    `json:"generation"`
	At         time.Time `json:"at"`
}

// Listener receives committed changes synchronously, in commit order. A
// listener may read from the registry but must not call Enable/Disable from
// inside the callback.
type Listener func(Change)

type listenerEntry struct {
	id int
	fn Listener
}

// Subscribe registers fn for every future change and returns a function that
// removes it. The returned function is safe to call more than once.
func (r *Registry) Subscribe(fn Listener) (cancel func()) {
	r.lmu.Lock()
	id := r.nextID
	r.nextID++
	r.listeners = append(r.listeners, listenerEntry{id: id, fn: fn})
	r.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.lmu.Lock()
			defer r.lmu.Unlock()
			for i, l := range r.listeners {
				if l.id == id {
					r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Watch returns a channel that receives changes until ctx is done, after which
// the channel is closed. A watcher that falls behind only keeps the most
// recent change: every Change carries the complete enabled set, so the
// latest one is always sufficient to rebuild a view.
func (r *Registry) Watch(ctx context.Context) <-chan Change {
	w := &watcher{ch: make(chan Change, 1)}
	cancel := r.Subscribe(w.send)

	go func() {
		<-ctx.Done()
		cancel()
		w.close()
	}()

	return w.ch
}

func (r *Registry) deliver(change Change) {
	r.lmu.Lock()
	listeners := make([]listenerEntry, len(r.listeners))
	copy(listeners, r.listeners)
	r.lmu.Unlock()

	for _, l := range listeners {
		l.fn(change)
	}
}

// watcher adapts a Listener to a coalescing channel.
type watcher struct {
	mu     sync.Mutex
	ch     chan Change
	closed bool
}

func (w *watcher) send(change Change) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.ch <- change:
		return
	default:
	}
	// Drop the stale pending change in favour of the newer one.
	select {
	case <-w.ch:
	default:
	}
	w.ch <- change
}

func (w *watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}
