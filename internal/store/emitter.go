package store

import (
	"log/slog"
	"sync"
)

// Emitter is a store's subscription registry.
//
// Subscribers are plain callbacks invoked synchronously, in subscription
// order, each time the owning store changes. A subscriber reads the new
// state through the store's State method; nothing is passed to it.
//
// A panicking subscriber is recovered and logged so it cannot break the
// dispatch that triggered the change.
type Emitter struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription
	logger *slog.Logger
}

type subscription struct {
	id uint64
	fn func()
}

// Subscribe registers fn and returns the function that removes it.
//
// The returned function is safe to call more than once. A nil fn is ignored
// and yields a no-op unsubscribe.
func (e *Emitter) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

// Subscribers returns the number of current subscribers.
func (e *Emitter) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func (e *Emitter) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// emit calls every current subscriber. Subscribers added or removed by a
// subscriber during emit take effect from the next emit.
func (e *Emitter) emit() {
	e.mu.Lock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		e.call(s)
	}
}

func (e *Emitter) call(s subscription) {
	defer func() {
		if r := recover(); r != nil {
			logger := e.logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("change subscriber panicked", "panic", r, "subscription", s.id)
		}
	}()
	s.fn()
}
