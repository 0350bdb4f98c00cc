// Package dispatcher routes intents to stores.
//
// The [Dispatcher] is synchronous and single-threaded: [Dispatcher.Dispatch]
// delivers one intent to every registered [Store], in registration order, and
// returns only after every handler (and every change notification those
// handlers trigger) has run. A second Dispatch while one is in progress is
// rejected with a [ReentrantDispatchError]; nothing is queued.
//
// Callers that need to dispatch from several goroutines go through the loop
// package, which owns the single goroutine allowed to call Dispatch.
package dispatcher

import (
	"errors"
	"fmt"
	"sync"
)

// Kind names an intent, e.g. "DELETE_CHECK".
type Kind string

// Intent is a typed request to change state.
//
// Payload carries the kind-specific data; handlers assert it to the type
// their kind defines.
type Intent struct {
	Kind    Kind
	Payload any
}

// Handler applies one intent to a store's state.
type Handler func(in Intent) error

// Store is anything that reacts to intents.
type Store interface {
	// Handler returns the handler registered for kind, if any.
	Handler(kind Kind) (Handler, bool)
}

// HandlerMap is a ready-made intent-to-handler table. Stores embed or wrap it
// to satisfy [Store].
type HandlerMap map[Kind]Handler

// Handler implements [Store].
func (m HandlerMap) Handler(kind Kind) (Handler, bool) {
	h, ok := m[kind]
	return h, ok
}

// ErrReentrantDispatch is matched by every [ReentrantDispatchError].
var ErrReentrantDispatch = errors.New("dispatch already in progress")

// ReentrantDispatchError reports a Dispatch call made while another was still
// running, typically from inside a store handler or change subscriber.
//
// It indicates a structural bug and is not recoverable locally.
type ReentrantDispatchError struct {
	// Active is the kind of the dispatch in progress.
	Active Kind
	// Attempted is the kind that was rejected.
	Attempted Kind
}

func (e *ReentrantDispatchError) Error() string {
	return fmt.Sprintf("cannot dispatch %q: %v (dispatching %q)", e.Attempted, ErrReentrantDispatch, e.Active)
}

// Is makes errors.Is(err, ErrReentrantDispatch) true.
func (e *ReentrantDispatchError) Is(target error) bool {
	return target == ErrReentrantDispatch
}

// Dispatcher forwards intents to registered stores.
type Dispatcher struct {
	mu       sync.Mutex
	stores   []Store
	active   Kind
	inflight bool
}

// New creates an empty [Dispatcher].
func New() *Dispatcher {
	return &Dispatcher{}
}

// Register appends a store. Stores receive intents in registration order.
//
// Registering during a dispatch is allowed; the new store sees the next
// dispatch, not the current one.
func (d *Dispatcher) Register(s Store) {
	d.mu.Lock()
	d.stores = append(d.stores, s)
	d.mu.Unlock()
}

// Dispatch delivers in to every registered store that handles in.Kind.
//
// Every store runs even if an earlier one fails; handler errors are joined.
// Returns a [*ReentrantDispatchError] without touching any store if another
// Dispatch is in progress.
func (d *Dispatcher) Dispatch(in Intent) error {
	d.mu.Lock()
	if d.inflight {
		active := d.active
		d.mu.Unlock()
		return &ReentrantDispatchError{Active: active, Attempted: in.Kind}
	}
	d.inflight = true
	d.active = in.Kind
	stores := make([]Store, len(d.stores))
	copy(stores, d.stores)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.inflight = false
		d.active = ""
		d.mu.Unlock()
	}()

	var errs []error
	for _, s := range stores {
		h, ok := s.Handler(in.Kind)
		if !ok {
			continue
		}
		if err := h(in); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Dispatching reports whether a Dispatch is in progress.
func (d *Dispatcher) Dispatching() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}
