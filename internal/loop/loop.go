package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/watchboard/internal/dispatcher"
)

// ErrStopped is returned by [Loop.Post] once the loop has stopped.
var ErrStopped = errors.New("loop stopped")

// ErrRunning is returned by [Loop.Run] when the loop is already running or
// has already run.
var ErrRunning = errors.New("loop already started")

// Observer receives dispatch outcomes. Implementations must be safe for
// concurrent use and must not dispatch.
type Observer interface {
	ObserveDispatch(kind dispatcher.Kind, took time.Duration, err error)
}

// Option configures a [Loop].
type Option func(*Loop)

// WithObserver sets the dispatch observer.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		l.observer = o
	}
}

// Loop serializes intents onto a single goroutine and runs network tasks on
// a bounded worker pool.
//
// Post and Go are safe for concurrent use, including from store handlers and
// change subscribers. Neither blocks: intents are queued without bound and
// tasks wait for a worker slot on their own goroutine.
type Loop struct {
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
	observer   Observer
	sem        chan struct{}

	// task context, cancelled when Run returns
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu      sync.Mutex
	queue   []dispatcher.Intent
	wake    chan struct{}
	started bool
	stopped bool
}

// New creates a [Loop] dispatching to d with at most maxConcurrency tasks in
// flight. A maxConcurrency below 1 is treated as 1. A nil logger uses
// slog.Default().
//
// The loop does nothing until [Loop.Run] is called. Intents posted before
// Run are kept and dispatched in order once it starts.
func New(d *dispatcher.Dispatcher, maxConcurrency int, logger *slog.Logger, opts ...Option) *Loop {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		dispatcher: d,
		logger:     logger,
		sem:        make(chan struct{}, maxConcurrency),
		ctx:        ctx,
		cancel:     cancel,
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues in for dispatch. Intents are dispatched one at a time in the
// order they were posted.
func (l *Loop) Post(in dispatcher.Intent) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return fmt.Errorf("post %s: %w", in.Kind, ErrStopped)
	}
	l.queue = append(l.queue, in)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of intents waiting to be dispatched.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Go runs task on the worker pool and posts the intent it returns. A task
// returning an intent with an empty Kind posts nothing.
//
// The task's context is cancelled when the loop stops. Tasks scheduled
// after the loop stopped are dropped.
func (l *Loop) Go(name string, task func(ctx context.Context) dispatcher.Intent) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.logger.Debug("dropping task scheduled after stop", "task", name)
		return
	}
	l.tasks.Add(1)
	ctx := l.ctx
	l.mu.Unlock()

	go func() {
		defer l.tasks.Done()

		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-l.sem }()

		in, ok := l.runTask(ctx, name, task)
		if !ok || in.Kind == "" {
			return
		}
		if err := l.Post(in); err != nil {
			l.logger.Debug("task completed after stop", "task", name, "intent", in.Kind)
		}
	}()
}

// runTask calls task with panic recovery. A panicking task is logged with a
// correlation id and posts nothing.
func (l *Loop) runTask(ctx context.Context, name string, task func(ctx context.Context) dispatcher.Intent) (in dispatcher.Intent, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			l.logger.Error("task panic",
				"correlation_id", correlationID,
				"task", name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()
	return task(ctx), true
}

// Run dispatches queued intents until ctx is done, then cancels in-flight
// tasks and waits for them.
//
// Handler errors are logged and the loop carries on. A re-entrant dispatch
// is a wiring bug: Run stops and returns it. Run returns nil when ctx is
// cancelled and [ErrRunning] if called more than once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrRunning
	}
	l.started = true
	l.mu.Unlock()

	defer l.stop()

	for {
		for {
			in, ok := l.next()
			if !ok {
				break
			}
			if err := l.dispatch(in); err != nil {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (dispatcher.Intent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) == 0 {
		return dispatcher.Intent{}, false
	}
	in := l.queue[0]
	l.queue[0] = dispatcher.Intent{}
	l.queue = l.queue[1:]
	return in, true
}

// dispatch delivers one intent. Only a re-entrant dispatch is returned.
func (l *Loop) dispatch(in dispatcher.Intent) error {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			l.logger.Error("handler panic",
				"correlation_id", correlationID,
				"intent", in.Kind,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("handler panic (correlation_id: %s)", correlationID)
		}

		if l.observer != nil {
			l.observer.ObserveDispatch(in.Kind, time.Since(start), err)
		}
	}()

	err = l.dispatcher.Dispatch(in)
	if err == nil {
		return nil
	}
	if errors.Is(err, dispatcher.ErrReentrantDispatch) {
		l.logger.Error("re-entrant dispatch, stopping", "intent", in.Kind, "error", err)
		return fmt.Errorf("dispatch %s: %w", in.Kind, err)
	}

	l.logger.Warn("dispatch failed", "intent", in.Kind, "error", err)
	return nil
}

func (l *Loop) stop() {
	l.mu.Lock()
	l.stopped = true
	dropped := len(l.queue)
	l.queue = nil
	l.mu.Unlock()

	if dropped > 0 {
		l.logger.Debug("discarding queued intents", "count", dropped)
	}

	l.cancel()
	l.tasks.Wait()
}
