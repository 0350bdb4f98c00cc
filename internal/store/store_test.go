package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/model"
)

// queuedTask is a request scheduled by a store but not yet run.
type queuedTask struct {
	name string
	fn   func(ctx context.Context) dispatcher.Intent
}

// manualScheduler holds scheduled tasks until the test runs them, so tests
// control the order in which completions arrive.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []queuedTask
}

func (m *manualScheduler) Go(name string, fn func(ctx context.Context) dispatcher.Intent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, queuedTask{name: name, fn: fn})
}

func (m *manualScheduler) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// take removes the i-th scheduled task and runs its request, returning the
// completion intent without dispatching it.
func (m *manualScheduler) take(t *testing.T, i int) dispatcher.Intent {
	t.Helper()

	m.mu.Lock()
	if i >= len(m.tasks) {
		m.mu.Unlock()
		t.Fatalf("no scheduled task %d (have %d)", i, len(m.tasks))
	}
	task := m.tasks[i]
	m.tasks = append(m.tasks[:i:i], m.tasks[i+1:]...)
	m.mu.Unlock()

	return task.fn(context.Background())
}

// fakeAPI implements CheckAPI and LogAPI with canned responses.
type fakeAPI struct {
	mu sync.Mutex

	checks    []model.Check
	logs      []model.LogEntry
	created   model.Check
	seen      map[uint64]model.Check
	refreshed map[uint64]model.CheckPatch
	err       error

	calls []string
}

func (f *fakeAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeAPI) ListChecks(ctx context.Context) ([]model.Check, error) {
	if err := f.record("list checks"); err != nil {
		return nil, err
	}
	return f.checks, nil
}

func (f *fakeAPI) CreateCheck(ctx context.Context, pageURL, selector, schedule string) (model.Check, error) {
	if err := f.record("create " + pageURL); err != nil {
		return model.Check{}, err
	}
	return f.created, nil
}

func (f *fakeAPI) DeleteCheck(ctx context.Context, id uint64) error {
	return f.record("delete")
}

func (f *fakeAPI) SetCheckSeen(ctx context.Context, id uint64, seen bool) (model.Check, error) {
	if err := f.record("seen"); err != nil {
		return model.Check{}, err
	}
	if c, ok := f.seen[id]; ok {
		return c, nil
	}
	return model.Check{ID: id, Seen: seen}, nil
}

func (f *fakeAPI) RefreshCheck(ctx context.Context, id uint64) (model.CheckPatch, error) {
	if err := f.record("refresh"); err != nil {
		return model.CheckPatch{}, err
	}
	return f.refreshed[id], nil
}

func (f *fakeAPI) ListLogs(ctx context.Context) ([]model.LogEntry, error) {
	if err := f.record("list logs"); err != nil {
		return nil, err
	}
	return f.logs, nil
}

func (f *fakeAPI) ClearLogs(ctx context.Context) error {
	return f.record("clear logs")
}

var errBoom = errors.New("boom")

// counter subscribes to e and counts notifications.
type counter struct {
	n int
}

func countChanges(e interface{ Subscribe(func()) func() }) *counter {
	c := &counter{}
	e.Subscribe(func() { c.n++ })
	return c
}

func mustDispatch(t *testing.T, d *dispatcher.Dispatcher, in dispatcher.Intent) {
	t.Helper()
	if err := d.Dispatch(in); err != nil {
		t.Fatalf("Dispatch(%s) error: %v", in.Kind, err)
	}
}

func TestFailure_String(t *testing.T) {
	f := Failure{Op: OpDeleteCheck, CheckID: 7, Err: errBoom}
	if got, want := f.String(), "delete check #7: boom"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	f = Failure{Op: OpClearLogs, Err: errBoom}
	if got, want := f.String(), "clear logs: boom"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFailure_MarshalJSON(t *testing.T) {
	f := Failure{Op: OpRefreshCheck, CheckID: 3, Err: errBoom}
	data, err := f.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}
	for _, want := range []string{`"op":"refresh check"`, `"check_id":3`, `"error":"boom"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("MarshalJSON() = %s, missing %s", data, want)
		}
	}
}

func TestPayload_WrongType(t *testing.T) {
	_, err := payload[CheckRef](dispatcher.Intent{Kind: KindDeleteCheck, Payload: "nope"})
	if err == nil {
		t.Fatal("expected error for mismatched payload")
	}
}
