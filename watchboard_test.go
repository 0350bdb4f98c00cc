package watchboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/watchboard/internal/loop"
	"github.com/jpalmerr/watchboard/internal/push"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeService is a minimal stand-in for the monitoring service.
type fakeService struct {
	mu       sync.Mutex
	checks   []Check
	logs     []LogEntry
	deleted  []string
	failLogs bool
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/checks":
		_ = json.NewEncoder(w).Encode(f.checks)
	case r.Method == http.MethodGet && r.URL.Path == "/api/logs":
		if f.failLogs {
			http.Error(w, "database unavailable", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(f.logs)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/checks/"):
		f.deleted = append(f.deleted, strings.TrimPrefix(r.URL.Path, "/api/checks/"))
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func newFakeService(t *testing.T, f *fakeService) string {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return ts.URL
}

// chanSource is a push source fed by the test.
type chanSource struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{msgs: make(chan []byte, 8), closed: make(chan struct{})}
}

func (s *chanSource) Receive(ctx context.Context) ([]byte, error) {
	select {
	case m := <-s.msgs:
		return m, nil
	case <-s.closed:
		return nil, push.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *chanSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// run starts c and stops it when the test ends.
func run(t *testing.T, c *Client) (cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan error, 1)
	go func() { ch <- c.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Error("Start() did not return after context cancellation")
		}
	})
	return cancel, ch
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStart_LoadsInitialState(t *testing.T) {
	svc := &fakeService{
		checks: []Check{{ID: 1, URL: "https://a.test"}, {ID: 2, URL: "https://b.test", Seen: true}},
		logs:   []LogEntry{{Time: "2024-01-01T00:00:00Z", Level: "info", Message: "boot"}},
	}
	c, err := New(WithServiceURL(newFakeService(t, svc)), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run(t, c)

	eventually(t, "initial checks", func() bool { return len(c.Checks().Checks) == 2 })
	eventually(t, "initial logs", func() bool { return len(c.Logs().Logs) == 1 })

	rows := c.CheckRows()
	if rows[0].ID != 1 || !rows[0].NeverChecked {
		t.Errorf("first row = %+v, want unseen, never-checked check 1", rows[0])
	}
	if got := c.LogRows()[0].Message; got != "boot" {
		t.Errorf("log row message = %q, want boot", got)
	}
}

func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	c, err := New(WithServiceURL(newFakeService(t, &fakeService{})), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cancel, done := run(t, c)
	time.Sleep(50 * time.Millisecond)

	// verify Start is still blocking
	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	c, err := New(WithServiceURL("http://127.0.0.1:1"), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not return with already-cancelled context")
	}
}

func TestStart_Twice(t *testing.T) {
	c, err := New(WithServiceURL(newFakeService(t, &fakeService{})), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run(t, c)
	time.Sleep(50 * time.Millisecond)

	err = c.Start(context.Background())
	if !errors.Is(err, loop.ErrRunning) {
		t.Errorf("second Start() error = %v, want ErrRunning", err)
	}
}

func TestStart_PushMessagesMerge(t *testing.T) {
	svc := &fakeService{checks: []Check{{ID: 7, URL: "https://a.test"}}}
	src := newChanSource()

	c, err := New(
		WithServiceURL(newFakeService(t, svc)),
		WithPushSource(func(context.Context) (push.Source, error) { return src, nil }),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run(t, c)
	eventually(t, "initial checks", func() bool { return len(c.Checks().Checks) == 1 })

	src.msgs <- []byte(`{"type":"updated_check","data":{"id":7,"last_hash":"abc","seen":false}}`)
	src.msgs <- []byte(`{"type":"new_log","data":{"time":"2024-05-01T12:00:00Z","level":"info","message":"check 7 changed"}}`)
	src.msgs <- []byte(`{"type":"heartbeat"}`)

	eventually(t, "pushed log", func() bool { return len(c.Logs().Logs) == 1 })
	eventually(t, "merged check", func() bool {
		got, ok := c.Checks().Find(7)
		return ok && got.LastHash == "abc"
	})

	got, _ := c.Checks().Find(7)
	if got.URL != "https://a.test" {
		t.Errorf("URL = %q, fields absent from the push must be kept", got.URL)
	}
}

func TestStart_PushRedialsAfterFailure(t *testing.T) {
	src := newChanSource()
	var dials atomic.Int32

	c, err := New(
		WithServiceURL(newFakeService(t, &fakeService{})),
		WithPushSource(func(context.Context) (push.Source, error) {
			if dials.Add(1) == 1 {
				return nil, errors.New("connection refused")
			}
			return src, nil
		}),
		WithReconnectDelay(10*time.Millisecond),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run(t, c)

	src.msgs <- []byte(`{"type":"new_log","data":{"time":"2024-05-01T12:00:00Z","level":"warn","message":"after redial"}}`)
	eventually(t, "log after redial", func() bool { return len(c.Logs().Logs) == 1 })

	if n := dials.Load(); n < 2 {
		t.Errorf("dials = %d, want at least 2", n)
	}

	rec := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "watchboard_push_reconnects_total") {
		t.Error("metrics missing push_reconnects_total")
	}
}

func TestClient_DeleteCheck(t *testing.T) {
	svc := &fakeService{checks: []Check{{ID: 3, URL: "https://a.test"}}}
	c, err := New(WithServiceURL(newFakeService(t, svc)), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run(t, c)
	eventually(t, "initial checks", func() bool { return len(c.Checks().Checks) == 1 })

	if err := c.DeleteCheck(3); err != nil {
		t.Fatalf("DeleteCheck() error = %v", err)
	}
	eventually(t, "check removed", func() bool { return len(c.Checks().Checks) == 0 })

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.deleted) != 1 || svc.deleted[0] != "3" {
		t.Errorf("service saw deletes %v, want [3]", svc.deleted)
	}
}

func TestClient_FailureOutcome(t *testing.T) {
	svc := &fakeService{failLogs: true}
	c, err := New(WithServiceURL(newFakeService(t, svc)), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	run(t, c)
	eventually(t, "log failure", func() bool { return c.Logs().Failure != nil })

	if err := c.DismissFailure(); err != nil {
		t.Fatalf("DismissFailure() error = %v", err)
	}
	eventually(t, "failure dismissed", func() bool { return c.Logs().Failure == nil })
}

func TestClient_InvalidInputRejected(t *testing.T) {
	c, err := New(WithServiceURL("http://localhost"), WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.CreateCheck("not a url", "h1", "@hourly"); err == nil {
		t.Error("CreateCheck() with invalid url expected error, got nil")
	}
	if err := c.MarkCheckRead(0); err == nil {
		t.Error("MarkCheckRead(0) expected error, got nil")
	}
}

func TestClient_Subscribe(t *testing.T) {
	src := newChanSource()
	c, err := New(
		WithServiceURL(newFakeService(t, &fakeService{})),
		WithPushSource(func(context.Context) (push.Source, error) { return src, nil }),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var calls atomic.Int32
	unsubscribe := c.SubscribeLogs(func() { calls.Add(1) })
	defer unsubscribe()

	run(t, c)
	src.msgs <- []byte(`{"type":"new_log","data":{"time":"2024-05-01T12:00:00Z","level":"info","message":"hello"}}`)

	eventually(t, "subscriber call", func() bool { return calls.Load() >= 1 })
}

func TestClient_Mirror(t *testing.T) {
	svc := &fakeService{checks: []Check{{ID: 4, URL: "https://a.test"}}}
	c, err := New(
		WithServiceURL(newFakeService(t, svc)),
		WithMirror(0),
		WithTitle("Mirror Test"),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if c.MirrorAddr() != nil {
		t.Error("MirrorAddr() before Start should be nil")
	}

	run(t, c)
	eventually(t, "mirror listening", func() bool { return c.MirrorAddr() != nil })
	eventually(t, "initial checks", func() bool { return len(c.Checks().Checks) == 1 })

	base := fmt.Sprintf("http://127.0.0.1:%d", c.MirrorAddr().(*net.TCPAddr).Port)

	resp, err := http.Get(base + "/api/checks")
	if err != nil {
		t.Fatalf("GET /api/checks: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "https://a.test") {
		t.Errorf("/api/checks body = %s", body)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "watchboard_checks 1") {
		t.Errorf("/metrics missing watchboard_checks gauge")
	}

	resp, err = http.Get(base + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "Mirror Test") {
		t.Errorf("dashboard does not carry the title")
	}
}

func TestStart_MirrorPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	c, err := New(
		WithServiceURL("http://localhost"),
		WithMirror(ln.Addr().(*net.TCPAddr).Port),
		WithLogger(testLogger()),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = c.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to start mirror server") {
		t.Errorf("Start() error = %v, want mirror bind error", err)
	}
}
