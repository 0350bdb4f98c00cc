package push

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chanSource delivers messages from a channel; closing the channel fails
// the next Receive.
type chanSource struct {
	msgs chan []byte
}

func (s *chanSource) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case m, ok := <-s.msgs:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	}
}

func (s *chanSource) Close() error { return nil }

type fakePoster struct {
	mu     sync.Mutex
	posted []dispatcher.Intent
	err    error
}

func (p *fakePoster) Post(in dispatcher.Intent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.posted = append(p.posted, in)
	return nil
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObservePush(msgType, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[msgType+"/"+outcome]++
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind dispatcher.Kind
		wantOK   bool
		wantErr  bool
	}{
		{
			name:     "new log",
			raw:      `{"type":"new_log","data":{"time":"2024-01-01T00:00:00Z","level":"info","message":"hi","fields":{"id":1}}}`,
			wantKind: store.KindPushLog,
			wantOK:   true,
		},
		{
			name:     "updated check",
			raw:      `{"type":"updated_check","data":{"id":3,"last_hash":"abc"}}`,
			wantKind: store.KindPushCheck,
			wantOK:   true,
		},
		{name: "unknown type", raw: `{"type":"stats","data":{}}`},
		{name: "not json", raw: `nope`, wantErr: true},
		{name: "missing type", raw: `{"data":{}}`, wantErr: true},
		{name: "check without id", raw: `{"type":"updated_check","data":{"seen":true}}`, wantErr: true},
		{name: "log data not an object", raw: `{"type":"new_log","data":"text"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, ok, err := Decode([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("Decode() error = %v, want ErrMalformed", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && in.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", in.Kind, tt.wantKind)
			}
		})
	}
}

func TestDecode_Payloads(t *testing.T) {
	in, _, err := Decode([]byte(`{"type":"new_log","data":{"time":"t","level":"warn","message":"m"}}`))
	if err != nil {
		t.Fatal(err)
	}
	pl := in.Payload.(store.PushLog)
	if pl.Entry.Level != "warn" || pl.Entry.Fields == nil {
		t.Errorf("Entry = %+v, want level warn and non-nil fields", pl.Entry)
	}

	in, _, err = Decode([]byte(`{"type":"updated_check","data":{"id":9,"seen":false}}`))
	if err != nil {
		t.Fatal(err)
	}
	pc := in.Payload.(store.PushCheck)
	if pc.Patch.Key() != 9 || pc.Patch.Seen == nil || *pc.Patch.Seen {
		t.Errorf("Patch = %+v, want id 9 and seen=false present", pc.Patch)
	}
	if pc.Patch.URL != nil {
		t.Error("absent url decoded as present")
	}
}

func TestIngester_PostsDecodedMessages(t *testing.T) {
	src := &chanSource{msgs: make(chan []byte, 8)}
	poster := &fakePoster{}
	obs := &countingObserver{}

	src.msgs <- []byte(`{"type":"updated_check","data":{"id":1,"seen":true}}`)
	src.msgs <- []byte(`garbage`)
	src.msgs <- []byte(`{"type":"whatever","data":null}`)
	src.msgs <- []byte(`{"type":"new_log","data":{"message":"x"}}`)
	close(src.msgs)

	err := NewIngester(src, poster, testLogger(), obs).Run(context.Background())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Run() error = %v, want wrapped io.EOF", err)
	}

	if len(poster.posted) != 2 {
		t.Fatalf("posted %d intents, want 2", len(poster.posted))
	}
	if poster.posted[0].Kind != store.KindPushCheck || poster.posted[1].Kind != store.KindPushLog {
		t.Errorf("posted kinds = %s, %s", poster.posted[0].Kind, poster.posted[1].Kind)
	}

	want := map[string]int{
		"updated_check/accepted": 1,
		"unknown/malformed":      1,
		"other/ignored":          1,
		"new_log/accepted":       1,
	}
	for k, n := range want {
		if obs.counts[k] != n {
			t.Errorf("observer[%s] = %d, want %d (all: %v)", k, obs.counts[k], n, obs.counts)
		}
	}
}

func TestIngester_StopsOnCancel(t *testing.T) {
	src := &chanSource{msgs: make(chan []byte)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- NewIngester(src, &fakePoster{}, testLogger(), nil).Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestIngester_PostFailureStops(t *testing.T) {
	src := &chanSource{msgs: make(chan []byte, 1)}
	src.msgs <- []byte(`{"type":"new_log","data":{"message":"x"}}`)

	stopped := errors.New("loop stopped")
	err := NewIngester(src, &fakePoster{err: stopped}, testLogger(), nil).Run(context.Background())
	if !errors.Is(err, stopped) {
		t.Errorf("Run() error = %v, want post error", err)
	}
}
