package push

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/net/websocket"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "ws://localhost:3000/ws", want: "http://localhost:3000"},
		{in: "wss://watch.example.com/ws", want: "https://watch.example.com"},
		{in: "http://localhost/ws", wantErr: true},
		{in: "ws:///ws", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := websocketOrigin(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("websocketOrigin(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if got != tt.want {
				t.Errorf("websocketOrigin(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWebSocketSource_Receive(t *testing.T) {
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		_ = websocket.Message.Send(ws, `{"type":"new_log","data":{"message":"one"}}`)
		_ = websocket.Message.Send(ws, `{"type":"updated_check","data":{"id":2}}`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	src, err := DialWebSocket(ctx, wsURL(srv))
	if err != nil {
		t.Fatalf("DialWebSocket() error: %v", err)
	}
	defer src.Close()

	first, err := src.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if !strings.Contains(string(first), `"one"`) {
		t.Errorf("first message = %s", first)
	}

	second, err := src.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if !strings.Contains(string(second), `"id":2`) {
		t.Errorf("second message = %s", second)
	}

	// the handler returned, so the server closed the connection
	if _, err := src.Receive(ctx); err == nil {
		t.Error("expected error after server closed the connection")
	}
}

func TestWebSocketSource_CancelUnblocksReceive(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	src, err := DialWebSocket(context.Background(), wsURL(srv))
	if err != nil {
		t.Fatalf("DialWebSocket() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := src.Receive(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Receive() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after cancel")
	}

	if _, err := src.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after close = %v, want ErrClosed", err)
	}
}

func TestDialWebSocket_BadURL(t *testing.T) {
	if _, err := DialWebSocket(context.Background(), "http://localhost/ws"); err == nil {
		t.Error("expected error for http scheme")
	}
}

func TestDialNATS_RequiresSubject(t *testing.T) {
	if _, err := DialNATS(nats.DefaultURL, ""); err == nil {
		t.Error("expected error for empty subject")
	}
}

// TestNATSSource_Receive runs against a real server when WATCHBOARD_TEST_NATS_URL
// is set.
func TestNATSSource_Receive(t *testing.T) {
	natsURL := os.Getenv("WATCHBOARD_TEST_NATS_URL")
	if natsURL == "" {
		t.Skip("WATCHBOARD_TEST_NATS_URL not set")
	}

	subject := "watchboard.test." + strings.ReplaceAll(t.Name(), "/", ".")
	src, err := DialNATS(natsURL, subject)
	if err != nil {
		t.Fatalf("DialNATS() error: %v", err)
	}
	defer src.Close()

	pub, err := nats.Connect(natsURL)
	if err != nil {
		t.Fatalf("connect publisher: %v", err)
	}
	defer pub.Close()

	if err := pub.Publish(subject, []byte(`{"type":"new_log","data":{}}`)); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	if err := pub.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := src.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error: %v", err)
	}
	if !strings.Contains(string(msg), "new_log") {
		t.Errorf("message = %s", msg)
	}

	src.Close()
	if _, err := src.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after close = %v, want ErrClosed", err)
	}
}
