package watchboard

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/watchboard/internal/push"
)

func TestNew_Valid(t *testing.T) {
	c, err := New(WithServiceURL("http://localhost:8080"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c == nil {
		t.Fatal("New() returned nil Client")
	}
}

func TestNew_NoServiceURL(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("New() expected error for missing service url, got nil")
	}
	if !strings.Contains(err.Error(), "service url is required") {
		t.Errorf("New() error = %v, want error containing 'service url is required'", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(WithServiceURL("http://localhost:8080"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if c.reconnectDelay != defaultReconnectDelay {
		t.Errorf("reconnectDelay = %v, want %v", c.reconnectDelay, defaultReconnectDelay)
	}
	if c.mirror {
		t.Error("mirror enabled by default")
	}
	if c.dial != nil {
		t.Error("push source configured by default")
	}
	if c.title != "" {
		t.Errorf("title = %q, want empty (server applies default)", c.title)
	}
}

func TestWithServiceURL_Invalid(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"no scheme", "localhost:8080"},
		{"ftp scheme", "ftp://localhost"},
		{"no host", "http://"},
		{"garbage", "://"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(WithServiceURL(tt.url)); err == nil {
				t.Errorf("New(WithServiceURL(%q)) expected error, got nil", tt.url)
			}
		})
	}
}

func TestWithRequestTimeout_Invalid(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		_, err := New(WithServiceURL("http://localhost"), WithRequestTimeout(d))
		if err == nil {
			t.Errorf("WithRequestTimeout(%v) expected error, got nil", d)
		}
	}
}

func TestWithMaxConcurrency_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value int
	}{
		{"zero", 0},
		{"negative", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithServiceURL("http://localhost"), WithMaxConcurrency(tt.value))
			if err == nil {
				t.Errorf("WithMaxConcurrency(%d) expected error, got nil", tt.value)
			}
		})
	}
}

func TestWithMirror(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"any free port", 0, false},
		{"minimum", 1, false},
		{"maximum", 65535, false},
		{"negative", -1, true},
		{"too high", 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(WithServiceURL("http://localhost"), WithMirror(tt.port))
			if (err != nil) != tt.wantErr {
				t.Fatalf("WithMirror(%d) error = %v, wantErr %v", tt.port, err, tt.wantErr)
			}
			if err == nil && (!c.mirror || c.mirrorPort != tt.port) {
				t.Errorf("mirror = %v port %d, want enabled on %d", c.mirror, c.mirrorPort, tt.port)
			}
		})
	}
}

func TestWithPushWebSocket(t *testing.T) {
	c, err := New(WithServiceURL("http://localhost"), WithPushWebSocket("wss://svc.example.com/ws"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.dial == nil || c.pushName != "websocket" {
		t.Errorf("push = %q, dial set = %v", c.pushName, c.dial != nil)
	}

	if _, err := New(WithServiceURL("http://localhost"), WithPushWebSocket("http://svc/ws")); err == nil {
		t.Error("WithPushWebSocket(http://...) expected error, got nil")
	}
}

func TestWithPushNATS_Invalid(t *testing.T) {
	if _, err := New(WithServiceURL("http://localhost"), WithPushNATS("nats://localhost:4222", "")); err == nil {
		t.Error("WithPushNATS without subject expected error, got nil")
	}
	if _, err := New(WithServiceURL("http://localhost"), WithPushNATS("", "watchboard.events")); err == nil {
		t.Error("WithPushNATS without url expected error, got nil")
	}
}

func TestWithPushSource(t *testing.T) {
	dial := func(context.Context) (push.Source, error) { return nil, nil }

	c, err := New(WithServiceURL("http://localhost"), WithPushSource(dial))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.dial == nil {
		t.Error("push source not set")
	}

	if _, err := New(WithServiceURL("http://localhost"), WithPushSource(nil)); err == nil {
		t.Error("WithPushSource(nil) expected error, got nil")
	}
}

func TestWithReconnectDelay(t *testing.T) {
	c, err := New(WithServiceURL("http://localhost"), WithReconnectDelay(time.Second))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.reconnectDelay != time.Second {
		t.Errorf("reconnectDelay = %v, want 1s", c.reconnectDelay)
	}

	if _, err := New(WithServiceURL("http://localhost"), WithReconnectDelay(0)); err == nil {
		t.Error("WithReconnectDelay(0) expected error, got nil")
	}
}

func TestWithHTTPClient_Nil(t *testing.T) {
	if _, err := New(WithServiceURL("http://localhost"), WithHTTPClient(nil)); err == nil {
		t.Error("WithHTTPClient(nil) expected error, got nil")
	}
	if _, err := New(WithServiceURL("http://localhost"), WithHTTPClient(&http.Client{})); err != nil {
		t.Errorf("WithHTTPClient() error = %v", err)
	}
}

func TestWithLogger_Nil(t *testing.T) {
	_, err := New(WithServiceURL("http://localhost"), WithLogger(nil))
	if err == nil {
		t.Fatal("New() expected error for nil logger, got nil")
	}
	if !strings.Contains(err.Error(), "logger cannot be nil") {
		t.Errorf("New() error = %v, want error containing 'logger cannot be nil'", err)
	}
}

func TestWithTitle(t *testing.T) {
	c, err := New(WithServiceURL("http://localhost"), WithTitle("Price Watch"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.title != "Price Watch" {
		t.Errorf("title = %q, want %q", c.title, "Price Watch")
	}
}
