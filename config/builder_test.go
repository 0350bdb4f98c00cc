package config

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jpalmerr/watchboard"
)

func TestBuildOptions_Minimal(t *testing.T) {
	cfg, err := Parse([]byte(`service_url: http://localhost:8080`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts := BuildOptions(cfg, nil)

	// service url, request timeout, max concurrency
	if len(opts) != 3 {
		t.Errorf("len(opts) = %d, want 3", len(opts))
	}
	if _, err := watchboard.New(opts...); err != nil {
		t.Errorf("New() error = %v", err)
	}
}

func TestBuildOptions_AllSections(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantOpts int
	}{
		{
			name: "websocket push",
			yaml: `
push:
  transport: websocket
  url: ws://localhost:8080/ws
`,
			wantOpts: 5,
		},
		{
			name: "nats push",
			yaml: `
push:
  transport: nats
  url: nats://localhost:4222
  subject: watchboard.events
`,
			wantOpts: 5,
		},
		{
			name: "mirror and title",
			yaml: `
title: Price Watch
mirror:
  enabled: true
  port: 9191
`,
			wantOpts: 5,
		},
		{
			name: "mirror disabled",
			yaml: `
mirror:
  port: 9191
`,
			wantOpts: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}

			opts := BuildOptions(cfg, nil)
			if len(opts) != tt.wantOpts {
				t.Errorf("len(opts) = %d, want %d", len(opts), tt.wantOpts)
			}

			// every option built from a valid config must be accepted
			if _, err := watchboard.New(opts...); err != nil {
				t.Errorf("New() error = %v", err)
			}
		})
	}
}

func TestBuildOptions_Logger(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := BuildOptions(cfg, logger)
	if len(opts) != 4 {
		t.Errorf("len(opts) = %d, want 4", len(opts))
	}
	if _, err := watchboard.New(opts...); err != nil {
		t.Errorf("New() error = %v", err)
	}
}
