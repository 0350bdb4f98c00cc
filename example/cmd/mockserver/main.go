// Standalone mock change-detection service for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/watchboard watch -c example/config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/watchboard/example/mockservice"
)

func main() {
	fmt.Println("Mock change-detection service starting on :9999")
	fmt.Println("REST API under /api, push messages on ws://localhost:9999/ws")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := mockservice.New(logger)
	go svc.Run(ctx, 5*time.Second)

	srv := &http.Server{Addr: ":9999", Handler: svc.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("mock server error", "error", err)
		os.Exit(1)
	}
}
