package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/watchboard"
	"github.com/jpalmerr/watchboard/example/mockservice"
)

func main() {
	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start the mock service (see mockservice/service.go)
	svc := mockservice.New(slog.Default())
	go svc.Run(ctx, 3*time.Second)
	go func() {
		srv := &http.Server{Addr: ":9999", Handler: svc.Handler(), ReadHeaderTimeout: 10 * time.Second}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("mock service error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	wb, err := watchboard.New(
		watchboard.WithServiceURL("http://localhost:9999"),
		watchboard.WithPushWebSocket("ws://localhost:9999/ws"),
		watchboard.WithReconnectDelay(2*time.Second),
		watchboard.WithMirror(8080),
		watchboard.WithTitle("Watchboard Demo"),
	)
	if err != nil {
		slog.Error("failed to create watchboard", "error", err)
		os.Exit(1)
	}

	// print changes as they land
	wb.SubscribeChecks(func() {
		fmt.Printf("checks: %d total, %d unseen\n", len(wb.Checks().Checks), countUnseen(wb.CheckRows()))
	})

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Watchboard Demo                                     ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Open http://localhost:8080 in your browser          ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Mock service on :9999 reports changes every few     ║")
	fmt.Println("  ║   seconds over a WebSocket push connection            ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	if err := wb.Start(ctx); err != nil {
		slog.Error("watchboard error", "error", err)
		os.Exit(1)
	}
}

func countUnseen(rows []watchboard.CheckRow) int {
	n := 0
	for _, r := range rows {
		if !r.Seen {
			n++
		}
	}
	return n
}
