package watchboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jpalmerr/watchboard/dashboard"
	"github.com/jpalmerr/watchboard/internal/actions"
	"github.com/jpalmerr/watchboard/internal/api"
	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/loop"
	"github.com/jpalmerr/watchboard/internal/metrics"
	"github.com/jpalmerr/watchboard/internal/model"
	"github.com/jpalmerr/watchboard/internal/push"
	"github.com/jpalmerr/watchboard/internal/server"
	"github.com/jpalmerr/watchboard/internal/store"
	"github.com/jpalmerr/watchboard/internal/view"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxConcurrency = 4
	defaultReconnectDelay = 5 * time.Second
)

type (
	// Check is a watched resource; see the model package for field details.
	Check = model.Check

	// LogEntry is one entry of the service's log.
	LogEntry = model.LogEntry

	// CheckState is a snapshot of the check store.
	CheckState = store.CheckState

	// LogState is a snapshot of the log store.
	LogState = store.LogState

	// Failure is the outcome of a failed request, carried in snapshots until
	// dismissed.
	Failure = store.Failure

	// CheckRow is a check prepared for display.
	CheckRow = view.CheckRow

	// LogRow is a log entry prepared for display.
	LogRow = view.LogRow
)

// Client keeps a local copy of a monitoring service's checks and logs in
// sync with the service.
//
// Client is the explicit context built once at startup: it owns the
// dispatcher, both stores, the event loop and the optional push ingester
// and mirror server. Create one with [New] and run it with [Client.Start].
//
//	c, err := watchboard.New(
//	    watchboard.WithServiceURL("http://localhost:8080"),
//	    watchboard.WithPushWebSocket("ws://localhost:8080/ws"),
//	)
//	if err != nil {
//	    slog.Error("failed to create client", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	c.Start(ctx) // blocks until context cancelled
//
// Snapshot accessors and action methods are safe for concurrent use.
// Actions only queue an intent; their outcome shows up in a later snapshot.
type Client struct {
	title          string
	mirror         bool
	mirrorPort     int
	pushName       string
	dial           DialFunc
	reconnectDelay time.Duration
	logger         *slog.Logger

	api     *api.Client
	checks  *store.CheckStore
	logs    *store.LogStore
	loop    *loop.Loop
	actions *actions.Actions
	metrics *metrics.Recorder

	mu     sync.Mutex
	server *server.Server
}

// New creates a [Client] with the given options.
//
// [WithServiceURL] is required. Other options have sensible defaults:
//   - Request timeout: 10 seconds
//   - Max concurrency: 4
//   - Push reconnect delay: 5 seconds
//   - No push source and no mirror server
//
// Returns an error if the service URL is missing or any option is invalid.
func New(opts ...Option) (*Client, error) {
	cfg := &wbConfig{
		requestTimeout: defaultRequestTimeout,
		maxConcurrency: defaultMaxConcurrency,
		reconnectDelay: defaultReconnectDelay,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.serviceURL == "" {
		return nil, errors.New("service url is required")
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	rec := metrics.NewRecorder()

	clientOpts := []api.ClientOption{
		api.WithTimeout(cfg.requestTimeout),
		api.WithObserver(rec),
		api.WithLogger(logger),
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(cfg.httpClient))
	}
	apiClient, err := api.NewClient(cfg.serviceURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	d := dispatcher.New()
	lp := loop.New(d, cfg.maxConcurrency, logger, loop.WithObserver(rec))

	checks := store.NewCheckStore(apiClient, lp, logger)
	logs := store.NewLogStore(apiClient, lp, logger)
	d.Register(checks)
	d.Register(logs)

	c := &Client{
		title:          cfg.title,
		mirror:         cfg.mirror,
		mirrorPort:     cfg.mirrorPort,
		pushName:       cfg.pushName,
		dial:           cfg.dial,
		reconnectDelay: cfg.reconnectDelay,
		logger:         logger,
		api:            apiClient,
		checks:         checks,
		logs:           logs,
		loop:           lp,
		actions:        actions.New(lp),
		metrics:        rec,
	}
	c.instrument()
	return c, nil
}

// instrument registers store gauges and counts change notifications.
func (c *Client) instrument() {
	c.checks.Subscribe(func() { c.metrics.StoreChanged("checks") })
	c.logs.Subscribe(func() { c.metrics.StoreChanged("logs") })

	c.metrics.GaugeFunc("checks", "Checks in the local store", func() float64 {
		return float64(len(c.checks.State().Checks))
	})
	c.metrics.GaugeFunc("checks_unseen", "Checks with an unacknowledged change", func() float64 {
		return float64(view.Unseen(c.checks.State().Checks))
	})
	c.metrics.GaugeFunc("logs", "Log entries in the local store", func() float64 {
		return float64(len(c.logs.State().Logs))
	})
	c.metrics.GaugeFunc("loop_pending_intents", "Intents queued for dispatch", func() float64 {
		return float64(c.loop.Pending())
	})
}

// Start loads checks and logs from the service and keeps them in sync until
// ctx is cancelled.
//
// Start is a blocking call. During execution:
//
//   - Checks and logs are fetched once, immediately
//   - The push source, if configured, is dialed and redialed after failures
//   - The mirror server, if enabled, serves on the configured port
//
// Returns nil on graceful shutdown. Returns an error if the mirror server
// fails to start, if Start was already called, or if a store handler
// dispatched re-entrantly.
func (c *Client) Start(ctx context.Context) error {
	c.logger.Info("watchboard starting", "service", c.api.BaseURL(), "push", c.pushLabel())

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c.mirror {
		srv := server.NewServer(c.checks, c.logs, c.actions, server.Config{
			Port:    c.mirrorPort,
			Title:   c.title,
			Assets:  dashboard.Assets,
			Metrics: c.metrics.Handler(),
		}, c.logger)
		if err := srv.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start mirror server: %w", err)
		}
		c.mu.Lock()
		c.server = srv
		c.mu.Unlock()
	}

	// queued now, dispatched as soon as the loop runs
	if err := c.actions.RefreshChecks(); err != nil {
		return err
	}
	if err := c.actions.RefreshLogs(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if c.dial != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.runPush(runCtx)
		}()
	}

	err := c.loop.Run(runCtx)

	// the loop may have stopped on its own; take the push side down with it
	cancel()
	wg.Wait()
	c.api.Close()

	if err != nil {
		return err
	}
	c.logger.Info("watchboard stopped")
	return nil
}

// runPush keeps an ingester running against the push source until ctx is
// done or the loop stops accepting intents.
func (c *Client) runPush(ctx context.Context) {
	for {
		src, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("push source unavailable", "push", c.pushName, "error", err)
		} else {
			c.logger.Info("push source connected", "push", c.pushName)
			c.metrics.SetPushConnected(true)

			err = push.NewIngester(src, c.loop, c.logger, c.metrics).Run(ctx)

			c.metrics.SetPushConnected(false)
			if cerr := src.Close(); cerr != nil {
				c.logger.Debug("closing push source", "error", cerr)
			}
			if errors.Is(err, loop.ErrStopped) {
				return
			}
			if err != nil {
				c.logger.Warn("push source lost", "push", c.pushName, "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectDelay):
		}
		c.metrics.IncPushReconnect()
	}
}

func (c *Client) pushLabel() string {
	if c.pushName == "" {
		return "none"
	}
	return c.pushName
}

// Checks returns a snapshot of the check store.
func (c *Client) Checks() CheckState {
	return c.checks.State()
}

// Logs returns a snapshot of the log store.
func (c *Client) Logs() LogState {
	return c.logs.State()
}

// CheckRows returns the checks prepared for display: unseen first, then by
// id.
func (c *Client) CheckRows() []CheckRow {
	return view.CheckRows(c.checks.State().Checks)
}

// LogRows returns the log entries prepared for display, newest first.
func (c *Client) LogRows() []LogRow {
	return view.SortLogs(c.logs.State().Logs)
}

// SubscribeChecks registers fn to be called after every change to the
// check store and returns a function that removes it.
//
// fn runs on the dispatch goroutine. It may read snapshots and call action
// methods but must not block.
func (c *Client) SubscribeChecks(fn func()) (unsubscribe func()) {
	return c.checks.Subscribe(fn)
}

// SubscribeLogs registers fn to be called after every change to the log
// store. The same rules as [Client.SubscribeChecks] apply.
func (c *Client) SubscribeLogs(fn func()) (unsubscribe func()) {
	return c.logs.Subscribe(fn)
}

// CreateCheck asks the service to start watching pageURL.
func (c *Client) CreateCheck(pageURL, selector, schedule string) error {
	return c.actions.CreateCheck(pageURL, selector, schedule)
}

// RefreshChecks reloads the check list from the service.
func (c *Client) RefreshChecks() error {
	return c.actions.RefreshChecks()
}

// DeleteCheck deletes the check with the given id.
func (c *Client) DeleteCheck(id uint64) error {
	return c.actions.DeleteCheck(id)
}

// MarkCheckRead acknowledges the latest change of a check.
func (c *Client) MarkCheckRead(id uint64) error {
	return c.actions.MarkCheckRead(id)
}

// RefreshCheck asks the service to run a check now.
func (c *Client) RefreshCheck(id uint64) error {
	return c.actions.RefreshCheck(id)
}

// AppendLog adds a local entry to the log store.
func (c *Client) AppendLog(level, message string) error {
	return c.actions.AppendLog(level, message)
}

// ClearLogs deletes every log entry on the service.
func (c *Client) ClearLogs() error {
	return c.actions.ClearLogs()
}

// RefreshLogs loads the service's log entries.
func (c *Client) RefreshLogs() error {
	return c.actions.RefreshLogs()
}

// DismissFailure clears the failure outcome of both stores.
func (c *Client) DismissFailure() error {
	return c.actions.DismissFailure()
}

// MetricsHandler serves the Client's Prometheus metrics.
func (c *Client) MetricsHandler() http.Handler {
	return c.metrics.Handler()
}

// MirrorAddr returns the mirror server's listen address, or nil when the
// mirror is disabled or not started.
func (c *Client) MirrorAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server == nil {
		return nil
	}
	return c.server.Addr()
}
