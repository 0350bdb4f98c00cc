package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/watchboard/internal/api"
	"github.com/jpalmerr/watchboard/internal/store"
	"github.com/jpalmerr/watchboard/internal/view"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// maxBodyBytes caps action request bodies.
	maxBodyBytes = 64 << 10

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Watchboard"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// CheckSource is the read side of the check store.
type CheckSource interface {
	State() store.CheckState
	Subscribe(fn func()) (unsubscribe func())
}

// LogSource is the read side of the log store.
type LogSource interface {
	State() store.LogState
	Subscribe(fn func()) (unsubscribe func())
}

// Actions are the operations the server can trigger. *actions.Actions
// implements it.
type Actions interface {
	CreateCheck(pageURL, selector, schedule string) error
	RefreshChecks() error
	DeleteCheck(id uint64) error
	MarkCheckRead(id uint64) error
	RefreshCheck(id uint64) error
	AppendLog(level, message string) error
	ClearLogs() error
	RefreshLogs() error
	DismissFailure() error
}

// Config holds the server's optional settings.
type Config struct {
	// Port is the TCP port to listen on. Zero picks a free port.
	Port int

	// Title is the dashboard title (defaults to "Watchboard").
	Title string

	// Assets holds assets/index.html. Nil disables the dashboard.
	Assets fs.FS

	// Metrics serves /metrics. Nil disables the endpoint.
	Metrics http.Handler
}

// Server is the local mirror of Watchboard's state.
//
// Server provides:
//   - GET /: the embedded dashboard
//   - GET /api/checks and GET /api/logs: current snapshots as JSON
//   - GET /api/sse: a Server-Sent Events stream of snapshots on every change
//   - action endpoints that post intents and answer 202 Accepted
//   - GET /metrics: Prometheus metrics
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	checks  CheckSource
	logs    LogSource
	actions Actions
	cfg     Config
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a new HTTP [Server]. A nil logger uses slog.Default().
//
// The server is not started until [Server.Start] is called.
func NewServer(checks CheckSource, logs LogSource, actions Actions, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		checks:  checks,
		logs:    logs,
		actions: actions,
		cfg:     cfg,
		logger:  logger,
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/checks", s.handleChecks)
	mux.HandleFunc("POST /api/checks", s.handleCreateCheck)
	mux.HandleFunc("POST /api/checks/refresh", s.handleAction(func(*http.Request) error { return s.actions.RefreshChecks() }))
	mux.HandleFunc("DELETE /api/checks/{id}", s.handleCheckAction(s.actions.DeleteCheck))
	mux.HandleFunc("POST /api/checks/{id}/read", s.handleCheckAction(s.actions.MarkCheckRead))
	mux.HandleFunc("POST /api/checks/{id}/refresh", s.handleCheckAction(s.actions.RefreshCheck))

	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("POST /api/logs", s.handleAppendLog)
	mux.HandleFunc("DELETE /api/logs", s.handleAction(func(*http.Request) error { return s.actions.ClearLogs() }))
	mux.HandleFunc("POST /api/logs/refresh", s.handleAction(func(*http.Request) error { return s.actions.RefreshLogs() }))

	mux.HandleFunc("DELETE /api/failure", s.handleAction(func(*http.Request) error { return s.actions.DismissFailure() }))

	mux.HandleFunc("GET /api/sse", s.handleSSE)

	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics)
	}
	if s.cfg.Assets != nil {
		mux.HandleFunc("GET /{$}", s.handleDashboard)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.cfg.Port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("mirror server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the address the server listens on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// read index.html from embedded assets
	content, err := fs.ReadFile(s.cfg.Assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.cfg.Title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// checksView is the JSON form of the check store.
type checksView struct {
	Checks  []view.CheckRow `json:"checks"`
	Unseen  int             `json:"unseen"`
	Failure *store.Failure  `json:"failure,omitempty"`
}

// logsView is the JSON form of the log store.
type logsView struct {
	Logs    []view.LogRow  `json:"logs"`
	Failure *store.Failure `json:"failure,omitempty"`
}

// event is one SSE message.
type event struct {
	Store string `json:"store"`
	State any    `json:"state"`
}

func (s *Server) checksView() checksView {
	st := s.checks.State()
	return checksView{
		Checks:  view.CheckRows(st.Checks),
		Unseen:  view.Unseen(st.Checks),
		Failure: st.Failure,
	}
}

func (s *Server) logsView() logsView {
	st := s.logs.State()
	return logsView{Logs: view.SortLogs(st.Logs), Failure: st.Failure}
}

func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.checksView())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.logsView())
}

type createCheckRequest struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	Schedule string `json:"schedule"`
}

func (s *Server) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	var req createCheckRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.accepted(w, s.actions.CreateCheck(req.URL, req.Selector, req.Schedule))
}

type appendLogRequest struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (s *Server) handleAppendLog(w http.ResponseWriter, r *http.Request) {
	var req appendLogRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.accepted(w, s.actions.AppendLog(req.Level, req.Message))
}

// handleAction adapts an action without input.
func (s *Server) handleAction(fn func(r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.accepted(w, fn(r))
	}
}

// handleCheckAction adapts an action on the check named by the {id} path
// segment.
func (s *Server) handleCheckAction(fn func(id uint64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
		if err != nil || id == 0 {
			s.writeError(w, http.StatusBadRequest, "invalid check id", "id")
			return
		}
		s.accepted(w, fn(id))
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return false
	}
	return true
}

// accepted answers an action request. The action only queued an intent; its
// outcome arrives later through the snapshots.
func (s *Server) accepted(w http.ResponseWriter, err error) {
	var ve *api.ValidationError
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.As(err, &ve):
		s.writeError(w, http.StatusBadRequest, ve.Error(), ve.Field)
	default:
		s.logger.Warn("action rejected", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, err.Error(), "")
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg, field string) {
	s.writeJSON(w, code, errorBody{Error: msg, Field: field})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams snapshots via Server-Sent Events.
//
// Store subscribers run on the dispatch goroutine and must not block, so they
// only mark a store dirty. The handler goroutine reads the snapshot and
// writes it; several changes between two writes are coalesced into one
// event carrying the latest state.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	writeEvent := func(ev event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to encode sse event", "store", ev.Store, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	checksDirty := make(chan struct{}, 1)
	logsDirty := make(chan struct{}, 1)
	mark := func(ch chan struct{}) func() {
		return func() {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}

	// subscribe before the initial snapshot so no change is missed
	defer s.checks.Subscribe(mark(checksDirty))()
	defer s.logs.Subscribe(mark(logsDirty))()

	if err := writeEvent(event{Store: "checks", State: s.checksView()}); err != nil {
		return
	}
	if err := writeEvent(event{Store: "logs", State: s.logsView()}); err != nil {
		return
	}

	for {
		var ev event
		select {
		case <-checksDirty:
			ev = event{Store: "checks", State: s.checksView()}
		case <-logsDirty:
			ev = event{Store: "logs", State: s.logsView()}
		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}

		if err := writeEvent(ev); err != nil {
			return
		}
	}
}
