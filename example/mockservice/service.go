// Package mockservice is an in-memory change-detection service for demos.
//
// It serves the REST API Watchboard talks to and pushes updated_check and
// new_log messages to WebSocket clients at /ws. A background loop pretends
// to run checks and reports a change now and then.
package mockservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

type check struct {
	ID          uint64    `json:"id"`
	URL         string    `json:"url"`
	Selector    string    `json:"selector"`
	Schedule    string    `json:"schedule"`
	LastChecked time.Time `json:"last_checked"`
	LastHash    string    `json:"last_hash"`
	Seen        bool      `json:"seen"`
}

type logEntry struct {
	Time    string         `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields"`
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Service holds the mock state. The zero value is not usable; call [New].
type Service struct {
	logger *slog.Logger

	mu      sync.Mutex
	nextID  uint64
	checks  map[uint64]*check
	logs    []logEntry
	clients map[chan []byte]struct{}
}

// New creates a Service seeded with a few checks.
func New(logger *slog.Logger) *Service {
	s := &Service{
		logger:  logger,
		checks:  make(map[uint64]*check),
		clients: make(map[chan []byte]struct{}),
	}
	for _, u := range []string{"https://go.dev/doc/devel/release", "https://news.ycombinator.com", "https://example.com"} {
		s.add(u, "body", "*/5 * * * *")
	}
	return s
}

func (s *Service) add(url, selector, schedule string) *check {
	s.nextID++
	c := &check{ID: s.nextID, URL: url, Selector: selector, Schedule: schedule, Seen: true}
	s.checks[c.ID] = c
	return c
}

// Handler returns the service's routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/checks", s.listChecks)
	mux.HandleFunc("POST /api/checks", s.createCheck)
	mux.HandleFunc("DELETE /api/checks/{id}", s.deleteCheck)
	mux.HandleFunc("PATCH /api/checks/{id}", s.patchCheck)
	mux.HandleFunc("POST /api/checks/{id}/update", s.runCheck)
	mux.HandleFunc("GET /api/logs", s.listLogs)
	mux.HandleFunc("DELETE /api/logs", s.clearLogs)
	mux.Handle("GET /ws", websocket.Handler(s.serveWS))
	return mux
}

// Run simulates scheduled checks until ctx is done. Each tick one random
// check runs; roughly a third of runs find a change.
func (s *Service) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			var ids []uint64
			for id := range s.checks {
				ids = append(ids, id)
			}
			s.mu.Unlock()
			if len(ids) > 0 {
				s.check(ids[rand.Intn(len(ids))], rand.Intn(3) == 0)
			}
		}
	}
}

// check runs one check and broadcasts the result.
func (s *Service) check(id uint64, changed bool) *check {
	s.mu.Lock()
	c, ok := s.checks[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	c.LastChecked = time.Now().UTC()
	if changed || c.LastHash == "" {
		c.LastHash = fmt.Sprintf("%08x", rand.Uint32())
		c.Seen = false
	}
	updated := *c
	entry := logEntry{
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Level:   "info",
		Message: fmt.Sprintf("checked %s", c.URL),
		Fields:  map[string]any{"check_id": c.ID, "changed": !c.Seen},
	}
	s.logs = append(s.logs, entry)
	s.mu.Unlock()

	s.broadcast(envelope{Type: "updated_check", Data: updated})
	s.broadcast(envelope{Type: "new_log", Data: entry})
	return &updated
}

func (s *Service) broadcast(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("failed to encode push message", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			// slow client, drop the message
		}
	}
}

func (s *Service) serveWS(conn *websocket.Conn) {
	ch := make(chan []byte, 32)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("push client connected", "remote", conn.Request().RemoteAddr)

	defer func() {
		s.mu.Lock()
		delete(s.clients, ch)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	ctx := conn.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-ch:
			if err := websocket.Message.Send(conn, string(data)); err != nil {
				return
			}
		}
	}
}

func (s *Service) listChecks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]check, 0, len(s.checks))
	for _, c := range s.checks {
		out = append(out, *c)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) createCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		Selector string `json:"selector"`
		Schedule string `json:"schedule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "url, selector and schedule are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	c := *s.add(req.URL, req.Selector, req.Schedule)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, c)
}

func (s *Service) deleteCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := s.find(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.checks, id)
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) patchCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := s.find(w, r)
	if !ok {
		return
	}
	var req struct {
		Seen bool `json:"seen"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	c := s.checks[id]
	c.Seen = req.Seen
	updated := *c
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Service) runCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := s.find(w, r)
	if !ok {
		return
	}
	if c := s.check(id, rand.Intn(2) == 0); c != nil {
		writeJSON(w, http.StatusOK, c)
		return
	}
	http.NotFound(w, r)
}

func (s *Service) listLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := append([]logEntry{}, s.logs...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) clearLogs(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.logs = nil
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// find resolves the {id} path segment, answering 404 for unknown checks.
func (s *Service) find(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	s.mu.Lock()
	_, ok := s.checks[id]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
