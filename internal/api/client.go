package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/watchboard/internal/model"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits; all requests go to a single service host
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
	defaultRequestTimeout      = 10 * time.Second
)

// requestIDHeader carries a per-request uuid so client and service logs can
// be correlated.
const requestIDHeader = "X-Request-ID"

// Observer receives the outcome of every request. Used for metrics.
type Observer interface {
	ObserveRequest(op string, latency time.Duration, err error)
}

// Client talks to the monitoring service's REST API.
//
// Client applies a per-request timeout via context rather than a global
// client timeout. Response bodies are limited to 1MB. All methods are safe
// for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	observer   Observer
	logger     *slog.Logger
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers an [Observer] for request outcomes.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) { c.observer = o }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a [Client] for the service rooted at baseURL
// (e.g. "http://localhost:8080"). API paths are resolved under it.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("service url scheme must be http or https, got %q", u.Scheme)
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		timeout: defaultRequestTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ListChecks fetches every check (GET /api/checks).
func (c *Client) ListChecks(ctx context.Context) ([]model.Check, error) {
	var checks []model.Check
	if err := c.do(ctx, "list checks", http.MethodGet, "/api/checks", nil, &checks); err != nil {
		return nil, err
	}
	if checks == nil {
		checks = []model.Check{}
	}
	return checks, nil
}

// CreateCheck creates a check and returns it with its assigned id
// (POST /api/checks).
func (c *Client) CreateCheck(ctx context.Context, pageURL, selector, schedule string) (model.Check, error) {
	body := map[string]string{
		"url":      pageURL,
		"selector": selector,
		"schedule": schedule,
	}

	var created model.Check
	if err := c.do(ctx, "create check", http.MethodPost, "/api/checks", body, &created); err != nil {
		return model.Check{}, err
	}
	if created.ID == 0 {
		return model.Check{}, &NetworkError{Op: "create check", Err: errors.New("response carried no id")}
	}
	return created, nil
}

// DeleteCheck deletes a check (DELETE /api/checks/{id}).
func (c *Client) DeleteCheck(ctx context.Context, id uint64) error {
	return c.do(ctx, "delete check", http.MethodDelete, checkPath(id), nil, nil)
}

// SetCheckSeen updates a check's seen flag (PATCH /api/checks/{id}).
//
// The service may answer with an empty body; the returned check then carries
// only the id and the requested flag.
func (c *Client) SetCheckSeen(ctx context.Context, id uint64, seen bool) (model.Check, error) {
	body := map[string]bool{"seen": seen}

	var updated model.Check
	if err := c.do(ctx, "mark check read", http.MethodPatch, checkPath(id), body, &updated); err != nil {
		return model.Check{}, err
	}
	if updated.ID == 0 {
		updated = model.Check{ID: id, Seen: seen}
	}
	return updated, nil
}

// RefreshCheck asks the service to re-run a check now and returns the
// fields of the refreshed check it sent back (POST /api/checks/{id}/update).
//
// Fields absent from the response are absent from the patch. An empty body
// yields an empty patch.
func (c *Client) RefreshCheck(ctx context.Context, id uint64) (model.CheckPatch, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "refresh check", http.MethodPost, checkPath(id)+"/update", nil, &raw); err != nil {
		return model.CheckPatch{}, err
	}
	patch, err := model.DecodePartialCheck(raw)
	if err != nil {
		return model.CheckPatch{}, &NetworkError{Op: "refresh check", Err: err}
	}
	return patch, nil
}

// ListLogs fetches the service's log (GET /api/logs).
func (c *Client) ListLogs(ctx context.Context) ([]model.LogEntry, error) {
	var entries []model.LogEntry
	if err := c.do(ctx, "list logs", http.MethodGet, "/api/logs", nil, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	return entries, nil
}

// ClearLogs deletes every log entry on the service (DELETE /api/logs).
func (c *Client) ClearLogs(ctx context.Context) error {
	return c.do(ctx, "clear logs", http.MethodDelete, "/api/logs", nil, nil)
}

// BaseURL returns the service URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Close closes idle connections. The client remains usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

func checkPath(id uint64) string {
	return "/api/checks/" + strconv.FormatUint(id, 10)
}

// do performs one JSON request. in (if non-nil) is encoded as the body; out
// (if non-nil) receives the decoded response. Empty response bodies leave out
// untouched.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRequest(op, time.Since(start), err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &ValidationError{Op: op, Message: fmt.Sprintf("failed to encode request: %v", err)}
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	c.logger.Debug("service request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(op, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
