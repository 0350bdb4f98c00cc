package watchboard

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jpalmerr/watchboard/internal/push"
)

// wbConfig holds mutable state during Client construction.
type wbConfig struct {
	title          string
	serviceURL     string
	requestTimeout time.Duration
	maxConcurrency int
	mirrorPort     int
	mirror         bool
	pushName       string
	dial           DialFunc
	reconnectDelay time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

// DialFunc connects to a push source. It is called again after the source
// fails, once the reconnect delay has passed.
type DialFunc func(ctx context.Context) (push.Source, error)

// Option is a function that configures a [Client] instance during
// construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*wbConfig) error

// WithServiceURL sets the base URL of the monitoring service, for example
// "http://localhost:8080". Required.
//
// Returns an error if the URL is not an absolute http or https URL.
func WithServiceURL(rawURL string) Option {
	return func(cfg *wbConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return errors.New("service url is invalid: " + err.Error())
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.New("service url scheme must be http or https")
		}
		if u.Host == "" {
			return errors.New("service url must have a host")
		}
		cfg.serviceURL = rawURL
		return nil
	}
}

// WithRequestTimeout sets the timeout applied to each request to the
// service. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *wbConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithMaxConcurrency sets the maximum number of requests to the service in
// flight at once. Defaults to 4.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *wbConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithMirror enables the local mirror server on port: the dashboard shell,
// JSON snapshots, the SSE change stream, action endpoints and metrics.
//
// Port 0 picks a free port; see [Client.MirrorAddr].
//
// Returns an error if the port is outside 0-65535.
func WithMirror(port int) Option {
	return func(cfg *wbConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("mirror port must be between 0 and 65535")
		}
		cfg.mirror = true
		cfg.mirrorPort = port
		return nil
	}
}

// WithPushWebSocket receives push messages from a WebSocket endpoint such as
// "ws://localhost:8080/ws".
func WithPushWebSocket(rawURL string) Option {
	return func(cfg *wbConfig) error {
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return errors.New("push websocket url must be a ws:// or wss:// url")
		}
		cfg.pushName = "websocket"
		cfg.dial = func(ctx context.Context) (push.Source, error) {
			return push.DialWebSocket(ctx, rawURL)
		}
		return nil
	}
}

// WithPushNATS receives push messages published on a NATS subject.
func WithPushNATS(natsURL, subject string) Option {
	return func(cfg *wbConfig) error {
		if natsURL == "" {
			return errors.New("push nats url is required")
		}
		if subject == "" {
			return errors.New("push nats subject is required")
		}
		cfg.pushName = "nats"
		cfg.dial = func(context.Context) (push.Source, error) {
			return push.DialNATS(natsURL, subject)
		}
		return nil
	}
}

// WithPushSource receives push messages from a custom source. dial is
// called on start and again after every failure.
func WithPushSource(dial DialFunc) Option {
	return func(cfg *wbConfig) error {
		if dial == nil {
			return errors.New("push dial function cannot be nil")
		}
		cfg.pushName = "custom"
		cfg.dial = dial
		return nil
	}
}

// WithReconnectDelay sets how long to wait before dialing the push source
// again after it fails. Defaults to 5 seconds.
//
// Returns an error if the duration is zero or negative.
func WithReconnectDelay(d time.Duration) Option {
	return func(cfg *wbConfig) error {
		if d <= 0 {
			return errors.New("reconnect delay must be positive")
		}
		cfg.reconnectDelay = d
		return nil
	}
}

// WithHTTPClient replaces the HTTP client used to talk to the service.
func WithHTTPClient(hc *http.Client) Option {
	return func(cfg *wbConfig) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = hc
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Client.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *wbConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithTitle sets the dashboard title displayed in the browser tab and
// header. If not specified, defaults to "Watchboard".
func WithTitle(title string) Option {
	return func(cfg *wbConfig) error {
		cfg.title = title
		return nil
	}
}
