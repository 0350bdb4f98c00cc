package push

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"golang.org/x/net/websocket"
)

// maxMessageSize caps a single websocket message.
const maxMessageSize = 1 << 20 // 1MB

// Source delivers raw push messages.
//
// Receive blocks until a message arrives, ctx is done or the connection
// fails. A Source is read by one goroutine at a time; Close may be called
// concurrently with Receive to unblock it.
type Source interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("push source closed")

// WebSocketSource reads text frames from the service's websocket endpoint.
type WebSocketSource struct {
	conn *websocket.Conn

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// DialWebSocket connects to the websocket at rawURL (ws:// or wss://). The
// Origin header is the matching http(s) URL of the same host.
func DialWebSocket(ctx context.Context, rawURL string) (*WebSocketSource, error) {
	origin, err := websocketOrigin(rawURL)
	if err != nil {
		return nil, err
	}

	cfg, err := websocket.NewConfig(rawURL, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}

	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	conn.MaxPayloadBytes = maxMessageSize

	return &WebSocketSource{conn: conn, closed: make(chan struct{})}, nil
}

func websocketOrigin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid push URL: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("invalid push URL %q: scheme must be ws or wss", rawURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid push URL %q: missing host", rawURL)
	}

	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String(), nil
}

// Receive implements [Source].
func (s *WebSocketSource) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-s.closed:
		return nil, ErrClosed
	default:
	}

	// a blocked read only returns once the connection is closed
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	var msg []byte
	if err := websocket.Message.Receive(s.conn, &msg); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-s.closed:
			return nil, ErrClosed
		default:
		}
		return nil, fmt.Errorf("websocket receive: %w", err)
	}
	return msg, nil
}

// Close implements [Source]. It is safe to call more than once.
func (s *WebSocketSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// NATSSource reads push messages published on a NATS subject.
//
// The NATS client reconnects on its own; Receive only fails once the
// connection is closed for good.
type NATSSource struct {
	conn *nats.Conn
	sub  *nats.Subscription

	closeOnce sync.Once
}

// DialNATS connects to the NATS server at rawURL and subscribes to subject.
func DialNATS(rawURL, subject string) (*NATSSource, error) {
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}

	conn, err := nats.Connect(rawURL,
		nats.Name("watchboard"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	sub, err := conn.SubscribeSync(subject)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	return &NATSSource{conn: conn, sub: sub}, nil
}

// Receive implements [Source].
func (s *NATSSource) Receive(ctx context.Context) ([]byte, error) {
	msg, err := s.sub.NextMsgWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, nats.ErrBadSubscription) || errors.Is(err, nats.ErrConnectionClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("nats receive: %w", err)
	}
	return msg.Data, nil
}

// Close implements [Source]. It is safe to call more than once.
func (s *NATSSource) Close() error {
	s.closeOnce.Do(func() {
		_ = s.sub.Unsubscribe()
		s.conn.Close()
	})
	return nil
}
