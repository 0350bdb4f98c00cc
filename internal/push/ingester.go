package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/model"
	"github.com/jpalmerr/watchboard/internal/store"
)

// Message types sent by the service.
const (
	TypeNewLog       = "new_log"
	TypeUpdatedCheck = "updated_check"
)

// Message outcomes reported to the [Observer].
const (
	OutcomeAccepted  = "accepted"
	OutcomeIgnored   = "ignored"
	OutcomeMalformed = "malformed"
)

// ErrMalformed is matched by every decode failure returned by [Decode].
var ErrMalformed = errors.New("malformed push message")

// Poster queues an intent for dispatch. *loop.Loop implements it.
type Poster interface {
	Post(in dispatcher.Intent) error
}

// Observer is told the outcome of every message.
type Observer interface {
	ObservePush(msgType, outcome string)
}

// Envelope is the wire form of a push message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode turns one raw message into an intent. ok is false for a well-formed
// message of a type that is not handled.
func Decode(raw []byte) (in dispatcher.Intent, ok bool, err error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return in, false, fmt.Errorf("%w: envelope: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeNewLog:
		var entry model.LogEntry
		if err := json.Unmarshal(env.Data, &entry); err != nil {
			return in, false, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
		if entry.Fields == nil {
			entry.Fields = map[string]any{}
		}
		return dispatcher.Intent{Kind: store.KindPushLog, Payload: store.PushLog{Entry: entry}}, true, nil

	case TypeUpdatedCheck:
		patch, err := model.DecodeCheckPatch(env.Data)
		if err != nil {
			return in, false, fmt.Errorf("%w: %s: %v", ErrMalformed, env.Type, err)
		}
		return dispatcher.Intent{Kind: store.KindPushCheck, Payload: store.PushCheck{Patch: patch}}, true, nil

	case "":
		return in, false, fmt.Errorf("%w: missing type", ErrMalformed)

	default:
		return in, false, nil
	}
}

// Ingester reads push messages from a [Source] and posts the matching
// intents. It does not reconnect; when the source fails Run returns and the
// caller decides whether to dial again.
type Ingester struct {
	source   Source
	poster   Poster
	logger   *slog.Logger
	observer Observer
}

// NewIngester creates an [Ingester]. observer may be nil. A nil logger uses
// slog.Default().
func NewIngester(source Source, poster Poster, logger *slog.Logger, observer Observer) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		source:   source,
		poster:   poster,
		logger:   logger,
		observer: observer,
	}
}

// Run receives messages until ctx is done or the source fails. It returns
// nil when ctx is cancelled and the source or post error otherwise.
// Malformed messages are logged and skipped.
func (i *Ingester) Run(ctx context.Context) error {
	for {
		raw, err := i.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		if err := i.handle(raw); err != nil {
			return err
		}
	}
}

// handle decodes and posts one message. Only a post failure is returned.
func (i *Ingester) handle(raw []byte) error {
	in, ok, err := Decode(raw)
	msgType := peekType(raw)

	switch {
	case err != nil:
		i.logger.Warn("dropping malformed push message", "type", msgType, "error", err)
		i.observe(msgType, OutcomeMalformed)
		return nil
	case !ok:
		i.logger.Debug("ignoring push message", "type", msgType)
		i.observe(msgType, OutcomeIgnored)
		return nil
	}

	if err := i.poster.Post(in); err != nil {
		return fmt.Errorf("post %s: %w", in.Kind, err)
	}
	i.observe(msgType, OutcomeAccepted)
	return nil
}

// observe reports an outcome. Types the service is not known to send are
// reported as "other" to keep label values bounded.
func (i *Ingester) observe(msgType, outcome string) {
	if i.observer == nil {
		return
	}
	switch msgType {
	case TypeNewLog, TypeUpdatedCheck, "unknown":
	default:
		msgType = "other"
	}
	i.observer.ObservePush(msgType, outcome)
}

// peekType returns the envelope type for logging, or "unknown".
func peekType(raw []byte) string {
	var env struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(raw, &env) != nil || env.Type == "" {
		return "unknown"
	}
	return env.Type
}
