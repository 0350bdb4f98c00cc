package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/model"
)

// Scheduler runs a request off the dispatch path. When task returns, its
// intent is dispatched as an independent, later dispatch.
//
// The loop package provides the production implementation.
type Scheduler interface {
	Go(name string, task func(ctx context.Context) dispatcher.Intent)
}

// CheckAPI is the part of the service API used by [CheckStore].
type CheckAPI interface {
	ListChecks(ctx context.Context) ([]model.Check, error)
	CreateCheck(ctx context.Context, pageURL, selector, schedule string) (model.Check, error)
	DeleteCheck(ctx context.Context, id uint64) error
	SetCheckSeen(ctx context.Context, id uint64, seen bool) (model.Check, error)
	RefreshCheck(ctx context.Context, id uint64) (model.CheckPatch, error)
}

// LogAPI is the part of the service API used by [LogStore].
type LogAPI interface {
	ListLogs(ctx context.Context) ([]model.LogEntry, error)
	ClearLogs(ctx context.Context) error
}

// Failure is the outcome of the most recent failed request, kept in the
// store snapshot so the rendering side can show it.
type Failure struct {
	// Op names the operation, one of the Op* constants.
	Op string

	// CheckID is the check the request was about; zero for collection
	// operations.
	CheckID uint64

	// Err is the request error. Classify it with the api package helpers.
	Err error

	// At is when the failure was recorded.
	At time.Time
}

// MarshalJSON renders Err as its message.
func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		Op      string    `json:"op"`
		CheckID uint64    `json:"check_id,omitempty"`
		Error   string    `json:"error"`
		At      time.Time `json:"at"`
	}{f.Op, f.CheckID, msg, f.At})
}

func (f Failure) String() string {
	if f.CheckID != 0 {
		return fmt.Sprintf("%s #%d: %v", f.Op, f.CheckID, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func copyFailure(f *Failure) *Failure {
	if f == nil {
		return nil
	}
	cp := *f
	return &cp
}

// payload extracts the typed payload of in.
func payload[T any](in dispatcher.Intent) (T, error) {
	p, ok := in.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: unexpected payload type %T", in.Kind, in.Payload)
	}
	return p, nil
}
