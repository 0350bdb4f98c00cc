// Package actions turns user requests into intents.
//
// Each method validates its input, builds the matching intent and posts it.
// Nothing here talks to the service directly; requests are issued by the
// stores when the intent is dispatched. Invalid input is rejected with an
// [*api.ValidationError] and nothing is posted.
package actions

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jpalmerr/watchboard/internal/api"
	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/store"
)

// Poster queues an intent for dispatch. *loop.Loop implements it.
type Poster interface {
	Post(in dispatcher.Intent) error
}

// Actions are the action creators.
type Actions struct {
	poster   Poster
	validate *validator.Validate
	now      func() time.Time
}

// New creates [Actions] posting to p.
func New(p Poster) *Actions {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json field names, not Go ones
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Actions{poster: p, validate: v, now: time.Now}
}

type newCheck struct {
	URL      string `json:"url" validate:"required,http_url"`
	Selector string `json:"selector" validate:"required"`
	Schedule string `json:"schedule" validate:"required"`
}

type newLog struct {
	Level   string `json:"level" validate:"required,oneof=debug info warn warning error"`
	Message string `json:"message" validate:"required"`
}

// CreateCheck asks the service to start watching selector on the page at
// pageURL. The check appears in the store once the service has assigned it
// an id.
func (a *Actions) CreateCheck(pageURL, selector, schedule string) error {
	in := newCheck{
		URL:      strings.TrimSpace(pageURL),
		Selector: strings.TrimSpace(selector),
		Schedule: strings.TrimSpace(schedule),
	}
	if err := a.check(store.OpCreateCheck, in); err != nil {
		return err
	}

	return a.post(store.KindCreateCheck, store.CreateCheck{
		URL:      in.URL,
		Selector: in.Selector,
		Schedule: in.Schedule,
	})
}

// RefreshChecks reloads the full check list.
func (a *Actions) RefreshChecks() error {
	return a.post(store.KindRefreshChecks, nil)
}

// DeleteCheck deletes the check with id.
func (a *Actions) DeleteCheck(id uint64) error {
	if err := checkID(store.OpDeleteCheck, id); err != nil {
		return err
	}
	return a.post(store.KindDeleteCheck, store.CheckRef{ID: id})
}

// MarkCheckRead marks the check with id as seen.
func (a *Actions) MarkCheckRead(id uint64) error {
	if err := checkID(store.OpMarkCheckRead, id); err != nil {
		return err
	}
	return a.post(store.KindMarkCheckRead, store.CheckRef{ID: id})
}

// RefreshCheck asks the service to re-run the check with id now.
func (a *Actions) RefreshCheck(id uint64) error {
	if err := checkID(store.OpRefreshCheck, id); err != nil {
		return err
	}
	return a.post(store.KindRefreshCheck, store.CheckRef{ID: id})
}

// AppendLog adds a local entry to the event log, stamped with the current
// time. The entry is not sent to the service.
func (a *Actions) AppendLog(level, message string) error {
	in := newLog{Level: strings.ToLower(strings.TrimSpace(level)), Message: message}
	if err := a.check("append log", in); err != nil {
		return err
	}

	return a.post(store.KindAppendLog, store.AppendLog{
		Time:    a.now(),
		Level:   in.Level,
		Message: in.Message,
	})
}

// ClearLogs asks the service to delete every log entry.
func (a *Actions) ClearLogs() error {
	return a.post(store.KindClearLogs, nil)
}

// RefreshLogs fetches the service's log entries.
func (a *Actions) RefreshLogs() error {
	return a.post(store.KindRefreshLogs, nil)
}

// DismissFailure clears the failure outcome shown by every store.
func (a *Actions) DismissFailure() error {
	return a.post(store.KindDismissFailure, nil)
}

func (a *Actions) post(kind dispatcher.Kind, payload any) error {
	if err := a.poster.Post(dispatcher.Intent{Kind: kind, Payload: payload}); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	return nil
}

// check validates in and converts the first failure into an
// [*api.ValidationError].
func (a *Actions) check(op string, in any) error {
	err := a.validate.Struct(in)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &api.ValidationError{Op: op, Message: err.Error()}
	}

	fe := errs[0]
	return &api.ValidationError{Op: op, Field: fe.Field(), Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return "must be an http or https URL"
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}

func checkID(op string, id uint64) error {
	if id == 0 {
		return &api.ValidationError{Op: op, Field: "id", Message: "is required"}
	}
	return nil
}
