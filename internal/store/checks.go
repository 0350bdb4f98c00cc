package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/model"
)

// CheckState is an immutable snapshot of [CheckStore].
type CheckState struct {
	Checks  []model.Check `json:"checks"`
	Failure *Failure      `json:"failure,omitempty"`
}

// Find returns the check with the given id.
func (s CheckState) Find(id uint64) (model.Check, bool) {
	for _, c := range s.Checks {
		if c.ID == id {
			return c, true
		}
	}
	return model.Check{}, false
}

// CheckStore owns the list of checks.
//
// Every per-check request is fenced: it carries a monotonically increasing
// token, and a mark-read or refresh completion is discarded when the check is
// gone or a completion with a newer token for it was already applied. Delete
// completions always apply and tombstone the id; the service never reuses
// ids, so a tombstoned id cannot come back through a push or a list. A full
// resync replaces the local set with the service's list minus tombstoned ids.
//
// Handlers must only be called through the dispatcher. State may be read
// from any goroutine.
type CheckStore struct {
	Emitter

	api      CheckAPI
	tasks    Scheduler
	logger   *slog.Logger
	handlers dispatcher.HandlerMap

	mu      sync.RWMutex
	checks  []model.Check
	failure *Failure

	// dispatch-goroutine state, never read by State
	nextToken  uint64
	pending    map[uint64]struct{}
	deleting   map[uint64]struct{}
	applied    map[uint64]uint64
	tombstones map[uint64]struct{}
	listGen    uint64
}

// NewCheckStore creates an empty [CheckStore]. A nil logger uses
// slog.Default().
func NewCheckStore(api CheckAPI, tasks Scheduler, logger *slog.Logger) *CheckStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &CheckStore{
		api:        api,
		tasks:      tasks,
		logger:     logger,
		checks:     []model.Check{},
		pending:    make(map[uint64]struct{}),
		deleting:   make(map[uint64]struct{}),
		applied:    make(map[uint64]uint64),
		tombstones: make(map[uint64]struct{}),
	}
	s.Emitter.logger = logger

	s.handlers = dispatcher.HandlerMap{
		KindCreateCheck:        s.onCreate,
		KindCheckCreated:       s.onCreated,
		KindRefreshChecks:      s.onRefreshAll,
		KindChecksLoaded:       s.onLoaded,
		KindDeleteCheck:        s.onDelete,
		KindCheckDeleted:       s.onDeleted,
		KindMarkCheckRead:      s.onMarkRead,
		KindCheckMarkedRead:    s.onMarkedRead,
		KindRefreshCheck:       s.onRefreshOne,
		KindCheckRefreshed:     s.onRefreshed,
		KindCheckRequestFailed: s.onFailed,
		KindPushCheck:          s.onPush,
		KindDismissFailure:     s.onDismiss,
	}

	return s
}

// Handler implements [dispatcher.Store].
func (s *CheckStore) Handler(kind dispatcher.Kind) (dispatcher.Handler, bool) {
	return s.handlers.Handler(kind)
}

// State returns a snapshot of the store. The snapshot shares nothing with
// the store.
func (s *CheckStore) State() CheckState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	checks := make([]model.Check, len(s.checks))
	copy(checks, s.checks)
	return CheckState{Checks: checks, Failure: copyFailure(s.failure)}
}

// pendingCreates returns the number of create requests still in flight.
// Pending checks have no id and are not part of the snapshot. Must be called
// on the dispatch goroutine.
func (s *CheckStore) pendingCreates() int {
	return len(s.pending)
}

// indexOf must be called with mu held.
func (s *CheckStore) indexOf(id uint64) int {
	for i, c := range s.checks {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (s *CheckStore) has(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(id) >= 0
}

// token returns the next fencing token. Tokens increase monotonically across
// all checks, so they also increase per check.
func (s *CheckStore) token() uint64 {
	s.nextToken++
	return s.nextToken
}

// accept reports whether a completion for id with token may be applied, and
// records it as applied if so.
func (s *CheckStore) accept(kind dispatcher.Kind, id, token uint64) bool {
	if _, gone := s.tombstones[id]; gone {
		s.logger.Debug("discarding completion for deleted check", "kind", kind, "id", id, "token", token)
		return false
	}
	if !s.has(id) {
		s.logger.Debug("discarding completion for unknown check", "kind", kind, "id", id, "token", token)
		return false
	}
	if token < s.applied[id] {
		s.logger.Debug("discarding stale completion", "kind", kind, "id", id, "token", token, "applied", s.applied[id])
		return false
	}
	s.applied[id] = token
	return true
}

func (s *CheckStore) onCreate(in dispatcher.Intent) error {
	p, err := payload[CreateCheck](in)
	if err != nil {
		return err
	}

	token := s.token()
	s.pending[token] = struct{}{}

	s.tasks.Go(OpCreateCheck, func(ctx context.Context) dispatcher.Intent {
		check, err := s.api.CreateCheck(ctx, p.URL, p.Selector, p.Schedule)
		if err != nil {
			return dispatcher.Intent{Kind: KindCheckRequestFailed, Payload: CheckRequestFailed{Op: OpCreateCheck, Token: token, Err: err}}
		}
		return dispatcher.Intent{Kind: KindCheckCreated, Payload: CheckCreated{Token: token, Check: check}}
	})
	return nil
}

func (s *CheckStore) onCreated(in dispatcher.Intent) error {
	p, err := payload[CheckCreated](in)
	if err != nil {
		return err
	}
	delete(s.pending, p.Token)

	if p.Check.ID == 0 {
		return fmt.Errorf("%s: created check has no id", in.Kind)
	}
	if _, gone := s.tombstones[p.Check.ID]; gone {
		return nil
	}

	s.mu.Lock()
	changed := true
	if i := s.indexOf(p.Check.ID); i >= 0 {
		// a push for the new check arrived before the create response
		s.checks[i], changed = model.Merge(s.checks[i], model.PatchOf(p.Check))
	} else {
		s.checks = append(s.checks, p.Check)
	}
	s.mu.Unlock()

	if changed {
		s.emit()
	}
	return nil
}

func (s *CheckStore) onRefreshAll(in dispatcher.Intent) error {
	s.listGen++
	gen := s.listGen

	s.tasks.Go(OpRefreshChecks, func(ctx context.Context) dispatcher.Intent {
		checks, err := s.api.ListChecks(ctx)
		if err != nil {
			return dispatcher.Intent{Kind: KindCheckRequestFailed, Payload: CheckRequestFailed{Op: OpRefreshChecks, Err: err}}
		}
		return dispatcher.Intent{Kind: KindChecksLoaded, Payload: ChecksLoaded{Generation: gen, Checks: checks}}
	})
	return nil
}

func (s *CheckStore) onLoaded(in dispatcher.Intent) error {
	p, err := payload[ChecksLoaded](in)
	if err != nil {
		return err
	}
	if p.Generation != s.listGen {
		s.logger.Debug("discarding stale check list", "generation", p.Generation, "latest", s.listGen)
		return nil
	}

	// keep the last occurrence of each id, in first-seen order
	next := make([]model.Check, 0, len(p.Checks))
	pos := make(map[uint64]int, len(p.Checks))
	for _, c := range p.Checks {
		if c.ID == 0 {
			continue
		}
		if _, gone := s.tombstones[c.ID]; gone {
			continue
		}
		if i, dup := pos[c.ID]; dup {
			next[i] = c
			continue
		}
		pos[c.ID] = len(next)
		next = append(next, c)
	}

	s.mu.Lock()
	s.checks = next
	s.mu.Unlock()

	s.emit()
	return nil
}

func (s *CheckStore) onDelete(in dispatcher.Intent) error {
	p, err := payload[CheckRef](in)
	if err != nil {
		return err
	}
	if !s.has(p.ID) {
		return nil
	}
	if _, inflight := s.deleting[p.ID]; inflight {
		return nil
	}

	s.deleting[p.ID] = struct{}{}
	token := s.token()
	id := p.ID

	s.tasks.Go(OpDeleteCheck, func(ctx context.Context) dispatcher.Intent {
		if err := s.api.DeleteCheck(ctx, id); err != nil {
			return dispatcher.Intent{Kind: KindCheckRequestFailed, Payload: CheckRequestFailed{Op: OpDeleteCheck, ID: id, Token: token, Err: err}}
		}
		return dispatcher.Intent{Kind: KindCheckDeleted, Payload: CheckCompleted{ID: id, Token: token}}
	})
	return nil
}

func (s *CheckStore) onDeleted(in dispatcher.Intent) error {
	p, err := payload[CheckCompleted](in)
	if err != nil {
		return err
	}

	delete(s.deleting, p.ID)
	delete(s.applied, p.ID)
	s.tombstones[p.ID] = struct{}{}

	s.mu.Lock()
	removed := false
	if i := s.indexOf(p.ID); i >= 0 {
		s.checks = append(s.checks[:i:i], s.checks[i+1:]...)
		removed = true
	}
	s.mu.Unlock()

	if removed {
		s.emit()
	}
	return nil
}

func (s *CheckStore) onMarkRead(in dispatcher.Intent) error {
	p, err := payload[CheckRef](in)
	if err != nil {
		return err
	}
	if !s.has(p.ID) {
		return nil
	}

	token := s.token()
	id := p.ID

	s.tasks.Go(OpMarkCheckRead, func(ctx context.Context) dispatcher.Intent {
		if _, err := s.api.SetCheckSeen(ctx, id, true); err != nil {
			return dispatcher.Intent{Kind: KindCheckRequestFailed, Payload: CheckRequestFailed{Op: OpMarkCheckRead, ID: id, Token: token, Err: err}}
		}
		return dispatcher.Intent{Kind: KindCheckMarkedRead, Payload: CheckCompleted{ID: id, Token: token}}
	})
	return nil
}

func (s *CheckStore) onMarkedRead(in dispatcher.Intent) error {
	p, err := payload[CheckCompleted](in)
	if err != nil {
		return err
	}
	if !s.accept(in.Kind, p.ID, p.Token) {
		return nil
	}

	seen := true
	return s.mergeInto(p.ID, model.CheckPatch{Seen: &seen})
}

func (s *CheckStore) onRefreshOne(in dispatcher.Intent) error {
	p, err := payload[CheckRef](in)
	if err != nil {
		return err
	}
	if !s.has(p.ID) {
		return nil
	}

	token := s.token()
	id := p.ID

	s.tasks.Go(OpRefreshCheck, func(ctx context.Context) dispatcher.Intent {
		patch, err := s.api.RefreshCheck(ctx, id)
		if err != nil {
			return dispatcher.Intent{Kind: KindCheckRequestFailed, Payload: CheckRequestFailed{Op: OpRefreshCheck, ID: id, Token: token, Err: err}}
		}
		return dispatcher.Intent{Kind: KindCheckRefreshed, Payload: CheckCompleted{ID: id, Token: token, Patch: patch}}
	})
	return nil
}

func (s *CheckStore) onRefreshed(in dispatcher.Intent) error {
	p, err := payload[CheckCompleted](in)
	if err != nil {
		return err
	}
	if !s.accept(in.Kind, p.ID, p.Token) {
		return nil
	}

	// only fields the response carried are merged; the id is the request's
	patch := p.Patch
	patch.ID = nil
	return s.mergeInto(p.ID, patch)
}

// mergeInto diff-merges patch into the check with id and emits if anything
// changed.
func (s *CheckStore) mergeInto(id uint64, patch model.CheckPatch) error {
	s.mu.Lock()
	changed := false
	if i := s.indexOf(id); i >= 0 {
		s.checks[i], changed = model.Merge(s.checks[i], patch)
	}
	s.mu.Unlock()

	if changed {
		s.emit()
	}
	return nil
}

func (s *CheckStore) onPush(in dispatcher.Intent) error {
	p, err := payload[PushCheck](in)
	if err != nil {
		return err
	}

	id := p.Patch.Key()
	if id == 0 {
		return fmt.Errorf("%s: pushed check has no id", in.Kind)
	}
	if _, gone := s.tombstones[id]; gone {
		s.logger.Debug("ignoring push for deleted check", "id", id)
		return nil
	}

	s.mu.Lock()
	changed := true
	if i := s.indexOf(id); i >= 0 {
		s.checks[i], changed = model.Merge(s.checks[i], p.Patch)
	} else {
		s.checks = append(s.checks, p.Patch.Apply())
	}
	s.mu.Unlock()

	if changed {
		s.emit()
	}
	return nil
}

func (s *CheckStore) onFailed(in dispatcher.Intent) error {
	p, err := payload[CheckRequestFailed](in)
	if err != nil {
		return err
	}

	switch p.Op {
	case OpCreateCheck:
		delete(s.pending, p.Token)
	case OpDeleteCheck:
		delete(s.deleting, p.ID)
	}

	s.logger.Warn("check request failed", "op", p.Op, "id", p.ID, "error", p.Err)

	s.mu.Lock()
	s.failure = &Failure{Op: p.Op, CheckID: p.ID, Err: p.Err, At: time.Now()}
	s.mu.Unlock()

	s.emit()
	return nil
}

func (s *CheckStore) onDismiss(in dispatcher.Intent) error {
	s.mu.Lock()
	had := s.failure != nil
	s.failure = nil
	s.mu.Unlock()

	if had {
		s.emit()
	}
	return nil
}
