package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/model"
)

// LogState is an immutable snapshot of [LogStore]. Logs are in arrival
// order; display ordering is the view package's concern.
type LogState struct {
	Logs    []model.LogEntry `json:"logs"`
	Failure *Failure         `json:"failure,omitempty"`
}

// LogStore owns the append-only event log.
//
// Entries are never modified; the sequence only grows, or is emptied after
// the service confirms a clear. Fetched and pushed entries are not
// deduplicated against each other.
type LogStore struct {
	Emitter

	api      LogAPI
	tasks    Scheduler
	logger   *slog.Logger
	handlers dispatcher.HandlerMap

	mu      sync.RWMutex
	logs    []model.LogEntry
	failure *Failure
}

// NewLogStore creates an empty [LogStore]. A nil logger uses slog.Default().
func NewLogStore(api LogAPI, tasks Scheduler, logger *slog.Logger) *LogStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &LogStore{
		api:    api,
		tasks:  tasks,
		logger: logger,
		logs:   []model.LogEntry{},
	}
	s.Emitter.logger = logger

	s.handlers = dispatcher.HandlerMap{
		KindAppendLog:        s.onAppend,
		KindClearLogs:        s.onClear,
		KindLogsCleared:      s.onCleared,
		KindRefreshLogs:      s.onRefresh,
		KindLogsLoaded:       s.onLoaded,
		KindLogRequestFailed: s.onFailed,
		KindPushLog:          s.onPush,
		KindDismissFailure:   s.onDismiss,
	}

	return s
}

// Handler implements [dispatcher.Store].
func (s *LogStore) Handler(kind dispatcher.Kind) (dispatcher.Handler, bool) {
	return s.handlers.Handler(kind)
}

// State returns a snapshot of the store. Entries and their field maps are
// copies.
func (s *LogStore) State() LogState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]model.LogEntry, len(s.logs))
	for i, e := range s.logs {
		logs[i] = e.Clone()
	}
	return LogState{Logs: logs, Failure: copyFailure(s.failure)}
}

func (s *LogStore) append(entries ...model.LogEntry) {
	s.mu.Lock()
	for _, e := range entries {
		s.logs = append(s.logs, e.Clone())
	}
	s.mu.Unlock()
}

func (s *LogStore) onAppend(in dispatcher.Intent) error {
	p, err := payload[AppendLog](in)
	if err != nil {
		return err
	}

	stamp := p.Time
	if stamp.IsZero() {
		stamp = time.Now()
	}

	s.append(model.LogEntry{
		Time:    stamp.Format(time.RFC3339Nano),
		Level:   p.Level,
		Message: p.Message,
		Fields:  map[string]any{},
	})
	s.emit()
	return nil
}

func (s *LogStore) onClear(in dispatcher.Intent) error {
	s.tasks.Go(OpClearLogs, func(ctx context.Context) dispatcher.Intent {
		if err := s.api.ClearLogs(ctx); err != nil {
			return dispatcher.Intent{Kind: KindLogRequestFailed, Payload: LogRequestFailed{Op: OpClearLogs, Err: err}}
		}
		return dispatcher.Intent{Kind: KindLogsCleared}
	})
	return nil
}

func (s *LogStore) onCleared(in dispatcher.Intent) error {
	s.mu.Lock()
	s.logs = []model.LogEntry{}
	s.mu.Unlock()

	s.emit()
	return nil
}

func (s *LogStore) onRefresh(in dispatcher.Intent) error {
	s.tasks.Go(OpRefreshLogs, func(ctx context.Context) dispatcher.Intent {
		entries, err := s.api.ListLogs(ctx)
		if err != nil {
			return dispatcher.Intent{Kind: KindLogRequestFailed, Payload: LogRequestFailed{Op: OpRefreshLogs, Err: err}}
		}
		return dispatcher.Intent{Kind: KindLogsLoaded, Payload: LogsLoaded{Entries: entries}}
	})
	return nil
}

func (s *LogStore) onLoaded(in dispatcher.Intent) error {
	p, err := payload[LogsLoaded](in)
	if err != nil {
		return err
	}
	if len(p.Entries) == 0 {
		return nil
	}

	s.append(p.Entries...)
	s.emit()
	return nil
}

func (s *LogStore) onPush(in dispatcher.Intent) error {
	p, err := payload[PushLog](in)
	if err != nil {
		return err
	}

	s.append(p.Entry)
	s.emit()
	return nil
}

func (s *LogStore) onFailed(in dispatcher.Intent) error {
	p, err := payload[LogRequestFailed](in)
	if err != nil {
		return err
	}

	s.logger.Warn("log request failed", "op", p.Op, "error", p.Err)

	s.mu.Lock()
	s.failure = &Failure{Op: p.Op, Err: p.Err, At: time.Now()}
	s.mu.Unlock()

	s.emit()
	return nil
}

func (s *LogStore) onDismiss(in dispatcher.Intent) error {
	s.mu.Lock()
	had := s.failure != nil
	s.failure = nil
	s.mu.Unlock()

	if had {
		s.emit()
	}
	return nil
}
