package store

import (
	"time"

	"github.com/jpalmerr/watchboard/internal/dispatcher"
	"github.com/jpalmerr/watchboard/internal/model"
)

// Intent kinds handled by CheckStore.
const (
	KindCreateCheck        dispatcher.Kind = "CREATE_CHECK"
	KindCheckCreated       dispatcher.Kind = "CHECK_CREATED"
	KindRefreshChecks      dispatcher.Kind = "REFRESH_CHECKS"
	KindChecksLoaded       dispatcher.Kind = "CHECKS_LOADED"
	KindDeleteCheck        dispatcher.Kind = "DELETE_CHECK"
	KindCheckDeleted       dispatcher.Kind = "CHECK_DELETED"
	KindMarkCheckRead      dispatcher.Kind = "MARK_CHECK_READ"
	KindCheckMarkedRead    dispatcher.Kind = "CHECK_MARKED_READ"
	KindRefreshCheck       dispatcher.Kind = "REFRESH_CHECK"
	KindCheckRefreshed     dispatcher.Kind = "CHECK_REFRESHED"
	KindCheckRequestFailed dispatcher.Kind = "CHECK_REQUEST_FAILED"
	KindPushCheck          dispatcher.Kind = "PUSH_CHECK"
)

// Intent kinds handled by LogStore.
const (
	KindAppendLog        dispatcher.Kind = "APPEND_LOG"
	KindClearLogs        dispatcher.Kind = "CLEAR_LOGS"
	KindLogsCleared      dispatcher.Kind = "LOGS_CLEARED"
	KindRefreshLogs      dispatcher.Kind = "REFRESH_LOGS"
	KindLogsLoaded       dispatcher.Kind = "LOGS_LOADED"
	KindLogRequestFailed dispatcher.Kind = "LOG_REQUEST_FAILED"
	KindPushLog          dispatcher.Kind = "PUSH_LOG"
)

// KindDismissFailure clears the failure outcome of every store.
const KindDismissFailure dispatcher.Kind = "DISMISS_FAILURE"

// Operation names used in [Failure.Op].
const (
	OpCreateCheck   = "create check"
	OpRefreshChecks = "refresh checks"
	OpDeleteCheck   = "delete check"
	OpMarkCheckRead = "mark check read"
	OpRefreshCheck  = "refresh check"
	OpClearLogs     = "clear logs"
	OpRefreshLogs   = "refresh logs"
)

// CreateCheck is the payload of [KindCreateCheck].
type CreateCheck struct {
	URL      string
	Selector string
	Schedule string
}

// CheckCreated is the payload of [KindCheckCreated].
type CheckCreated struct {
	Token uint64
	Check model.Check
}

// ChecksLoaded is the payload of [KindChecksLoaded]. Generation identifies
// the list request; only the newest generation is applied.
type ChecksLoaded struct {
	Generation uint64
	Checks     []model.Check
}

// CheckRef is the payload of [KindDeleteCheck], [KindMarkCheckRead] and
// [KindRefreshCheck].
type CheckRef struct {
	ID uint64
}

// CheckCompleted is the payload of [KindCheckDeleted],
// [KindCheckMarkedRead] and [KindCheckRefreshed]. Token is the fencing token
// the request was issued with. Patch holds the fields a refresh response
// carried.
type CheckCompleted struct {
	ID    uint64
	Token uint64
	Patch model.CheckPatch
}

// CheckRequestFailed is the payload of [KindCheckRequestFailed].
type CheckRequestFailed struct {
	Op    string
	ID    uint64
	Token uint64
	Err   error
}

// PushCheck is the payload of [KindPushCheck].
type PushCheck struct {
	Patch model.CheckPatch
}

// AppendLog is the payload of [KindAppendLog]. Time is stamped by the
// caller when the log was produced.
type AppendLog struct {
	Time    time.Time
	Level   string
	Message string
}

// LogsLoaded is the payload of [KindLogsLoaded].
type LogsLoaded struct {
	Entries []model.LogEntry
}

// LogRequestFailed is the payload of [KindLogRequestFailed].
type LogRequestFailed struct {
	Op  string
	Err error
}

// PushLog is the payload of [KindPushLog].
type PushLog struct {
	Entry model.LogEntry
}
