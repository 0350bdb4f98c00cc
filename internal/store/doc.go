// Package store holds Watchboard's application state.
//
// Two stores each own one slice of state:
//
//   - [CheckStore]: the watched checks, reconciled against request
//     responses and unsolicited pushes
//   - [LogStore]: the append-only event log
//
// Stores are mutated only by their own handlers, which the dispatcher calls
// one intent at a time. A handler that issues a request schedules it through
// a [Scheduler]; the request's outcome comes back later as a separate
// completion intent (e.g. [KindCheckDeleted] or [KindCheckRequestFailed]).
//
// After a handler changes state the store notifies its subscribers
// synchronously, before the dispatch returns. Handlers that change nothing do
// not notify. Snapshots returned by State are copies and safe to read from
// any goroutine.
//
// Failed requests never mutate the data they targeted; they are recorded as
// the snapshot's [Failure] instead.
package store
