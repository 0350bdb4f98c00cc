// Package loop drives Watchboard's dispatcher.
//
// A [Loop] owns the only goroutine that calls Dispatch. Everything else
// talks to it through two entry points:
//
//   - [Loop.Post]: queue an intent (user actions, push messages)
//   - [Loop.Go]: run a network request on the worker pool; the intent the
//     request returns is posted when it finishes
//
// Because completions are posted rather than dispatched, a response is
// always handled in its own dispatch, never inside the one that issued the
// request.
package loop
