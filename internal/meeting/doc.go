// Package meeting implements the review-session state machine.
//
// A Mode owns the session's Phase, the ballot for the current round, the current item
// (sequential reviews) or group (group reviews), and applies decisions to the store. Modes
// never touch the chat connection, the timers or goroutines directly: everything goes
// through the narrow Env capability handed to them by the driver, and every Env callback
// (timer fires, roster replies, store continuations) runs back on the driver's loop.
//
// Continuations re-validate before acting. Each phase change bumps an epoch counter and
// each opened ballot bumps a round counter; a continuation that captured a stale value
// does nothing.
package meeting
