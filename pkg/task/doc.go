// Package task is a cooperative task runtime: callers spawn units of work
// that execute concurrently, observe them through handles, and collect their
// results deterministically.
//
// A Handle is the caller's proxy for one task. It carries a process-unique
// id, live-then-frozen elapsed time, a finished flag, a cooperative Abort,
// and a single-use Join that blocks until the task is terminal and drains
// its outcome.
//
// Cancellation is cooperative. Abort (and timeout expiry) cancel the body's
// context; the body stops at its next suspension point (task.Sleep,
// task.Yield, or any other context-aware call). A body that never suspends
// runs to natural completion.
//
// Tasks with a configured timeout race their body against a timer; if the
// timer wins, the task resolves immediately as cancelled ("task exceeded
// timeout") with elapsed frozen near the timeout, and the body unwinds in
// the background.
//
// SpawnEvery and SpawnCron re-invoke a body on a schedule behind a single
// Handle; Group collects handles and joins them in spawn order.
package task
