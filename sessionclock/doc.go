// Package sessionclock counts down to an access token's expiry and signals it exactly
// once.
//
// A [Clock] is bound to one expiry instant. It recomputes the remaining whole seconds on
// every tick, reports them through an optional callback, and fires the expiry callback
// the first time the remaining time reaches zero. A clock whose expiry is already in the
// past fires on [Clock.Start] without waiting for a tick.
//
// # What this package must NOT do
//
//   - Parse tokens or touch storage.
//   - Keep goroutines or tickers alive after Stop or context cancellation.
package sessionclock
