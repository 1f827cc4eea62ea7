// Package flows contains pure-function orchestrators for the Client's session
// operations.
//
// Each flow function (RunLogin, RunRefresh, RunLogout) accepts a typed
// dependency struct and returns a result carrying a failure kind, so the root
// package can map outcomes to its own errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate the token store, the refresh exchange and the
// server calls handed to them. They do NOT own any of these resources;
// ownership stays with the Client.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform HTTP I/O directly; requests go through dependency funcs.
package flows
