// Package middleware composes the client request pipeline and the bearer guard used by
// in-process test servers.
//
// # Client pipeline
//
//   - [Doer] / [Middleware] / [Chain]: decorator composition over *http.Client.
//   - [Authenticate]: attaches the access token, refreshes once on an auth-failure
//     status and replays the request, or terminates the session.
//   - [IdempotencyHeader]: copies the key carried by the context into a header.
//   - [Logging], [Observe]: slog request logging and latency hooks.
//
// Retry-once state travels in the request context, never on shared objects.
//
// # Server guard
//
// [Guard] validates "Authorization: Bearer" on incoming requests and injects the
// verified claims into the request context.
//
// # What this package must NOT do
//
//   - Read the token store directly (session access goes through [SessionSource]).
//   - Decide idempotency key lifecycle.
//   - Retry non-auth failures or transport errors.
package middleware
