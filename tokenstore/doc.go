// Package tokenstore provides durable key/value persistence for session tokens and
// idempotency records.
//
// # Backends
//
//   - [Memory]: process-local map guarded by a RWMutex. Lost on exit.
//   - [Bolt]: single-file bbolt database. Survives process restarts.
//   - [Redis]: shared across processes of the same user agent.
//
// All backends implement [Store]. Token pairs are written with [Store.SetMany] so that
// readers never observe a new access token next to a stale refresh token.
//
// # Architecture boundaries
//
// This package owns raw persistence only. It does NOT parse tokens, derive
// fingerprints, or decide when entries are cleared. Those decisions belong to the
// session object and the idempotency manager.
//
// # What this package must NOT do
//
//   - Import goSession, jwt, or idempotency (no upward imports).
//   - Validate or transform stored values.
package tokenstore
