// Package goSession keeps an authenticated session against a remote banking HTTP
// API and makes mutating operations (transfers, scheduled transfers, account
// opening) safe to retry.
//
// A [Client] attaches the access token to every request outside the excluded
// auth paths, refreshes it once when the API answers with an auth-failure status,
// replays the original request and, when the refresh fails, ends the session and
// hands control to a [Navigator]. Mutations carry an Idempotency-Key derived
// from a fingerprint of their semantic fields; the key survives retries and
// restarts until the server gives a definite answer.
//
// Clients are safe for concurrent use after [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Client], [Builder], [Config],
// [Session] and value types (DTOs, MetricsSnapshot, AuditEvent). Flow
// orchestration, audit dispatch and metric storage live under internal/.
// Storage backends live in tokenstore, token decoding in jwt, the request
// pipeline in middleware and the refresh exchange in refresh.
//
// # What this package must NOT do
//
//   - Log or audit token values.
//   - Refresh more than once for a single logical request.
//   - Send the refresh token anywhere but the refresh endpoint.
//   - Import any sub-package that re-imports goSession (no import cycles).
package goSession
