// Package fakebank is an in-process banking API used by tests, the demo and the
// load test.
//
// It speaks the same contract as the real backend: JSON bodies, bearer access
// tokens on protected routes, a refresh endpoint that takes the refresh token
// as its bearer credential, and ErrorResponseDto bodies on failure. Knobs let a
// test expire every access token, pick the auth-failure status, rotate refresh
// tokens, and inject failures or lost responses on a given path.
//
// # Architecture boundaries
//
// Server state lives in memory behind one mutex. Requests carrying an
// Idempotency-Key are applied at most once; a repeated key replays the stored
// response.
//
// # What this package must NOT do
//
//   - Import the goSession root package.
//   - Persist anything outside the process.
package fakebank
