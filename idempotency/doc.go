// Package idempotency derives stable fingerprints for mutating requests and binds each
// fingerprint to a persisted random key.
//
// A fingerprint is the canonical JSON of a request's semantic fields, in schema order,
// after type coercion, so "100", 100 and 100.0 produce the same fingerprint. The key
// bound to a fingerprint is reused for every resubmission until the caller clears it
// after a terminal server response.
//
// # Architecture boundaries
//
// This package owns fingerprinting and key lifecycle in a [tokenstore.Store]. It does
// NOT decide which responses are terminal; callers do that and call [Manager.ClearKey].
//
// # What this package must NOT do
//
//   - Perform network I/O.
//   - Include secrets (passwords) or free-form fields in fingerprints.
package idempotency
