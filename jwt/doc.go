// Package jwt reads access-token claims on the client side and issues HS256 tokens for
// in-process test servers.
//
// [Parse] decodes the payload segment only. It never verifies the signature: the client
// uses claims for display and expiry scheduling, and the server remains the authority
// on validity.
//
// # What this package must NOT do
//
//   - Make authorization decisions from unverified claims.
//   - Perform I/O.
//   - Import goSession or tokenstore.
package jwt
