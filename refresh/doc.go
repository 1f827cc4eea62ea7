// Package refresh exchanges a refresh token for a new access token and coalesces
// concurrent exchanges.
//
// # Exchange
//
// [Exchanger] posts to the refresh endpoint with "Authorization: Bearer <refresh>"
// through a bare *http.Client that has no session middleware, so a failing refresh can
// never trigger another refresh.
//
// # Coalescing
//
// [Coalescer] collapses concurrent refreshes that present the same refresh token into
// one exchange (golang.org/x/sync/singleflight). Each waiter still honours its own
// context.
//
// # What this package must NOT do
//
//   - Read or write the token store; persistence belongs to the session.
//   - Retry a rejected exchange.
//   - Import goSession or middleware.
package refresh
