// Package internal groups packages that are private to goSession.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - fakebank: in-memory bank API used by tests, the CLI fake server and examples
//   - flows: flow orchestrators for login, refresh and logout
//   - metrics: lock-free counters and latency histograms
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
