// Package internal contains helper utilities that are private to stepAuth,
// including secure random generation of handles and codes.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for sign-in, enrollment and confirmation
//   - rate: Redis-backed fixed-window counters for the reference provider
//   - rules: answer normalization and input validation policy
//   - stores: Redis-backed record stores
//
// # What this package must NOT do
//
//   - Export types that appear in the public stepAuth API.
//   - Be imported by any package outside the stepAuth module.
package internal
