// Package stores provides Redis-backed record stores for the challenge flows:
// the best-effort last-email cache used by the engine, and the user, challenge
// session and confirmation code records kept by the reference identity
// provider.
//
// # Design
//
// Each store persists a versioned, binary-encoded record in Redis, most with a
// TTL. Mutation operations (Consume, RecordFailure, MarkConfirmed) use either a
// Lua script or WATCH/MULTI optimistic transactions with retry on contention.
// Challenge sessions and confirmation codes are single-use and enforce attempt
// limits. Secret comparisons use constant-time compare.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT generate
// handles or codes, hash passwords, or decide sign-in outcomes.
//
// # What this package must NOT do
//
//   - Import stepAuth or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
