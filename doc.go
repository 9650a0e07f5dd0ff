// Package stepAuth orchestrates a three-factor sign-in against an external
// identity provider: password, then a security question, then a Caesar cipher
// puzzle, plus the one-time code confirmation that follows registration.
//
// The package owns the client half of the protocol. It validates enrollment
// input, classifies each challenge descriptor the provider returns, carries
// the provider's opaque session handle from one answer to the next, and drives
// the confirmation code entry with its resend cooldown. Whether an answer is
// correct is always decided by the [IdentityProvider].
//
// # Architecture boundaries
//
// stepAuth is the public surface. It exposes [Engine], [Builder], [Config], the
// [IdentityProvider] contract and value types. Flow decisions live in
// internal/flows, persistence in internal/stores; neither is exported.
//
// # Ownership
//
// An [Attempt] is a single-owner token. Every transition that returns a new
// Attempt spends the previous one, so a replaced handle cannot be submitted
// again. The handle itself is never exposed and never persisted; only the last
// email address is cached, best-effort, through [EmailCache].
//
// # What this package must NOT do
//
//   - Retry provider calls on its own or cancel one that is in flight.
//   - Judge challenge answers locally beyond rejecting an empty one.
//   - Import any sub-package that re-imports stepAuth (no import cycles).
package stepAuth
