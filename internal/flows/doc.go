// Package flows contains pure-function orchestrators for the challenge engine.
//
// Each flow function (Classify, ResolveOutcome, ValidateEnrollment, etc.)
// accepts a typed dependency struct or plain values and returns results without
// side-effects. The Engine owns provider calls, audit and metrics; flows only
// decide what a provider answer or a user input means.
//
// # Architecture boundaries
//
// Flow functions see challenge descriptors and completion attributes as plain
// string maps. They never hold an opaque handle beyond the call that returns it.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls, apart from the caller-owned CodeBuffer.
//   - Import stepAuth (to avoid import cycles).
//   - Perform I/O directly.
package flows
