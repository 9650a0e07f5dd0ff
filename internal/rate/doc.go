// Package rate provides Redis-backed fixed-window counters used by the
// reference identity provider to throttle failed sign-ins and confirmation
// code resends.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - "srl:e:" failed sign-in per email
//   - "srl:ip:" failed sign-in per IP
//   - "srr:" confirmation code resend per email
//
// # What this package must NOT do
//
//   - Decide what a rejection means to the caller.
//   - Be imported outside the stepAuth module.
package rate
