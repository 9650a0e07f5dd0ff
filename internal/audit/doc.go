// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay that numbers each attempt's events and
//     sheds only non-final events when full.
//   - [Event]: one entry of an attempt's trail: type, sequence, step, final flag.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import stepAuth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
