// Package cipher implements the Caesar-shift puzzles used as the third sign-in
// factor and as the enrollment self-check.
//
// # Contract
//
// For every alphabetic string x and every shift s in [0,25]:
//
//	Decode(Encode(x, s), s) == x
//
// Puzzle generation draws an uppercase word from a fixed catalog and a shift in
// [1, maxShift] (5 by default) from an injectable random source.
//
// # What this package must NOT do
//
//   - Import stepAuth or any internal package.
//   - Perform I/O beyond reading its random source.
package cipher
