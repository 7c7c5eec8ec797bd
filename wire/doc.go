// Package wire implements a compact, self-delimiting binary wire format for
// a closed set of value shapes (unit, bool, fixed-width numerics,
// platform-width integers, char, string, option, sequence, map, tuple,
// struct, and enum variant), and the Encoder/Decoder pair that are exact
// byte-for-byte inverses of one another.
//
// Encoding choices (all fixed, none configurable — see the Non-goals in
// SPEC_FULL.md):
//   - All multi-byte integers and floats are big-endian ("network order").
//   - Length and count prefixes (string byte-length, sequence element
//     count, map entry count) are always an 8-byte u64, regardless of the
//     caller's platform word size.
//   - Tuples, structs, tuple-structs, and newtype-structs carry no framing
//     of their own: fields are written back-to-back in declaration order,
//     with the element count supplied by the caller's schema rather than
//     the wire.
//   - There is no type information on the wire beyond what a shape
//     structurally requires: this is not a self-describing format, and it
//     does not evolve (no field tags, no versioning).
//
// Decoder is written for strict, deterministic failure: every read except
// DecodeChar's is bounds- and size-limit-checked before it's issued
// (DecodeChar accounts a char's width only after decoding it), malformed UTF-8 and
// out-of-range tags fail with a descriptive InvalidEncodingError, and a
// short read anywhere (including mid-UTF-8-continuation-byte) fails with
// ErrEndOfStream. A Decoder never rewinds; once any call returns an error it
// is poisoned and must be discarded.
//
// This package is the wire format's reference implementation; it does not
// know how to walk a Go struct or slice on its own (that's package
// visitor's job, built on top of it).
package wire
