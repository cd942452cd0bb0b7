// Package canonical provides deterministic JSON encoding for configuration
// snapshots.
//
// Two snapshots that hold the same values always encode to the same bytes,
// regardless of Go map iteration order or the decoder that produced them
// (YAML, JSON or CUE). The bootstrap pipeline fingerprints the finished
// configuration store with this encoding so repeated runs can be compared
// bit for bit.
//
// # Encoding Rules
//
//   - Object keys sorted by UTF-16 code units (RFC 8785 ordering)
//   - No HTML escaping; U+2028 and U+2029 emitted literally
//   - Strings NFC normalized
//   - Integral floats encoded as integers (3.0 -> 3) so YAML and JSON
//     sources agree; NaN and infinities are rejected
//   - nil encodes as null
//   - time.Time encodes as an RFC 3339 string
package canonical
