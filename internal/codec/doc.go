// Package codec encodes and decodes the three persisted stores.
//
// Every file starts with a 4-byte signature and a 1-byte version, followed by
// a version-specific payload. All integers are little-endian and fixed width.
//
//	Keystream  "KEYB"  v0, v1 (255 counters, seconds)       v2 (256 counters, µs, current)
//	Pointer    "MOUS"  v0 (u32 seconds), v1 (u64 seconds)   v2 (u64 µs, current)
//	Sessions   "EVEN"  v0 (current)
//
// Legacy keystream and pointer layouts stamp events in whole seconds; their
// readers scale to microseconds on the way in. Pointer v1 and v2 share a
// byte layout and differ only in the unit.
//
// Decoding dispatches on the version byte through a closed table of readers,
// one per layout. Each reader checks the size implied by the declared counts
// before touching the records. In strict mode a shortfall is reported as
// ErrTruncated; otherwise the reader keeps every whole record that fits and
// drops the tail. A shortfall inside the fixed header is always an error.
//
// Encoders always write the current version, so loading any readable file
// and saving it again upgrades it.
package codec
