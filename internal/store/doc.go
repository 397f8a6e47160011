// Package store holds the three durable stores: Keystream, Pointer and
// Sessions.
//
// Each store is an in-memory aggregate (counters plus an append-only log)
// guarded by its own mutex, persisted to one file through the codec
// package. A store whose file could not be loaded still exists but is
// unavailable: appends fail with ErrUnavailable until the user resets it or
// loads a readable file.
//
// # Persistence
//
//   - Every append bumps a modification counter. When it reaches the
//     threshold (50 by default) the store saves synchronously, on the
//     appending goroutine and under its own lock, then sets the counter back
//     to zero whether or not the save succeeded.
//   - Saves always write the newest layout through a temp file and a rename.
//   - Load failures are recorded in the diagnostic log as diag.FileIO and
//     never panic.
//
// # Reading
//
// Snapshot copies the state under the lock. View runs a callback with the
// lock held, for readers that must not see a torn log; the callback must not
// block. Derived views (rankings, per-display hits, per-subject totals) are
// cached behind a dirty flag and rebuilt on the first read after a change.
package store
