// Package export writes SQLite snapshots of the durable stores.
//
// Each call to WriteSnapshot records one consistent copy of whichever
// stores were available, under a fresh snapshot ID, so a database can hold
// a history of exports and be queried with plain SQL.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Snapshot rows cascade on delete
//
// Timestamps are stored as INTEGER microseconds. A display that is still
// present has a NULL end_ts.
package export
