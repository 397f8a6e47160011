// Package relay carries window lifecycle notifications from an isolated
// hook host process to the aggregator.
//
// The channel is a named, single-reader byte stream of fixed-size records.
// The host writes one record per notification and then wakes every
// listening aggregator; the aggregator drains whatever whole records are
// pending whenever it is woken, and on a fallback poll interval.
//
// Endpoints: a FIFO plus SIGUSR1 wake-ups on Linux and macOS, a mailslot
// plus a named event on Windows, and an in-memory Pipe for tests.
package relay
