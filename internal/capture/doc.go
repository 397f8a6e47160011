// Package capture turns raw platform input into records for the event
// queue.
//
// Each hook (keyboard, pointer, window lifecycle) owns one engine.Producer
// and runs on the thread the platform calls it on. A hook never blocks: it
// buffers locally, attempts a single non-blocking hand-off, and measures
// its own duration against a latency budget.
//
// Platform sources decode OS descriptors into RawKey, RawPointer and
// WindowSignal values before anything in this package sees them. On
// Windows the source installs low-level hooks; elsewhere a JSON-lines
// replay source drives the same hooks.
package capture
