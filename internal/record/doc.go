// Package record defines the typed events and entities that flow through the
// capture pipeline: key releases, pointer clicks, monitor lifespans and
// window sessions.
//
// Text fields are plain Go strings in memory. On disk they occupy
// fixed-width NUL-padded arrays, so anything entering the pipeline is passed
// through Fit first; a fitted string survives an encode/decode round trip
// byte for byte.
package record
