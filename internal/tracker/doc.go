// Package tracker owns one capture session: the three durable stores, the
// event queue and its consumer, the capture hooks and their source, and
// the optional relay receiver.
//
// A Tracker is built from a config.Config. Run supervises every goroutine
// and, on return, flushes the stores. The lifecycle methods (Install,
// Uninstall, ResetEverything, SaveToFile, LoadFromFile) are the user
// intents exposed by the CLI and the HTTP API and are safe to call while
// Run is in progress.
package tracker
