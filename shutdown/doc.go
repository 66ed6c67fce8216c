// Package shutdown drives a handler's ordered teardown.
//
// The Manager is a one-way state machine (Running → Flushing →
// Cleaning → Done) with a bounded timeout per phase. Correctness here
// means shutdown terminates and reports loss, not that it blocks
// forever hoping for delivery: a phase that exceeds its deadline logs
// what was left behind and advances. ForceSyncShutdown exists for the
// case where the asynchronous machinery itself can no longer be
// trusted and the sink must be released directly.
package shutdown
