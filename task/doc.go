// Package task tracks the background goroutines the engine starts.
//
// Any unit of concurrent work must have exactly one owner responsible
// for observing its completion. The Tracker is that owner: every
// goroutine is registered through Go, unregisters itself on completion
// (including panic), and is cancelled and awaited by Shutdown. Tasks
// that ignore cancellation are reported, never waited on forever.
package task
