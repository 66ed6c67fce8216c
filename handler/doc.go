// Package handler dispatches log records to their outputs.
//
// The center of the package is Pipeline, the asynchronous delivery
// engine: records are formatted at the call site, queued into a
// bounded buffer, and written by a single tracked background task.
// Every condition under which the async path cannot be trusted (a
// full queue, memory pressure, a dead writer, shutdown in progress)
// degrades to an immediate synchronous write on the calling
// goroutine, so an accepted record is delivered or counted as
// dropped, never silently lost.
//
// Concrete handlers live in the consolehandler and filehandler
// subpackages; both are thin façades over Pipeline with the right
// sink. MultiHandler fans one record out to several handlers, and
// SlogHandler adapts any Handler to log/slog.
//
// Shutdown is ordered and bounded: Close first drains the queue into
// the sink, then stops the writer task, then releases the sink, with
// a timeout on each phase. The outcome, including any undelivered
// entries, is reported through shutdown.Result and the handler's
// health snapshot.
package handler
