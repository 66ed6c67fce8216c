// Package sink provides the write destinations consumed by the
// delivery engine.
//
// A Sink is opened once, written to by the handler's writer task (and
// its synchronous fallback path), flushed on the configured interval,
// and closed during the Cleaning shutdown phase. FileSink buffers
// through bufio and rotates by size, age, or interval with backup
// cleanup; RotatingSink delegates rotation to lumberjack; ConsoleSink
// writes straight through to a terminal; WriterSink wraps any
// io.Writer, mostly for tests.
package sink
