// Package queue provides the bounded buffer between log producers and
// the background writer task.
//
// The queue holds formatted payloads, not records, so the writer never
// touches the record pool. Capacity is fixed at construction and the
// overflow Policy (DropOldest, Block, or Error) is immutable for the
// queue's lifetime.
//
// Put and Get both take explicit timeouts; neither waits unbounded.
// A Get timeout is a normal outcome the writer loop uses for periodic
// flushing and health bookkeeping. A Put that cannot queue the payload
// reports ErrFull so the caller can recover the entry synchronously —
// an entry is either queued, recovered, or counted as dropped, never
// silently lost.
package queue
