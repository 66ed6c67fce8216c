package queue

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Policy defines how Put behaves when the queue is full.
type Policy int

const (
	// DropOldest removes the oldest queued entry to make room for the new one
	DropOldest Policy = iota
	// Block waits for space up to the put timeout (caller-visible backpressure)
	Block
	// Error reports ErrFull immediately without waiting
	Error
)

// String returns the string representation of the policy
func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case Block:
		return "Block"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// ParsePolicy converts a policy name to a Policy. Unknown names
// default to DropOldest.
func ParsePolicy(s string) Policy {
	switch s {
	case "block", "Block":
		return Block
	case "error", "Error":
		return Error
	default:
		return DropOldest
	}
}

var (
	// ErrFull is reported when an entry cannot be queued. The caller is
	// expected to recover it through the synchronous fallback path.
	ErrFull = errors.New("queue: full")
	// ErrClosed is reported for puts after Close.
	ErrClosed = errors.New("queue: closed")
)

// Entry is a formatted payload waiting to be written. The queue owns
// an Entry from Put until Get hands it to the writer.
type Entry struct {
	Payload    []byte
	EnqueuedAt time.Time
}

// Stats is a read-only snapshot of queue counters.
type Stats struct {
	Puts        uint64
	Gets        uint64
	Drops       uint64
	PutTimeouts uint64
	GetTimeouts uint64
	Size        int
	Capacity    int
}

// Queue is a fixed-capacity buffer of formatted payloads between the
// producing call sites and the single writer task. It is the only
// structure in the engine with concurrent multi-producer access.
type Queue struct {
	ch     chan Entry
	policy Policy

	closed    chan struct{}
	closeOnce sync.Once

	puts        atomic.Uint64
	gets        atomic.Uint64
	drops       atomic.Uint64
	putTimeouts atomic.Uint64
	getTimeouts atomic.Uint64
}

// New creates a queue with the given fixed capacity and overflow policy.
// Capacity values below 1 are raised to 1.
func New(capacity int, policy Policy) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ch:     make(chan Entry, capacity),
		policy: policy,
		closed: make(chan struct{}),
	}
}

// Policy returns the overflow policy the queue was built with.
func (q *Queue) Policy() Policy {
	return q.policy
}

// Put queues a payload. When the queue is full the configured policy
// decides the outcome:
//
//   - DropOldest: the oldest queued entry is removed (counted as a
//     drop) and the insert is retried once; ErrFull if still full.
//   - Block: waits up to timeout for space; ErrFull on timeout.
//   - Error: ErrFull immediately.
//
// An ErrFull return means the entry was NOT queued; the caller must
// recover it (synchronous write) or count it as dropped. Put never
// silently discards the new payload.
func (q *Queue) Put(payload []byte, timeout time.Duration) error {
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	e := Entry{Payload: payload, EnqueuedAt: time.Now()}

	// Fast path: space available
	select {
	case q.ch <- e:
		q.puts.Add(1)
		return nil
	default:
	}

	switch q.policy {
	case Block:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case q.ch <- e:
			q.puts.Add(1)
			return nil
		case <-timer.C:
			q.putTimeouts.Add(1)
			return ErrFull
		case <-q.closed:
			return ErrClosed
		}

	case DropOldest:
		// Remove the single oldest entry, then retry the insert once.
		// Another producer may have won the race for the freed slot.
		select {
		case <-q.ch:
			q.drops.Add(1)
		default:
			// Queue emptied concurrently; the retry below will succeed
			// unless producers refilled it.
		}
		select {
		case q.ch <- e:
			q.puts.Add(1)
			return nil
		default:
			return ErrFull
		}

	case Error:
		fallthrough
	default:
		return ErrFull
	}
}

// Get removes the oldest entry, waiting up to timeout for one to
// arrive. A false return means the wait timed out, which is not an
// error: the writer loop uses it to run periodic housekeeping.
func (q *Queue) Get(timeout time.Duration) (Entry, bool) {
	select {
	case e := <-q.ch:
		q.gets.Add(1)
		return e, true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case e := <-q.ch:
		q.gets.Add(1)
		return e, true
	case <-timer.C:
		q.getTimeouts.Add(1)
		return Entry{}, false
	}
}

// TryGet removes the oldest entry without waiting. Unlike a Get
// timeout, an empty queue here is not counted: the writer's batch
// drain probes emptiness as a matter of course.
func (q *Queue) TryGet() (Entry, bool) {
	select {
	case e := <-q.ch:
		q.gets.Add(1)
		return e, true
	default:
		return Entry{}, false
	}
}

// Close rejects further puts. Entries already queued remain readable
// through Get and Drain so shutdown can hand them to the sink.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

// Drain removes and returns every currently queued entry without
// waiting. Used by the shutdown flush phase.
func (q *Queue) Drain() []Entry {
	var out []Entry
	for {
		select {
		case e := <-q.ch:
			q.gets.Add(1)
			out = append(out, e)
		default:
			return out
		}
	}
}

// Len returns the current number of queued entries.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Stats returns a snapshot of the queue counters. Each counter is
// incremented in the same select branch as the channel operation it
// describes, so the counts track operation outcomes exactly; Size is
// a point-in-time reading.
func (q *Queue) Stats() Stats {
	return Stats{
		Puts:        q.puts.Load(),
		Gets:        q.gets.Load(),
		Drops:       q.drops.Load(),
		PutTimeouts: q.putTimeouts.Load(),
		GetTimeouts: q.getTimeouts.Load(),
		Size:        len(q.ch),
		Capacity:    cap(q.ch),
	}
}
