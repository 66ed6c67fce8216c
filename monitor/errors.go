package monitor

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Error categories recorded by the engine.
const (
	CategorySinkWrite       = "sink_write"
	CategorySinkFlush       = "sink_flush"
	CategoryFormat          = "format"
	CategoryQueue           = "queue"
	CategoryTaskPanic       = "task_panic"
	CategoryShutdownTimeout = "shutdown_timeout"
)

// ErrorRecord is one recorded failure.
type ErrorRecord struct {
	Category string
	Message  string
	Time     time.Time
}

// defaultHistorySize bounds the retained error history.
const defaultHistorySize = 256

// ErrorTracker accumulates categorized failure counts and a bounded
// history, and notifies subscribed observers. It is the terminal sink
// for error information on the failure path of every other component:
// Record never panics and never returns an error.
type ErrorTracker struct {
	mu      sync.Mutex
	counts  map[string]uint64
	history []ErrorRecord
	next    int
	full    bool
	subs    []func(ErrorRecord)
	log     *zap.Logger
}

// NewErrors creates an error tracker. log may be nil.
func NewErrors(log *zap.Logger) *ErrorTracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &ErrorTracker{
		counts:  make(map[string]uint64),
		history: make([]ErrorRecord, defaultHistorySize),
		log:     log,
	}
}

// Record counts err under category, appends it to the history ring,
// and invokes observers. A nil err is counted with an empty message.
// Record is safe to call from any goroutine and never propagates a
// failure of its own.
func (t *ErrorTracker) Record(category string, err error) {
	defer func() {
		// The tracker sits on every failure path; it must not add one.
		_ = recover()
	}()

	rec := ErrorRecord{Category: category, Time: time.Now()}
	if err != nil {
		rec.Message = err.Error()
	}

	t.mu.Lock()
	t.counts[category]++
	t.history[t.next] = rec
	t.next++
	if t.next == len(t.history) {
		t.next = 0
		t.full = true
	}
	subs := t.subs
	t.mu.Unlock()

	t.log.Debug("error recorded",
		zap.String("category", category),
		zap.String("message", rec.Message))

	for _, fn := range subs {
		t.notify(fn, rec)
	}
}

// notify invokes one observer with panic containment so a failing
// callback cannot stop the others.
func (t *ErrorTracker) notify(fn func(ErrorRecord), rec ErrorRecord) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Warn("error observer panicked", zap.Any("panic", r))
		}
	}()
	fn(rec)
}

// Subscribe registers an observer invoked for every recorded error.
// Observers run best-effort on the recording goroutine.
func (t *ErrorTracker) Subscribe(fn func(ErrorRecord)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	// Copy-on-write so Record can iterate without the lock
	subs := make([]func(ErrorRecord), len(t.subs), len(t.subs)+1)
	copy(subs, t.subs)
	t.subs = append(subs, fn)
	t.mu.Unlock()
}

// Stats returns a copy of per-category counts.
func (t *ErrorTracker) Stats() map[string]uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]uint64, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Total returns the total recorded errors across categories.
func (t *ErrorTracker) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total uint64
	for _, v := range t.counts {
		total += v
	}
	return total
}

// History returns the retained error records, oldest first.
func (t *ErrorTracker) History() []ErrorRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		out := make([]ErrorRecord, t.next)
		copy(out, t.history[:t.next])
		return out
	}
	out := make([]ErrorRecord, 0, len(t.history))
	out = append(out, t.history[t.next:]...)
	out = append(out, t.history[:t.next]...)
	return out
}
