package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PanicFunc is invoked when a tracked task panics. The panic is
// recovered inside the tracker; it never propagates to the goroutine's
// stack.
type PanicFunc func(name string, recovered interface{})

// Handle identifies one tracked background task. Handles are removed
// from the tracker automatically when the task finishes, whether it
// returns, is cancelled, or panics.
type Handle struct {
	id   uint64
	name string
	done chan struct{}
}

// Name returns the name the task was registered under.
func (h *Handle) Name() string {
	return h.name
}

// Done returns a channel closed when the task has finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Report describes the outcome of a tracker shutdown.
type Report struct {
	// Completed is the number of tasks that finished in time.
	Completed int
	// Outstanding names the tasks still running when the timeout hit.
	Outstanding []string
	// TimedOut is true when at least one task outlived the timeout.
	TimedOut bool
}

// Tracker owns every background goroutine the engine starts. Nothing
// in the engine spawns a bare goroutine; routing all concurrent work
// through the tracker is what makes shutdown able to observe it.
type Tracker struct {
	mu     sync.Mutex
	tasks  map[uint64]*Handle
	nextID uint64
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	completed uint64

	onPanic PanicFunc
	log     *zap.Logger
}

// New creates a tracker. log may be nil.
func New(log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		tasks:  make(map[uint64]*Handle),
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// OnPanic registers the observer for panics in tracked tasks. Must be
// called before the first Go.
func (t *Tracker) OnPanic(fn PanicFunc) {
	t.onPanic = fn
}

// Go starts fn as a tracked goroutine. fn must honor ctx cancellation;
// that is the only cancellation signal a task receives. The returned
// handle can be waited on but requires no cleanup from the caller:
// completion always unregisters the task.
//
// Calling Go on a tracker that has already shut down still runs fn,
// but with an already-cancelled context, so a well-behaved task exits
// immediately.
func (t *Tracker) Go(name string, fn func(ctx context.Context)) *Handle {
	h := &Handle{name: name, done: make(chan struct{})}

	t.mu.Lock()
	t.nextID++
	h.id = t.nextID
	t.tasks[h.id] = h
	late := t.closed
	t.mu.Unlock()

	if late {
		t.log.Warn("task started after tracker shutdown", zap.String("task", name))
	}

	t.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.log.Error("tracked task panicked",
					zap.String("task", name),
					zap.Any("panic", r))
				if t.onPanic != nil {
					t.onPanic(name, r)
				}
			}
			t.finish(h)
		}()
		fn(t.ctx)
	}()

	return h
}

// finish unregisters a completed task. It takes the same lock as Go,
// but never while Go holds it across a blocking call, so the two
// cannot deadlock.
func (t *Tracker) finish(h *Handle) {
	t.mu.Lock()
	delete(t.tasks, h.id)
	t.completed++
	t.mu.Unlock()
	close(h.done)
	t.wg.Done()
}

// Outstanding returns the number of tasks still running.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Names returns the names of tasks still running, sorted.
func (t *Tracker) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.tasks))
	for _, h := range t.tasks {
		names = append(names, h.name)
	}
	sort.Strings(names)
	return names
}

// Context returns the context shared by all tracked tasks. It is
// cancelled by Shutdown.
func (t *Tracker) Context() context.Context {
	return t.ctx
}

// Shutdown cancels every tracked task and waits up to timeout for all
// of them to finish. It always returns within the timeout: tasks that
// ignore cancellation are reported in the Report, not waited on
// forever. Safe to call more than once.
func (t *Tracker) Shutdown(timeout time.Duration) Report {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
	}

	t.mu.Lock()
	report := Report{
		Completed:   int(t.completed),
		Outstanding: make([]string, 0, len(t.tasks)),
		TimedOut:    len(t.tasks) > 0,
	}
	for _, h := range t.tasks {
		report.Outstanding = append(report.Outstanding, h.name)
	}
	t.mu.Unlock()
	sort.Strings(report.Outstanding)

	if report.TimedOut {
		t.log.Warn("tasks outlived shutdown timeout",
			zap.Int("outstanding", len(report.Outstanding)),
			zap.Strings("tasks", report.Outstanding),
			zap.Duration("timeout", timeout))
	}

	return report
}
