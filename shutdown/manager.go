package shutdown

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Phase is the state of the shutdown machine. Phases only advance:
// Running → Flushing → Cleaning → Done, with no re-entry once Done.
type Phase int32

const (
	// Running is the normal operating state.
	Running Phase = iota
	// Flushing drains the queue into the sink.
	Flushing
	// Cleaning cancels tracked tasks and releases the sink.
	Cleaning
	// Done is terminal.
	Done
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case Running:
		return "Running"
	case Flushing:
		return "Flushing"
	case Cleaning:
		return "Cleaning"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Hooks are the two pieces of work the manager drives. Both must
// respect their timeout argument; the manager additionally enforces it
// from outside so a stuck hook cannot hang shutdown.
type Hooks struct {
	// Flush drains pending entries to the sink within timeout and
	// returns how many entries could NOT be delivered.
	Flush func(timeout time.Duration) int

	// Cleanup cancels background tasks and releases sink resources
	// within timeout. It returns how many tasks were still running
	// when it gave up, and any resource release error.
	Cleanup func(timeout time.Duration) (int, error)
}

// Result reports what shutdown achieved. Loss is reported, never
// hidden: undelivered entries and unstopped tasks are counts the
// caller can act on.
type Result struct {
	Undelivered     int
	UnstoppedTasks  int
	FlushTimedOut   bool
	CleanupTimedOut bool
	// Err carries the sink release error, if any.
	Err error
}

// Config configures a Manager.
type Config struct {
	// FlushTimeout bounds the Flushing phase (default 5s).
	FlushTimeout time.Duration
	// CleanupTimeout bounds the Cleaning phase (default 5s).
	CleanupTimeout time.Duration
	// Log receives phase warnings. May be nil.
	Log *zap.Logger
}

// Manager drives the ordered shutdown sequence for one handler.
// Shutdown is idempotent: the first caller runs the sequence, later
// callers wait for it and receive the same Result. Both phases are
// bounded; on timeout the manager logs the loss and moves on rather
// than hanging.
type Manager struct {
	flushTimeout   time.Duration
	cleanupTimeout time.Duration
	log            *zap.Logger
	hooks          Hooks

	phase       atomic.Int32
	done        chan struct{}
	doneOnce    sync.Once
	result      Result
	cleanupOnce sync.Once
}

// New creates a manager around hooks.
func New(cfg Config, hooks Hooks) *Manager {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 5 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &Manager{
		flushTimeout:   cfg.FlushTimeout,
		cleanupTimeout: cfg.CleanupTimeout,
		log:            cfg.Log,
		hooks:          hooks,
		done:           make(chan struct{}),
	}
}

// Phase returns the current shutdown phase.
func (m *Manager) Phase() Phase {
	return Phase(m.phase.Load())
}

// Shutdown runs the Flushing and Cleaning phases and returns once the
// machine reaches Done. Calls after the first block until the running
// sequence completes, then return its Result; once Done they return
// immediately.
func (m *Manager) Shutdown() Result {
	if !m.phase.CompareAndSwap(int32(Running), int32(Flushing)) {
		// Another caller owns the sequence (or it already finished).
		<-m.done
		return m.result
	}

	var res Result

	// Flushing: hand remaining entries to the sink.
	if m.hooks.Flush != nil {
		und, timedOut := m.boundedFlush()
		res.Undelivered = und
		res.FlushTimedOut = timedOut
		if timedOut || und > 0 {
			m.log.Warn("flush phase incomplete",
				zap.Int("undelivered", und),
				zap.Bool("timed_out", timedOut),
				zap.Duration("timeout", m.flushTimeout))
		}
	}

	// A concurrent ForceSyncShutdown may already own Cleaning; never
	// move the machine backward.
	m.phase.CompareAndSwap(int32(Flushing), int32(Cleaning))

	// Cleaning: stop tasks, release the sink.
	unstopped, cleanupTimedOut, err := m.boundedCleanup()
	res.UnstoppedTasks = unstopped
	res.CleanupTimedOut = cleanupTimedOut
	res.Err = err
	if cleanupTimedOut || unstopped > 0 {
		m.log.Warn("cleanup phase incomplete",
			zap.Int("unstopped_tasks", unstopped),
			zap.Bool("timed_out", cleanupTimedOut),
			zap.Duration("timeout", m.cleanupTimeout))
	}

	m.phase.Store(int32(Done))
	m.doneOnce.Do(func() {
		m.result = res
		close(m.done)
	})
	// A racing ForceSyncShutdown may have published first; return what
	// every other caller sees.
	<-m.done
	return m.result
}

// ForceSyncShutdown is the escape hatch for when the normal path
// cannot be trusted: it runs the Cleaning work directly on the calling
// goroutine, skipping the flush phase. Safe to combine with Shutdown;
// the cleanup hook runs at most once between them.
func (m *Manager) ForceSyncShutdown() error {
	for {
		p := m.phase.Load()
		if p >= int32(Cleaning) {
			// The cleaning work is already owned elsewhere. Wait for
			// its result; reading it before done closes would race.
			<-m.done
			return m.result.Err
		}
		if m.phase.CompareAndSwap(p, int32(Cleaning)) {
			break
		}
	}

	var err error
	m.cleanupOnce.Do(func() {
		if m.hooks.Cleanup != nil {
			_, err = m.hooks.Cleanup(m.cleanupTimeout)
		}
	})

	m.phase.Store(int32(Done))
	m.doneOnce.Do(func() {
		m.result = Result{Err: err}
		close(m.done)
	})
	return err
}

// boundedFlush runs the flush hook, enforcing the phase timeout from
// outside as well. A hook that never returns is abandoned with its
// work counted as undelivered -1 (unknown).
func (m *Manager) boundedFlush() (undelivered int, timedOut bool) {
	type flushResult struct{ undelivered int }
	ch := make(chan flushResult, 1)
	start := time.Now()
	go func() {
		ch <- flushResult{m.hooks.Flush(m.flushTimeout)}
	}()

	timer := time.NewTimer(m.flushTimeout + m.flushTimeout/4)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.undelivered, time.Since(start) >= m.flushTimeout
	case <-timer.C:
		return -1, true
	}
}

// boundedCleanup runs the cleanup hook with the same outside bound.
func (m *Manager) boundedCleanup() (unstopped int, timedOut bool, err error) {
	type cleanupResult struct {
		unstopped int
		err       error
	}
	ch := make(chan cleanupResult, 1)
	start := time.Now()
	go func() {
		var r cleanupResult
		m.cleanupOnce.Do(func() {
			if m.hooks.Cleanup != nil {
				r.unstopped, r.err = m.hooks.Cleanup(m.cleanupTimeout)
			}
		})
		ch <- r
	}()

	timer := time.NewTimer(m.cleanupTimeout + m.cleanupTimeout/4)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.unstopped, time.Since(start) >= m.cleanupTimeout, r.err
	case <-timer.C:
		return -1, true, nil
	}
}
