package guard

import (
	"errors"
	"sync/atomic"
)

// errAsyncPanic marks an async operation that panicked; it is only
// used internally to trigger the synchronous fallback.
var errAsyncPanic = errors.New("guard: async path panicked")

// Guard answers whether the asynchronous delivery path is currently
// usable and routes an operation either onto it or onto an immediate
// synchronous fallback. The guard exists so that "the async pipeline
// is gone" degrades to a blocking write instead of data loss.
type Guard interface {
	// Available reports whether the async path can be used right now.
	Available() bool

	// Run executes asyncOp when the async path is available, falling
	// back to syncOp when it is not or when asyncOp fails for any
	// reason. Exactly one of the two operations completes; Run never
	// silently no-ops.
	Run(asyncOp, syncOp func() error) error

	// Counts returns how many operations completed on each path.
	Counts() (asyncRuns, syncRuns uint64)
}

// Probe is the capability check behind a pipeline guard. It must be
// cheap: it is consulted on every emission.
type Probe func() bool

// New returns a guard driven by probe. A nil probe yields the
// always-synchronous guard.
func New(probe Probe) Guard {
	if probe == nil {
		return Sync()
	}
	return &pipelineGuard{probe: probe}
}

// Sync returns the guard for contexts with no async pipeline at all.
// It runs every operation synchronously.
func Sync() Guard {
	return &syncGuard{}
}

// pipelineGuard routes onto the async path while its capability probe
// holds, and counts how often each path ran.
type pipelineGuard struct {
	probe     Probe
	asyncRuns atomic.Uint64
	syncRuns  atomic.Uint64
}

func (g *pipelineGuard) Available() bool {
	return g.probe()
}

func (g *pipelineGuard) Run(asyncOp, syncOp func() error) error {
	if g.probe() {
		if err := g.runAsync(asyncOp); err == nil {
			return nil
		}
		// The async path failed mid-flight; the payload has not been
		// consumed, so the sync path still owns delivery.
	}
	g.syncRuns.Add(1)
	return syncOp()
}

// runAsync executes asyncOp with panic containment. A panicking async
// path is treated as a failure so the fallback still delivers.
func (g *pipelineGuard) runAsync(asyncOp func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errAsyncPanic
		}
	}()
	if err = asyncOp(); err == nil {
		g.asyncRuns.Add(1)
	}
	return err
}

// Counts returns how many operations ran on each path.
func (g *pipelineGuard) Counts() (asyncRuns, syncRuns uint64) {
	return g.asyncRuns.Load(), g.syncRuns.Load()
}

type syncGuard struct {
	syncRuns atomic.Uint64
}

func (*syncGuard) Available() bool { return false }

func (g *syncGuard) Run(asyncOp, syncOp func() error) error {
	g.syncRuns.Add(1)
	return syncOp()
}

func (g *syncGuard) Counts() (asyncRuns, syncRuns uint64) {
	return 0, g.syncRuns.Load()
}
