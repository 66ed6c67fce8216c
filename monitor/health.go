package monitor

import (
	"sync"
	"time"

	"github.com/driftlog/driftlog/queue"
)

// HealthSnapshot is a read-only composite view of one handler's
// delivery pipeline.
type HealthSnapshot struct {
	Queue            queue.Stats
	Dropped          uint64
	OutstandingTasks int
	AsyncRuns        uint64
	SyncRuns         uint64
	AsyncAvailable   bool
	MemoryOK         bool
	Errors           map[string]uint64
	Phase            string
	Uptime           time.Duration
	SampledAt        time.Time
}

// Collect assembles a fresh snapshot. The handler wires one up from
// its queue, tracker, guard, memory monitor, and shutdown manager.
type Collect func() HealthSnapshot

// defaultHealthTTL bounds how often a snapshot is recomputed so that
// frequent polling does not become a cost of its own.
const defaultHealthTTL = time.Second

// HealthMonitor serves cached health snapshots.
type HealthMonitor struct {
	ttl     time.Duration
	collect Collect

	mu       sync.Mutex
	cached   HealthSnapshot
	cachedAt time.Time
}

// NewHealth creates a health monitor around collect. A ttl <= 0 uses
// the one-second default.
func NewHealth(ttl time.Duration, collect Collect) *HealthMonitor {
	if ttl <= 0 {
		ttl = defaultHealthTTL
	}
	return &HealthMonitor{ttl: ttl, collect: collect}
}

// Status returns the current snapshot, recomputing it at most once per
// ttl.
func (h *HealthMonitor) Status() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	if !h.cachedAt.IsZero() && now.Sub(h.cachedAt) < h.ttl {
		return h.cached
	}

	h.cached = h.collect()
	h.cached.SampledAt = now
	h.cachedAt = now
	return h.cached
}

// Invalidate drops the cached snapshot so the next Status call
// recomputes. Used when the pipeline changes state abruptly, e.g. at
// shutdown.
func (h *HealthMonitor) Invalidate() {
	h.mu.Lock()
	h.cachedAt = time.Time{}
	h.mu.Unlock()
}
