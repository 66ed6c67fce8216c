package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/driftlog/driftlog/core"
	"github.com/driftlog/driftlog/formatter"
	"github.com/driftlog/driftlog/guard"
	"github.com/driftlog/driftlog/monitor"
	"github.com/driftlog/driftlog/queue"
	"github.com/driftlog/driftlog/shutdown"
	"github.com/driftlog/driftlog/sink"
	"github.com/driftlog/driftlog/task"
)

// Default pipeline tuning. Overridable per handler through Options.
const (
	defaultQueueCapacity = 1000
	defaultPutTimeout    = 100 * time.Millisecond
	defaultGetTimeout    = 500 * time.Millisecond
	defaultFlushInterval = time.Second
)

// Options configures a delivery pipeline. Sink is required; every
// other field has a working default.
type Options struct {
	// Name identifies the handler in diagnostics and task names.
	Name string
	// Sink receives the formatted payloads.
	Sink sink.Sink
	// Formatter renders records (default: text).
	Formatter formatter.Formatter

	// QueueCapacity bounds the async buffer (default 1000).
	QueueCapacity int
	// Policy decides what a full queue does (default DropOldest).
	Policy queue.Policy
	// PutTimeout bounds how long an emission may wait for queue space
	// under the Block policy (default 100ms).
	PutTimeout time.Duration
	// GetTimeout bounds the writer's wait for work between
	// housekeeping passes (default 500ms).
	GetTimeout time.Duration
	// FlushInterval is how often the writer flushes the sink when
	// entries keep arriving (default 1s).
	FlushInterval time.Duration

	// EnableMemoryMonitor routes emissions to the synchronous path
	// while process memory usage is above MemoryThreshold.
	EnableMemoryMonitor bool
	MemoryThreshold     float64
	MemoryCheckInterval time.Duration
	// MemorySampler overrides the default process sampler.
	MemorySampler monitor.Sampler

	// EnableErrorTracking keeps categorized delivery error counts and
	// a bounded history.
	EnableErrorTracking bool

	// EnableHealthMonitor serves cached health snapshots via Health.
	// Health works without it, just without caching.
	EnableHealthMonitor bool
	HealthTTL           time.Duration

	// FlushTimeout and CleanupTimeout bound the two shutdown phases
	// (default 5s each).
	FlushTimeout   time.Duration
	CleanupTimeout time.Duration

	// Log receives pipeline diagnostics. May be nil.
	Log *zap.Logger
}

// Pipeline is the asynchronous delivery engine behind a handler: a
// bounded queue between the emitting call sites and a single tracked
// writer task, with a synchronous fallback for every condition under
// which the async path cannot be trusted (memory pressure, full
// queue, dead writer, shutdown in progress). A record accepted by
// Handle is delivered on one of the two paths or counted as dropped;
// it is never silently lost.
type Pipeline struct {
	name string
	snk  sink.Sink
	fmtr formatter.Formatter
	log  *zap.Logger

	q       *queue.Queue
	tracker *task.Tracker
	grd     guard.Guard
	mem     *monitor.MemoryMonitor
	errs    *monitor.ErrorTracker
	health  *monitor.HealthMonitor
	mgr     *shutdown.Manager
	stats   *Stats

	putTimeout    time.Duration
	getTimeout    time.Duration
	flushInterval time.Duration

	writerOnce    sync.Once
	writerLive    atomic.Bool
	sinkCloseOnce sync.Once
	startedAt     time.Time
}

// NewPipeline builds a pipeline and opens its sink. A sink that fails
// to open is the one fatal construction error; everything after this
// point degrades instead of failing.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Sink == nil {
		return nil, errors.New("handler: nil sink")
	}
	if opts.Name == "" {
		opts.Name = "handler"
	}
	if opts.Formatter == nil {
		opts.Formatter = formatter.NewTextFormatter(formatter.Config{})
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = defaultQueueCapacity
	}
	if opts.PutTimeout <= 0 {
		opts.PutTimeout = defaultPutTimeout
	}
	if opts.GetTimeout <= 0 {
		opts.GetTimeout = defaultGetTimeout
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	if err := opts.Sink.Open(); err != nil {
		return nil, fmt.Errorf("handler %s: open sink: %w", opts.Name, err)
	}

	p := &Pipeline{
		name:          opts.Name,
		snk:           opts.Sink,
		fmtr:          opts.Formatter,
		log:           opts.Log,
		q:             queue.New(opts.QueueCapacity, opts.Policy),
		tracker:       task.New(opts.Log),
		stats:         NewStats(),
		putTimeout:    opts.PutTimeout,
		getTimeout:    opts.GetTimeout,
		flushInterval: opts.FlushInterval,
		startedAt:     time.Now(),
	}

	if opts.EnableErrorTracking {
		p.errs = monitor.NewErrors(opts.Log)
	}
	p.tracker.OnPanic(func(name string, recovered interface{}) {
		p.recordError(monitor.CategoryTaskPanic, fmt.Errorf("task %s: %v", name, recovered))
	})

	if opts.EnableMemoryMonitor {
		p.mem = monitor.NewMemory(monitor.MemoryConfig{
			Threshold:     opts.MemoryThreshold,
			CheckInterval: opts.MemoryCheckInterval,
			Sampler:       opts.MemorySampler,
			Log:           opts.Log,
		})
	}

	p.grd = guard.New(p.asyncUsable)
	p.mgr = shutdown.New(shutdown.Config{
		FlushTimeout:   opts.FlushTimeout,
		CleanupTimeout: opts.CleanupTimeout,
		Log:            opts.Log,
	}, shutdown.Hooks{
		Flush:   p.flushPending,
		Cleanup: p.cleanup,
	})

	if opts.EnableHealthMonitor {
		p.health = monitor.NewHealth(opts.HealthTTL, p.collectHealth)
	}

	return p, nil
}

// Name returns the handler name.
func (p *Pipeline) Name() string {
	return p.name
}

// Handle formats the record and delivers the payload, asynchronously
// when the pipeline is healthy, synchronously otherwise. It returns
// within the put timeout at worst and reports delivery problems
// through the error tracker rather than the return value: a logging
// call site has no better recovery than the pipeline's own fallback.
func (p *Pipeline) Handle(record *core.Record) error {
	payload := p.format(record)

	p.writerOnce.Do(p.startWriter)

	if p.mem != nil && !p.mem.Check() {
		p.syncDeliver(payload)
		return nil
	}

	return p.grd.Run(
		func() error {
			if err := p.q.Put(payload, p.putTimeout); err != nil {
				p.recordError(monitor.CategoryQueue, err)
				return err
			}
			return nil
		},
		func() error {
			p.syncDeliver(payload)
			return nil
		},
	)
}

// CanRecycleRecord reports that Handle copies everything it needs out
// of the record before returning, so the caller may pool it.
func (p *Pipeline) CanRecycleRecord() bool {
	return true
}

// format renders the record, falling back to the minimal plain-text
// payload when the configured formatter panics or errors.
func (p *Pipeline) format(record *core.Record) []byte {
	payload, err := p.tryFormat(record)
	if err == nil {
		return payload
	}
	p.recordError(monitor.CategoryFormat, err)
	p.stats.IncrementFormatFallbacks()
	return formatter.Fallback(record)
}

func (p *Pipeline) tryFormat(record *core.Record) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("formatter panic: %v", r)
		}
	}()
	return p.fmtr.Format(record)
}

func (p *Pipeline) recordError(category string, err error) {
	if p.errs != nil {
		p.errs.Record(category, err)
	}
}

// asyncUsable is the guard probe: the async path requires a live
// writer, an open queue, and no shutdown in progress.
func (p *Pipeline) asyncUsable() bool {
	return p.writerLive.Load() &&
		p.mgr.Phase() == shutdown.Running &&
		!p.q.Closed()
}

// startWriter launches the single writer task. writerLive is set
// before the goroutine exists so a probe between the two sees the
// writer as available; the worst case is one queued payload that the
// imminent writer picks up.
func (p *Pipeline) startWriter() {
	p.writerLive.Store(true)
	p.tracker.Go(p.name+"-writer", p.writerLoop)
}

// writerLoop is the single consumer of the queue. It drains in
// batches, flushes the sink on the configured interval, and exits on
// context cancellation or when shutdown leaves the Running phase,
// flushing whatever it already wrote on the way out.
func (p *Pipeline) writerLoop(ctx context.Context) {
	defer p.writerLive.Store(false)

	lastFlush := time.Now()
	for {
		if p.mgr.Phase() != shutdown.Running {
			p.flushSink()
			return
		}
		select {
		case <-ctx.Done():
			p.flushSink()
			return
		default:
		}

		e, ok := p.q.Get(p.getTimeout)
		if !ok {
			// Idle. Use the gap to make buffered bytes durable.
			if time.Since(lastFlush) >= p.flushInterval {
				p.flushSink()
				lastFlush = time.Now()
			}
			continue
		}
		p.writeEntry(e)
		for {
			e, ok := p.q.TryGet()
			if !ok {
				break
			}
			p.writeEntry(e)
		}
		if time.Since(lastFlush) >= p.flushInterval {
			p.flushSink()
			lastFlush = time.Now()
		}
	}
}

// syncDeliver writes the payload directly on the calling goroutine
// and flushes so the bytes are durable before the call site moves on.
func (p *Pipeline) syncDeliver(payload []byte) {
	if err := p.snk.Write(payload); err != nil {
		p.recordError(monitor.CategorySinkWrite, err)
		p.log.Warn("synchronous write failed",
			zap.String("handler", p.name),
			zap.Error(err))
		return
	}
	if err := p.snk.Flush(); err != nil {
		p.recordError(monitor.CategorySinkFlush, err)
	}
	p.stats.IncrementRecovered()
}

// writeEntry hands one queued payload to the sink.
func (p *Pipeline) writeEntry(e queue.Entry) {
	if err := p.snk.Write(e.Payload); err != nil {
		p.recordError(monitor.CategorySinkWrite, err)
		p.log.Warn("sink write failed",
			zap.String("handler", p.name),
			zap.Error(err))
		return
	}
	p.stats.IncrementWritten()
}

func (p *Pipeline) flushSink() {
	if err := p.snk.Flush(); err != nil {
		p.recordError(monitor.CategorySinkFlush, err)
	}
}

// flushPending is the Flushing-phase hook. It closes the queue to new
// puts and drains what is already buffered into the sink, counting
// anything the deadline or a write error leaves undelivered.
func (p *Pipeline) flushPending(timeout time.Duration) int {
	p.q.Close()
	deadline := time.Now().Add(timeout)

	// The writer keeps consuming until it observes the phase change.
	// Wait for it to exit so the drain below is the queue's only
	// consumer and entries reach the sink in order.
	for p.writerLive.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	undelivered := 0
	for {
		e, ok := p.q.TryGet()
		if !ok {
			break
		}
		if time.Now().After(deadline) {
			// Out of time. Keep draining so the loss is counted
			// exactly instead of estimated.
			undelivered++
			continue
		}
		if err := p.snk.Write(e.Payload); err != nil {
			p.recordError(monitor.CategorySinkWrite, err)
			undelivered++
			continue
		}
		p.stats.IncrementWritten()
	}
	p.flushSink()
	return undelivered
}

// cleanup is the Cleaning-phase hook: stop every tracked task, then
// release the sink. The sink is closed exactly once even when the
// normal and forced shutdown paths race.
func (p *Pipeline) cleanup(timeout time.Duration) (int, error) {
	report := p.tracker.Shutdown(timeout)
	if report.TimedOut {
		p.recordError(monitor.CategoryShutdownTimeout,
			fmt.Errorf("%d tasks still running: %s",
				len(report.Outstanding), strings.Join(report.Outstanding, ", ")))
	}

	// A producer that passed the queue's closed check before the flush
	// drain may have landed its entry afterward. Sweep the queue one
	// last time while the sink is still open.
	for _, e := range p.q.Drain() {
		if werr := p.snk.Write(e.Payload); werr != nil {
			p.recordError(monitor.CategorySinkWrite, werr)
			continue
		}
		p.stats.IncrementWritten()
	}
	p.flushSink()

	var err error
	p.sinkCloseOnce.Do(func() {
		err = p.snk.Close()
	})

	if p.health != nil {
		p.health.Invalidate()
	}
	return len(report.Outstanding), err
}

// Close runs the ordered shutdown sequence: flush the queue, stop the
// writer, release the sink. Idempotent; concurrent callers all
// observe the same outcome. The returned error is the sink release
// error; delivery shortfalls are logged and available via Result.
func (p *Pipeline) Close() error {
	res := p.mgr.Shutdown()
	return res.Err
}

// Result returns the outcome of shutdown. Zero before Close.
func (p *Pipeline) Result() shutdown.Result {
	if p.mgr.Phase() != shutdown.Done {
		return shutdown.Result{}
	}
	return p.mgr.Shutdown()
}

// ForceClose skips the flush phase and releases resources on the
// calling goroutine. Queued entries get one best-effort sweep into
// the sink during cleanup; use Close unless the normal path is known
// to be wedged.
func (p *Pipeline) ForceClose() error {
	p.q.Close()
	return p.mgr.ForceSyncShutdown()
}

// Flush forces buffered sink data out without touching the queue.
func (p *Pipeline) Flush() error {
	return p.snk.Flush()
}

// Health returns the pipeline's health snapshot, cached when the
// health monitor is enabled.
func (p *Pipeline) Health() monitor.HealthSnapshot {
	if p.health != nil {
		return p.health.Status()
	}
	snap := p.collectHealth()
	snap.SampledAt = time.Now()
	return snap
}

func (p *Pipeline) collectHealth() monitor.HealthSnapshot {
	qs := p.q.Stats()
	asyncRuns, syncRuns := p.grd.Counts()
	snap := monitor.HealthSnapshot{
		Queue:            qs,
		Dropped:          qs.Drops,
		OutstandingTasks: p.tracker.Outstanding(),
		AsyncRuns:        asyncRuns,
		SyncRuns:         syncRuns,
		AsyncAvailable:   p.grd.Available(),
		MemoryOK:         true,
		Phase:            p.mgr.Phase().String(),
		Uptime:           time.Since(p.startedAt),
	}
	if p.mem != nil {
		snap.MemoryOK = p.mem.Check()
	}
	if p.errs != nil {
		snap.Errors = p.errs.Stats()
	}
	return snap
}

// HealthMonitor exposes the snapshot cache, e.g. for registering a
// monitor.HealthCollector. Nil when the health monitor is disabled.
func (p *Pipeline) HealthMonitor() *monitor.HealthMonitor {
	return p.health
}

// ErrorStats returns the per-category delivery error counts. Nil when
// error tracking is disabled.
func (p *Pipeline) ErrorStats() map[string]uint64 {
	if p.errs == nil {
		return nil
	}
	return p.errs.Stats()
}

// Errors exposes the error tracker for subscription. Nil when error
// tracking is disabled.
func (p *Pipeline) Errors() *monitor.ErrorTracker {
	return p.errs
}

// Stats returns the delivery counters combined with the queue's.
func (p *Pipeline) Stats() Snapshot {
	return p.stats.GetSnapshot(p.q.Stats())
}

// Phase returns the current shutdown phase.
func (p *Pipeline) Phase() shutdown.Phase {
	return p.mgr.Phase()
}
