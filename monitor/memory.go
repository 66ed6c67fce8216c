package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"
)

// MemoryStats describes one memory sample.
type MemoryStats struct {
	// UsedBytes is the process resident set size (or heap allocation
	// when /proc is unavailable).
	UsedBytes uint64
	// TotalBytes is the system memory total (or heap reserved bytes
	// when /proc is unavailable).
	TotalBytes uint64
	// UsedFraction is UsedBytes / TotalBytes.
	UsedFraction float64
	SampledAt    time.Time
}

// Sampler produces a memory sample. Replaceable in tests.
type Sampler func() (MemoryStats, error)

// MemoryConfig configures a MemoryMonitor.
type MemoryConfig struct {
	// Threshold is the used fraction above which Check reports
	// pressure (default 0.70).
	Threshold float64
	// CheckInterval is how long a sample is cached (default 5s).
	CheckInterval time.Duration
	// Sampler overrides the default /proc-backed sampler.
	Sampler Sampler
	// Log receives the threshold crossing warnings. May be nil.
	Log *zap.Logger
}

// MemoryMonitor advises the emission path about process memory
// pressure. Sampling is cached so consulting the monitor on every
// emission stays cheap. Threshold crossings are logged edge-triggered:
// one warning when usage rises above the threshold, one notice when it
// falls back below, nothing in between.
type MemoryMonitor struct {
	threshold float64
	interval  time.Duration
	sampler   Sampler
	log       *zap.Logger

	mu        sync.Mutex
	last      MemoryStats
	checkedAt time.Time
	ok        bool
	warned    bool
}

// NewMemory creates a memory monitor.
func NewMemory(cfg MemoryConfig) *MemoryMonitor {
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		cfg.Threshold = 0.70
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.Sampler == nil {
		cfg.Sampler = defaultSampler
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	return &MemoryMonitor{
		threshold: cfg.Threshold,
		interval:  cfg.CheckInterval,
		sampler:   cfg.Sampler,
		log:       cfg.Log,
		ok:        true,
	}
}

// Check reports whether memory usage is acceptable. A false return is
// the signal to bypass the queue and write synchronously. The result
// is cached for the configured interval.
func (m *MemoryMonitor) Check() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !m.checkedAt.IsZero() && now.Sub(m.checkedAt) < m.interval {
		return m.ok
	}
	m.checkedAt = now

	stats, err := m.sampler()
	if err != nil {
		// A failing sampler must not degrade logging; assume OK.
		m.ok = true
		return true
	}
	m.last = stats

	exceeded := stats.UsedFraction >= m.threshold
	if exceeded && !m.warned {
		m.warned = true
		m.log.Warn("memory usage above threshold, log emission degrading to synchronous writes",
			zap.Float64("used_fraction", stats.UsedFraction),
			zap.Float64("threshold", m.threshold),
			zap.Uint64("used_bytes", stats.UsedBytes))
	} else if !exceeded && m.warned {
		m.warned = false
		m.log.Info("memory usage back below threshold",
			zap.Float64("used_fraction", stats.UsedFraction),
			zap.Float64("threshold", m.threshold))
	}

	m.ok = !exceeded
	return m.ok
}

// Stats returns the most recent sample. It triggers a sample when none
// has been taken yet.
func (m *MemoryMonitor) Stats() MemoryStats {
	m.mu.Lock()
	if !m.last.SampledAt.IsZero() {
		defer m.mu.Unlock()
		return m.last
	}
	m.mu.Unlock()

	m.Check()

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// defaultSampler reads process RSS and system memory total from /proc,
// falling back to runtime heap statistics where /proc is unavailable
// (non-Linux platforms, restricted containers).
func defaultSampler() (MemoryStats, error) {
	if stats, err := procSampler(); err == nil {
		return stats, nil
	}
	return runtimeSampler()
}

func procSampler() (MemoryStats, error) {
	proc, err := procfs.Self()
	if err != nil {
		return MemoryStats{}, err
	}
	stat, err := proc.Stat()
	if err != nil {
		return MemoryStats{}, err
	}

	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return MemoryStats{}, err
	}
	meminfo, err := fs.Meminfo()
	if err != nil {
		return MemoryStats{}, err
	}

	used := uint64(stat.ResidentMemory())
	var total uint64
	if meminfo.MemTotal != nil {
		total = *meminfo.MemTotal * 1024
	}
	return newStats(used, total), nil
}

func runtimeSampler() (MemoryStats, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return newStats(ms.HeapAlloc, ms.Sys), nil
}

func newStats(used, total uint64) MemoryStats {
	s := MemoryStats{
		UsedBytes:  used,
		TotalBytes: total,
		SampledAt:  time.Now(),
	}
	if total > 0 {
		s.UsedFraction = float64(used) / float64(total)
	}
	return s
}
