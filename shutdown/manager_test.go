package shutdown

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_PhaseSequence(t *testing.T) {
	var phases []Phase
	var m *Manager

	m = New(Config{}, Hooks{
		Flush: func(time.Duration) int {
			phases = append(phases, m.Phase())
			return 0
		},
		Cleanup: func(time.Duration) (int, error) {
			phases = append(phases, m.Phase())
			return 0, nil
		},
	})

	assert.Equal(t, Running, m.Phase())
	res := m.Shutdown()

	assert.Equal(t, []Phase{Flushing, Cleaning}, phases)
	assert.Equal(t, Done, m.Phase())
	assert.Zero(t, res.Undelivered)
	assert.Zero(t, res.UnstoppedTasks)
	assert.NoError(t, res.Err)
}

func TestManager_Idempotent(t *testing.T) {
	var flushes, cleanups atomic.Int32
	m := New(Config{}, Hooks{
		Flush:   func(time.Duration) int { flushes.Add(1); return 0 },
		Cleanup: func(time.Duration) (int, error) { cleanups.Add(1); return 0, nil },
	})

	m.Shutdown()

	start := time.Now()
	m.Shutdown()
	assert.Less(t, time.Since(start), 100*time.Millisecond, "second Shutdown must return immediately")

	assert.Equal(t, int32(1), flushes.Load(), "flush must not run twice")
	assert.Equal(t, int32(1), cleanups.Load(), "cleanup must not run twice")
}

func TestManager_ConcurrentShutdown(t *testing.T) {
	var cleanups atomic.Int32
	m := New(Config{}, Hooks{
		Flush: func(time.Duration) int {
			time.Sleep(20 * time.Millisecond)
			return 0
		},
		Cleanup: func(time.Duration) (int, error) { cleanups.Add(1); return 0, nil },
	})

	var wg sync.WaitGroup
	results := make([]Result, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Shutdown()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), cleanups.Load())
	for _, r := range results {
		assert.Equal(t, Result{}, r, "every caller sees the same result")
	}
	assert.Equal(t, Done, m.Phase())
}

func TestManager_StuckFlushDoesNotHang(t *testing.T) {
	release := make(chan struct{})
	m := New(Config{FlushTimeout: 50 * time.Millisecond, CleanupTimeout: 50 * time.Millisecond}, Hooks{
		Flush: func(time.Duration) int {
			<-release // ignores its timeout entirely
			return 0
		},
		Cleanup: func(time.Duration) (int, error) { return 0, nil },
	})

	start := time.Now()
	res := m.Shutdown()
	elapsed := time.Since(start)

	assert.True(t, res.FlushTimedOut)
	assert.Equal(t, -1, res.Undelivered, "loss from an unresponsive flush is reported as unknown")
	assert.Less(t, elapsed, 500*time.Millisecond, "shutdown must terminate despite a stuck hook")
	assert.Equal(t, Done, m.Phase())

	close(release)
}

func TestManager_ReportsUndelivered(t *testing.T) {
	m := New(Config{}, Hooks{
		Flush:   func(time.Duration) int { return 3 },
		Cleanup: func(time.Duration) (int, error) { return 1, nil },
	})

	res := m.Shutdown()
	assert.Equal(t, 3, res.Undelivered)
	assert.Equal(t, 1, res.UnstoppedTasks)
}

func TestManager_ForceSyncShutdown(t *testing.T) {
	var cleanups atomic.Int32
	m := New(Config{}, Hooks{
		Flush:   func(time.Duration) int { t.Error("flush must not run on the forced path"); return 0 },
		Cleanup: func(time.Duration) (int, error) { cleanups.Add(1); return 0, nil },
	})

	require.NoError(t, m.ForceSyncShutdown())
	assert.Equal(t, Done, m.Phase())
	assert.Equal(t, int32(1), cleanups.Load())

	// A later Shutdown is a no-op returning the same state
	m.Shutdown()
	assert.Equal(t, int32(1), cleanups.Load(), "cleanup runs at most once across both paths")
}

func TestManager_ForceAfterShutdown(t *testing.T) {
	var cleanups atomic.Int32
	m := New(Config{}, Hooks{
		Cleanup: func(time.Duration) (int, error) { cleanups.Add(1); return 0, nil },
	})

	m.Shutdown()
	require.NoError(t, m.ForceSyncShutdown())
	assert.Equal(t, int32(1), cleanups.Load())
}

func TestManager_ForceRacingShutdown(t *testing.T) {
	// Hammer both entry points on fresh managers. Whoever loses the
	// phase race must wait for the winner's result instead of reading
	// it early, cleanup must run exactly once, and the phase must
	// never move backward.
	for i := 0; i < 200; i++ {
		var cleanups atomic.Int32
		m := New(Config{}, Hooks{
			Flush:   func(time.Duration) int { return 0 },
			Cleanup: func(time.Duration) (int, error) { cleanups.Add(1); return 0, nil },
		})

		stop := make(chan struct{})
		watcher := make(chan Phase, 1)
		go func() {
			last := Running
			for {
				p := m.Phase()
				if p < last {
					watcher <- p
					return
				}
				last = p
				select {
				case <-stop:
					watcher <- last
					return
				default:
				}
			}
		}()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); m.Shutdown() }()
		go func() { defer wg.Done(); _ = m.ForceSyncShutdown() }()
		wg.Wait()

		close(stop)
		require.Equal(t, Done, <-watcher, "phase regressed or never reached Done")
		assert.Equal(t, Done, m.Phase())
		assert.Equal(t, int32(1), cleanups.Load())
	}
}

func TestManager_ForceWhileCleaningWaitsForResult(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	m := New(Config{}, Hooks{
		Cleanup: func(time.Duration) (int, error) {
			close(entered)
			<-release
			return 0, nil
		},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); m.Shutdown() }()
	<-entered

	done := make(chan error, 1)
	go func() { done <- m.ForceSyncShutdown() }()

	select {
	case <-done:
		t.Fatal("forced path returned before cleanup finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	wg.Wait()
	require.NoError(t, <-done)
	assert.Equal(t, Done, m.Phase())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "Running", Running.String())
	assert.Equal(t, "Flushing", Flushing.String())
	assert.Equal(t, "Cleaning", Cleaning.String())
	assert.Equal(t, "Done", Done.String())
}
