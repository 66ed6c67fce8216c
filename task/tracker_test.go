package task

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_CompletionUnregisters(t *testing.T) {
	tr := New(nil)

	h := tr.Go("quick", func(ctx context.Context) {})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("task never completed")
	}

	// Removal happens before done closes
	assert.Equal(t, 0, tr.Outstanding())
}

func TestTracker_ShutdownWaitsForTasks(t *testing.T) {
	tr := New(nil)

	var finished atomic.Bool
	tr.Go("worker", func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	report := tr.Shutdown(time.Second)
	assert.True(t, finished.Load())
	assert.False(t, report.TimedOut)
	assert.Equal(t, 1, report.Completed)
	assert.Empty(t, report.Outstanding)
	assert.Equal(t, 0, tr.Outstanding())
}

func TestTracker_ShutdownReportsStuckTask(t *testing.T) {
	tr := New(nil)

	release := make(chan struct{})
	tr.Go("stuck", func(ctx context.Context) {
		<-release // ignores cancellation
	})

	start := time.Now()
	report := tr.Shutdown(50 * time.Millisecond)
	elapsed := time.Since(start)

	assert.True(t, report.TimedOut)
	assert.Equal(t, []string{"stuck"}, report.Outstanding)
	assert.Less(t, elapsed, 500*time.Millisecond, "Shutdown must not hang on a stuck task")

	close(release)
}

func TestTracker_PanicRecovered(t *testing.T) {
	tr := New(nil)

	var gotName string
	var gotValue interface{}
	tr.OnPanic(func(name string, recovered interface{}) {
		gotName = name
		gotValue = recovered
	})

	h := tr.Go("exploder", func(ctx context.Context) {
		panic("boom")
	})

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("panicking task never finished")
	}

	assert.Equal(t, "exploder", gotName)
	assert.Equal(t, "boom", gotValue)
	assert.Equal(t, 0, tr.Outstanding())
}

func TestTracker_GoAfterShutdown(t *testing.T) {
	tr := New(nil)
	tr.Shutdown(time.Second)

	ran := make(chan struct{})
	tr.Go("late", func(ctx context.Context) {
		// Context is already cancelled; exit immediately
		<-ctx.Done()
		close(ran)
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("late task did not observe cancelled context")
	}
}

func TestTracker_Names(t *testing.T) {
	tr := New(nil)

	block := make(chan struct{})
	tr.Go("b-task", func(ctx context.Context) { <-block })
	tr.Go("a-task", func(ctx context.Context) { <-block })

	require.Eventually(t, func() bool { return tr.Outstanding() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a-task", "b-task"}, tr.Names())

	close(block)
	tr.Shutdown(time.Second)
}

func TestTracker_ShutdownIdempotent(t *testing.T) {
	tr := New(nil)
	tr.Go("w", func(ctx context.Context) { <-ctx.Done() })

	r1 := tr.Shutdown(time.Second)
	r2 := tr.Shutdown(time.Second)

	assert.False(t, r1.TimedOut)
	assert.False(t, r2.TimedOut)
	assert.Empty(t, r2.Outstanding)
}
