package monitor

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTracker_CountsByCategory(t *testing.T) {
	tr := NewErrors(nil)

	tr.Record(CategorySinkWrite, errors.New("disk full"))
	tr.Record(CategorySinkWrite, errors.New("disk still full"))
	tr.Record(CategoryTaskPanic, errors.New("boom"))

	stats := tr.Stats()
	assert.Equal(t, uint64(2), stats[CategorySinkWrite])
	assert.Equal(t, uint64(1), stats[CategoryTaskPanic])
	assert.Equal(t, uint64(3), tr.Total())
}

func TestErrorTracker_NilError(t *testing.T) {
	tr := NewErrors(nil)

	tr.Record(CategoryQueue, nil)

	assert.Equal(t, uint64(1), tr.Stats()[CategoryQueue])
	hist := tr.History()
	require.Len(t, hist, 1)
	assert.Empty(t, hist[0].Message)
}

func TestErrorTracker_Observers(t *testing.T) {
	tr := NewErrors(nil)

	var got []ErrorRecord
	tr.Subscribe(func(rec ErrorRecord) {
		got = append(got, rec)
	})

	tr.Record(CategoryFormat, errors.New("bad payload"))

	require.Len(t, got, 1)
	assert.Equal(t, CategoryFormat, got[0].Category)
	assert.Equal(t, "bad payload", got[0].Message)
}

func TestErrorTracker_PanickingObserverDoesNotStopOthers(t *testing.T) {
	tr := NewErrors(nil)

	var secondRan bool
	tr.Subscribe(func(ErrorRecord) { panic("bad observer") })
	tr.Subscribe(func(ErrorRecord) { secondRan = true })

	tr.Record(CategorySinkWrite, errors.New("x"))

	assert.True(t, secondRan, "a failing observer must not prevent others from running")
	assert.Equal(t, uint64(1), tr.Stats()[CategorySinkWrite], "error must be counted despite observer panic")
}

func TestErrorTracker_NilSubscriber(t *testing.T) {
	tr := NewErrors(nil)
	tr.Subscribe(nil) // must not panic
	tr.Record(CategoryQueue, nil)
}

func TestErrorTracker_HistoryOrder(t *testing.T) {
	tr := NewErrors(nil)

	for i := 0; i < 3; i++ {
		tr.Record(CategoryQueue, fmt.Errorf("err-%d", i))
	}

	hist := tr.History()
	require.Len(t, hist, 3)
	assert.Equal(t, "err-0", hist[0].Message)
	assert.Equal(t, "err-2", hist[2].Message)
}

func TestErrorTracker_HistoryBounded(t *testing.T) {
	tr := NewErrors(nil)

	total := defaultHistorySize + 10
	for i := 0; i < total; i++ {
		tr.Record(CategoryQueue, fmt.Errorf("err-%d", i))
	}

	hist := tr.History()
	require.Len(t, hist, defaultHistorySize)
	// Oldest retained record is the one right after the overwritten span
	assert.Equal(t, "err-10", hist[0].Message)
	assert.Equal(t, fmt.Sprintf("err-%d", total-1), hist[len(hist)-1].Message)
	// Counts are not bounded by the history
	assert.Equal(t, uint64(total), tr.Total())
}
