package handler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftlog/driftlog/core"
	"github.com/driftlog/driftlog/monitor"
)

// stubHandler records calls and can fail on demand.
type stubHandler struct {
	handled   int
	closed    bool
	handleErr error
	closeErr  error
	recycle   bool
}

func (s *stubHandler) Handle(*core.Record) error {
	s.handled++
	return s.handleErr
}

func (s *stubHandler) Close() error {
	s.closed = true
	return s.closeErr
}

func (s *stubHandler) CanRecycleRecord() bool { return s.recycle }

func TestMultiHandlerFansOut(t *testing.T) {
	a := &stubHandler{recycle: true}
	b := &stubHandler{recycle: true}
	m := NewMultiHandler(a, b)

	require.NoError(t, m.Handle(rec("fan out")))
	assert.Equal(t, 1, a.handled)
	assert.Equal(t, 1, b.handled)
}

func TestMultiHandlerContinuesPastFailure(t *testing.T) {
	a := &stubHandler{handleErr: errors.New("a broken")}
	b := &stubHandler{}
	m := NewMultiHandler(a, b)

	err := m.Handle(rec("keep going"))
	require.Error(t, err)
	assert.Equal(t, 1, b.handled, "failure in one child must not starve the others")
}

func TestMultiHandlerCloseAll(t *testing.T) {
	a := &stubHandler{closeErr: errors.New("a close")}
	b := &stubHandler{}
	m := NewMultiHandler(a, b)

	err := m.Close()
	require.Error(t, err)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestMultiHandlerRecycle(t *testing.T) {
	assert.True(t, NewMultiHandler(&stubHandler{recycle: true}).CanRecycleRecord())
	assert.False(t, NewMultiHandler(
		&stubHandler{recycle: true},
		&stubHandler{recycle: false},
	).CanRecycleRecord())
}

// healthStub is a stubHandler that also reports health.
type healthStub struct {
	stubHandler
	snap monitor.HealthSnapshot
}

func (h *healthStub) Health() monitor.HealthSnapshot { return h.snap }

func TestMultiHandlerHealthMerge(t *testing.T) {
	a := &healthStub{snap: monitor.HealthSnapshot{
		Dropped:        3,
		AsyncRuns:      10,
		SyncRuns:       1,
		AsyncAvailable: true,
		MemoryOK:       true,
		Errors:         map[string]uint64{monitor.CategorySinkWrite: 2},
	}}
	b := &healthStub{snap: monitor.HealthSnapshot{
		Dropped:        4,
		AsyncRuns:      5,
		SyncRuns:       2,
		AsyncAvailable: false,
		MemoryOK:       true,
		Errors:         map[string]uint64{monitor.CategorySinkWrite: 1},
	}}
	m := NewMultiHandler(a, b, &stubHandler{})

	merged := m.Health()
	assert.Equal(t, uint64(7), merged.Dropped)
	assert.Equal(t, uint64(15), merged.AsyncRuns)
	assert.Equal(t, uint64(3), merged.SyncRuns)
	assert.False(t, merged.AsyncAvailable)
	assert.True(t, merged.MemoryOK)
	assert.Equal(t, uint64(3), merged.Errors[monitor.CategorySinkWrite])
}

func TestMultiHandlerHealthNoReporters(t *testing.T) {
	m := NewMultiHandler(&stubHandler{})
	assert.False(t, m.Health().AsyncAvailable)
}
