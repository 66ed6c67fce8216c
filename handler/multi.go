package handler

import (
	"go.uber.org/multierr"

	"github.com/driftlog/driftlog/core"
	"github.com/driftlog/driftlog/monitor"
)

// MultiHandler fans a record out to multiple child handlers. Every
// child sees every record; one child failing does not stop the others.
type MultiHandler struct {
	handlers []Handler
	recycle  bool
}

// NewMultiHandler creates a multi-handler over children.
func NewMultiHandler(handlers ...Handler) *MultiHandler {
	m := &MultiHandler{
		handlers: handlers,
		recycle:  true,
	}
	for _, h := range handlers {
		rc, ok := h.(interface{ CanRecycleRecord() bool })
		if !ok || !rc.CanRecycleRecord() {
			m.recycle = false
		}
	}
	return m
}

// Handle sends the record to every child and combines their errors.
func (m *MultiHandler) Handle(record *core.Record) error {
	var err error
	for _, h := range m.handlers {
		err = multierr.Append(err, h.Handle(record))
	}
	return err
}

// CanRecycleRecord reports whether the caller may pool the record
// after Handle returns. True only when every child says so.
func (m *MultiHandler) CanRecycleRecord() bool {
	return m.recycle
}

// Close closes every child, continuing past failures and combining
// their errors.
func (m *MultiHandler) Close() error {
	var err error
	for _, h := range m.handlers {
		err = multierr.Append(err, h.Close())
	}
	return err
}

// Health merges the snapshots of children that report health. Counts
// are summed; AsyncAvailable and MemoryOK hold only when they hold
// for every reporting child.
func (m *MultiHandler) Health() monitor.HealthSnapshot {
	merged := monitor.HealthSnapshot{AsyncAvailable: true, MemoryOK: true}
	reporters := 0
	for _, h := range m.handlers {
		hr, ok := h.(HealthReporter)
		if !ok {
			continue
		}
		reporters++
		snap := hr.Health()
		merged.Dropped += snap.Dropped
		merged.OutstandingTasks += snap.OutstandingTasks
		merged.AsyncRuns += snap.AsyncRuns
		merged.SyncRuns += snap.SyncRuns
		merged.AsyncAvailable = merged.AsyncAvailable && snap.AsyncAvailable
		merged.MemoryOK = merged.MemoryOK && snap.MemoryOK
		if snap.Uptime > merged.Uptime {
			merged.Uptime = snap.Uptime
		}
		if snap.SampledAt.After(merged.SampledAt) {
			merged.SampledAt = snap.SampledAt
		}
		for category, n := range snap.Errors {
			if merged.Errors == nil {
				merged.Errors = make(map[string]uint64)
			}
			merged.Errors[category] += n
		}
	}
	if reporters == 0 {
		merged.AsyncAvailable = false
	}
	return merged
}
