package handler

import (
	"github.com/driftlog/driftlog/core"
	"github.com/driftlog/driftlog/monitor"
)

// Handler defines the interface for log handlers
type Handler interface {
	// Handle processes a log record
	Handle(record *core.Record) error

	// Close closes the handler and releases resources
	Close() error
}

// HealthReporter is an optional interface for handlers that expose a
// health snapshot of their delivery pipeline.
type HealthReporter interface {
	Health() monitor.HealthSnapshot
}

// ErrorReporter is an optional interface for handlers that track
// categorized delivery errors.
type ErrorReporter interface {
	ErrorStats() map[string]uint64
}
