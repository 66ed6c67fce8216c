package logger

import (
	"fmt"
	"os"

	"github.com/driftlog/driftlog/core"
	"github.com/driftlog/driftlog/handler"
	"github.com/driftlog/driftlog/monitor"
)

// osExit is a variable to allow overriding os.Exit in tests
var osExit = os.Exit

// Logger is the main logging interface (immutable)
type Logger struct {
	handler       handler.Handler
	level         core.Level
	name          string
	layer         string
	fields        []core.Field
	includeCaller bool
	callerSkip    int
	recycleRecord bool
	coarseTime    bool
}

// Builder provides a fluent API for building Logger instances
type Builder struct {
	handler       handler.Handler
	level         core.Level
	name          string
	layer         string
	fields        []core.Field
	includeCaller bool
	callerSkip    int
	recycleRecord bool
	coarseTime    bool
}

// NewBuilder creates a new logger builder
func NewBuilder() *Builder {
	return &Builder{
		level:      core.InfoLevel, // Default level
		callerSkip: 3,              // Default skip for GetCaller
	}
}

// WithHandler sets the handler
func (b *Builder) WithHandler(h handler.Handler) *Builder {
	b.handler = h
	// Pre-compute recycleRecord to avoid the interface assertion on
	// every log call
	if rc, ok := h.(interface{ CanRecycleRecord() bool }); ok {
		b.recycleRecord = rc.CanRecycleRecord()
	} else {
		b.recycleRecord = false
	}
	return b
}

// WithLevel sets the log level
func (b *Builder) WithLevel(level core.Level) *Builder {
	b.level = level
	return b
}

// WithName sets the logger name carried on every record.
func (b *Builder) WithName(name string) *Builder {
	b.name = name
	return b
}

// WithLayer sets the application layer tag carried on every record.
func (b *Builder) WithLayer(layer string) *Builder {
	b.layer = layer
	return b
}

// WithFields adds default fields to all log records
func (b *Builder) WithFields(fields ...core.Field) *Builder {
	b.fields = append(b.fields, fields...)
	return b
}

// WithCaller enables caller information
func (b *Builder) WithCaller(enabled bool) *Builder {
	b.includeCaller = enabled
	return b
}

// WithCoarseClock stamps records from the shared 500µs-resolution
// cached clock instead of calling time.Now() per record. Worth it
// only on very hot logging paths.
func (b *Builder) WithCoarseClock(enabled bool) *Builder {
	b.coarseTime = enabled
	if enabled {
		core.StartCoarseClock()
	}
	return b
}

// Build creates the Logger instance
func (b *Builder) Build() *Logger {
	return &Logger{
		handler:       b.handler,
		level:         b.level,
		name:          b.name,
		layer:         b.layer,
		fields:        b.fields,
		includeCaller: b.includeCaller,
		callerSkip:    b.callerSkip,
		recycleRecord: b.recycleRecord,
		coarseTime:    b.coarseTime,
	}
}

// With creates a new Logger with additional fields (immutable operation)
func (l *Logger) With(fields ...core.Field) *Logger {
	newFields := make([]core.Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)

	clone := *l
	clone.fields = newFields
	return &clone
}

// Named returns a logger whose records carry name, joined to the
// current name with a dot.
func (l *Logger) Named(name string) *Logger {
	clone := *l
	if l.name != "" {
		clone.name = l.name + "." + name
	} else {
		clone.name = name
	}
	return &clone
}

// Layer returns a logger whose records carry the given layer tag.
func (l *Logger) Layer(layer string) *Logger {
	clone := *l
	clone.layer = layer
	return &clone
}

// Log logs a message at the specified level
func (l *Logger) Log(level core.Level, msg string, fields ...core.Field) {
	// Level check - exit early BEFORE any allocations
	if level < l.level {
		return
	}

	l.log(level, msg, fields)
}

// log is the internal logging method that takes a pre-allocated slice
func (l *Logger) log(level core.Level, msg string, fields []core.Field) {
	if l.handler == nil {
		return
	}

	// Get record from pool AFTER the level check
	record := core.GetRecord()
	if l.coarseTime {
		record.Time = core.CoarseNow()
	}
	record.Level = level
	record.Message = msg
	record.LoggerName = l.name
	record.Layer = l.layer

	if len(l.fields) > 0 {
		record.Fields = append(record.Fields, l.fields...)
	}
	if len(fields) > 0 {
		record.Fields = append(record.Fields, fields...)
	}

	if l.includeCaller {
		record.Caller = core.GetCaller(l.callerSkip)
	}

	_ = l.handler.Handle(record)

	// Return record to pool if the handler is done with it. The
	// recycle contract holds on the error path too: by the time Handle
	// returns, the handler has copied everything it needs.
	if l.recycleRecord {
		core.PutRecord(record)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...core.Field) {
	if core.DebugLevel < l.level {
		return
	}
	l.log(core.DebugLevel, msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...core.Field) {
	if core.InfoLevel < l.level {
		return
	}
	l.log(core.InfoLevel, msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...core.Field) {
	if core.WarnLevel < l.level {
		return
	}
	l.log(core.WarnLevel, msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...core.Field) {
	if core.ErrorLevel < l.level {
		return
	}
	l.log(core.ErrorLevel, msg, fields)
}

// Fatal logs a fatal message, drains the handler, and exits the
// program with os.Exit(1)
func (l *Logger) Fatal(msg string, fields ...core.Field) {
	l.log(core.FatalLevel, msg, fields)
	l.drain()
	osExit(1)
}

// Panic logs a panic message, drains the handler, and panics
func (l *Logger) Panic(msg string, fields ...core.Field) {
	l.log(core.PanicLevel, msg, fields)
	l.drain()
	panic(msg)
}

// Debugf logs a debug message with formatting
func (l *Logger) Debugf(format string, args ...interface{}) {
	if core.DebugLevel < l.level {
		return
	}
	l.log(core.DebugLevel, fmt.Sprintf(format, args...), nil)
}

// Infof logs an info message with formatting
func (l *Logger) Infof(format string, args ...interface{}) {
	if core.InfoLevel < l.level {
		return
	}
	l.log(core.InfoLevel, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a warning message with formatting
func (l *Logger) Warnf(format string, args ...interface{}) {
	if core.WarnLevel < l.level {
		return
	}
	l.log(core.WarnLevel, fmt.Sprintf(format, args...), nil)
}

// Errorf logs an error message with formatting
func (l *Logger) Errorf(format string, args ...interface{}) {
	if core.ErrorLevel < l.level {
		return
	}
	l.log(core.ErrorLevel, fmt.Sprintf(format, args...), nil)
}

// Fatalf logs a fatal message with formatting and exits the program
// with os.Exit(1)
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.log(core.FatalLevel, fmt.Sprintf(format, args...), nil)
	l.drain()
	osExit(1)
}

// Panicf logs a panic message with formatting and panics
func (l *Logger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.log(core.PanicLevel, msg, nil)
	l.drain()
	panic(msg)
}

// drain closes the handler so a queued fatal record is not lost to
// os.Exit before the writer delivers it.
func (l *Logger) drain() {
	if l.handler != nil {
		_ = l.handler.Close()
	}
}

// Health returns the delivery health snapshot of the underlying
// handler. Handlers that do not report health yield the zero
// snapshot.
func (l *Logger) Health() monitor.HealthSnapshot {
	if hr, ok := l.handler.(handler.HealthReporter); ok {
		return hr.Health()
	}
	return monitor.HealthSnapshot{}
}

// ErrorStats returns the handler's categorized delivery error counts,
// or nil when the handler does not track errors.
func (l *Logger) ErrorStats() map[string]uint64 {
	if er, ok := l.handler.(handler.ErrorReporter); ok {
		return er.ErrorStats()
	}
	return nil
}

// Close closes the logger's handler
func (l *Logger) Close() error {
	if l.handler != nil {
		return l.handler.Close()
	}
	return nil
}
