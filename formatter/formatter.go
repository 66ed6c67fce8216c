package formatter

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/driftlog/driftlog/core"
)

// Formatter turns a Record into a writable payload. Formatters are
// pure: no I/O, and any failure stays inside the formatting layer —
// the engine converts a panicking formatter into a fallback plain-text
// payload rather than losing the record.
type Formatter interface {
	// Format formats a log record into bytes
	Format(record *core.Record) ([]byte, error)
}

// BufferFormatter is an optional interface that formatters can
// implement to format directly into a caller-provided buffer, avoiding
// internal buffer pool overhead.
type BufferFormatter interface {
	// FormatRecord formats a log record into the given buffer.
	FormatRecord(record *core.Record, buf *bytes.Buffer)
}

// Config holds common formatter configuration
type Config struct {
	// IncludeCaller enables caller information in log output
	IncludeCaller bool
	// TimestampFormat specifies the time format (empty for RFC3339)
	TimestampFormat string
}

// bufferPool is a pool of bytes.Buffer to reduce allocations
var bufferPool = &sync.Pool{
	New: func() interface{} {
		b := new(bytes.Buffer)
		b.Grow(256)
		return b
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 64*1024 { // Don't keep very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Safe wraps f so that a panic or error during formatting yields a
// minimal plain-text payload instead of propagating. The engine
// formats every record through this function: a broken formatter
// degrades output quality, never delivery.
func Safe(f Formatter, record *core.Record) (payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			payload = Fallback(record)
		}
	}()

	payload, err := f.Format(record)
	if err != nil {
		return Fallback(record)
	}
	return payload
}

// Fallback renders the parts of the record that cannot fail. It is
// the payload of last resort when the configured formatter panics or
// errors.
func Fallback(record *core.Record) []byte {
	return []byte(fmt.Sprintf("%s [%s] %s\n",
		record.Time.Format("2006-01-02T15:04:05Z07:00"),
		record.Level.String(),
		record.Message))
}
