package formatter

import (
	"bytes"
	"strconv"
	"time"

	"github.com/driftlog/driftlog/core"
)

// TextFormatter formats log records as human-readable text
type TextFormatter struct {
	Config
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(cfg Config) *TextFormatter {
	if cfg.TimestampFormat == "" {
		cfg.TimestampFormat = time.RFC3339
	}
	return &TextFormatter{Config: cfg}
}

// Format formats a record as text
func (f *TextFormatter) Format(record *core.Record) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	f.formatToBuffer(record, buf)

	// Copy buffer content to return
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

// FormatRecord formats a record into the given buffer (implements BufferFormatter).
func (f *TextFormatter) FormatRecord(record *core.Record, buf *bytes.Buffer) {
	f.formatToBuffer(record, buf)
}

// pre-formatted level strings to avoid multiple WriteString calls
var levelBrackets = [...]string{
	core.DebugLevel: " [DEBUG] ",
	core.InfoLevel:  " [INFO] ",
	core.WarnLevel:  " [WARN] ",
	core.ErrorLevel: " [ERROR] ",
	core.FatalLevel: " [FATAL] ",
	core.PanicLevel: " [PANIC] ",
}

// formatToBuffer writes the formatted record into the given buffer
func (f *TextFormatter) formatToBuffer(record *core.Record, buf *bytes.Buffer) {
	// Timestamp - use AppendFormat to avoid string allocation
	buf.Write(record.Time.AppendFormat(buf.AvailableBuffer(), f.TimestampFormat))

	// Level - use pre-formatted string
	if int(record.Level) < len(levelBrackets) {
		buf.WriteString(levelBrackets[record.Level])
	} else {
		buf.WriteString(" [UNKNOWN] ")
	}

	// Logger name and layer
	if record.LoggerName != "" {
		buf.WriteString(record.LoggerName)
		if record.Layer != "" {
			buf.WriteByte('/')
			buf.WriteString(record.Layer)
		}
		buf.WriteString(": ")
	} else if record.Layer != "" {
		buf.WriteString(record.Layer)
		buf.WriteString(": ")
	}

	// Caller info if enabled
	if f.IncludeCaller && record.Caller.Defined {
		buf.WriteByte('[')
		buf.WriteString(record.Caller.ShortFile)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(record.Caller.Line))
		buf.WriteString("] ")
	}

	// Message
	buf.WriteString(record.Message)

	// Fields
	for _, field := range record.Fields {
		buf.WriteByte(' ')
		buf.WriteString(field.Key)
		buf.WriteByte('=')
		buf.WriteString(field.StringValue())
	}

	buf.WriteByte('\n')
}
