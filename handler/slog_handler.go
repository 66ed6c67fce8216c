package handler

import (
	"context"
	"log/slog"

	"github.com/driftlog/driftlog/core"
)

// SlogHandler adapts a Handler to slog.Handler, so the delivery
// pipeline can serve as a backend for log/slog call sites.
type SlogHandler struct {
	handler Handler
	level   core.Level
	attrs   []core.Field
	group   string
	recycle bool
}

// NewSlogHandler wraps h as a slog.Handler that drops records below
// level.
func NewSlogHandler(h Handler, level core.Level) *SlogHandler {
	s := &SlogHandler{handler: h, level: level}
	if rc, ok := h.(interface{ CanRecycleRecord() bool }); ok {
		s.recycle = rc.CanRecycleRecord()
	}
	return s
}

// Enabled reports whether records at the given level are handled.
func (s *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return slogLevelToCore(level) >= s.level
}

// Handle converts the slog record and hands it to the wrapped handler.
func (s *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	r := core.GetRecord()
	r.Time = record.Time
	r.Level = slogLevelToCore(record.Level)
	r.Message = record.Message

	if len(s.attrs) > 0 {
		r.Fields = append(r.Fields, s.attrs...)
	}
	record.Attrs(func(a slog.Attr) bool {
		r.Fields = appendSlogAttr(r.Fields, s.group, a)
		return true
	})

	err := s.handler.Handle(r)
	if s.recycle {
		core.PutRecord(r)
	}
	return err
}

// WithAttrs returns a handler that adds attrs to every record.
func (s *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]core.Field, len(s.attrs), len(s.attrs)+len(attrs))
	copy(fields, s.attrs)
	for _, a := range attrs {
		fields = appendSlogAttr(fields, s.group, a)
	}
	return &SlogHandler{
		handler: s.handler,
		level:   s.level,
		attrs:   fields,
		group:   s.group,
		recycle: s.recycle,
	}
}

// WithGroup returns a handler that prefixes attribute keys with name.
func (s *SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	group := name
	if s.group != "" {
		group = s.group + "." + name
	}
	fields := make([]core.Field, len(s.attrs))
	copy(fields, s.attrs)
	return &SlogHandler{
		handler: s.handler,
		level:   s.level,
		attrs:   fields,
		group:   group,
		recycle: s.recycle,
	}
}

func slogLevelToCore(level slog.Level) core.Level {
	switch {
	case level >= slog.LevelError:
		return core.ErrorLevel
	case level >= slog.LevelWarn:
		return core.WarnLevel
	case level >= slog.LevelInfo:
		return core.InfoLevel
	default:
		return core.DebugLevel
	}
}

// appendSlogAttr converts one attribute, prefixing the key with the
// group path. Groups are flattened into dotted keys, one field per
// member; an empty group is elided per the slog handler contract.
func appendSlogAttr(fields []core.Field, group string, a slog.Attr) []core.Field {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		sub := group
		if a.Key != "" {
			sub = a.Key
			if group != "" {
				sub = group + "." + a.Key
			}
		}
		for _, ga := range a.Value.Group() {
			fields = appendSlogAttr(fields, sub, ga)
		}
		return fields
	}
	return append(fields, slogAttrToField(group, a))
}

// slogAttrToField converts one non-group attribute.
func slogAttrToField(group string, a slog.Attr) core.Field {
	key := a.Key
	if group != "" {
		key = group + "." + a.Key
	}

	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindString:
		return core.Field{Key: key, Type: core.StringType, Str: a.Value.String()}
	case slog.KindInt64:
		return core.Field{Key: key, Type: core.Int64Type, Int64: a.Value.Int64()}
	case slog.KindFloat64:
		return core.Field{Key: key, Type: core.Float64Type, Float64: a.Value.Float64()}
	case slog.KindBool:
		var v int64
		if a.Value.Bool() {
			v = 1
		}
		return core.Field{Key: key, Type: core.BoolType, Int64: v}
	case slog.KindTime:
		return core.Field{Key: key, Type: core.TimeType, Int64: a.Value.Time().UnixNano()}
	case slog.KindDuration:
		return core.Field{Key: key, Type: core.DurationType, Int64: int64(a.Value.Duration())}
	default:
		return core.Field{Key: key, Type: core.AnyType, Any: a.Value.Any()}
	}
}
