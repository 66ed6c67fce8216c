// Package formatter turns Records into writable payloads.
//
// Formatters are pure functions over a record: no I/O and no failure
// path exposed to the delivery engine. The engine formats through
// Safe, which converts a formatter error or panic into a minimal
// plain-text payload so a broken formatter can degrade output quality
// but never lose a record.
//
// TextFormatter produces a human-readable line; JSONFormatter builds
// one JSON object per record by hand to keep the hot path free of
// encoding/json allocations. Both implement BufferFormatter for
// handlers that format into their own reusable buffer.
package formatter
