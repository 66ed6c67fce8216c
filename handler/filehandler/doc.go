// Package filehandler writes log records to files with rotation. It
// is a façade over the handler pipeline with a file sink: New returns
// the asynchronous variant with native size/age/interval rotation,
// NewRotating delegates rotation to lumberjack, and NewSync writes on
// the calling goroutine.
package filehandler
