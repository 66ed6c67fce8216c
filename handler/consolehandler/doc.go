// Package consolehandler writes log records to a terminal or any
// io.Writer. It is a façade over the handler pipeline with a console
// sink: New returns the asynchronous variant, NewSync the one that
// writes on the calling goroutine.
package consolehandler
