// Package guard routes log emissions between the asynchronous pipeline
// and a synchronous fallback.
//
// A log call site is not guaranteed to run somewhere the async path
// can serve: the writer task may not have started yet, may have died,
// or the handler may already be shutting down. The Guard makes that an
// explicit capability check with two implementations (pipeline-backed
// and always-sync) rather than a try/catch scattered across call
// sites. Whatever happens, the operation completes on one of the two
// paths.
package guard
