// Package config is the validated configuration surface consumed by
// the delivery engine: queue capacity and policy, put/get timeouts,
// flush interval, memory threshold, shutdown phase timeouts, and the
// file sink settings. Values load from a YAML file and/or DRIFTLOG_*
// environment variables via cleanenv and are validated before any
// handler sees them.
package config
