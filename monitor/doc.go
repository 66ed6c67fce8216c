// Package monitor makes the delivery pipeline observable and
// self-protecting.
//
// MemoryMonitor samples process memory pressure on a cached interval
// and tells the emission path when to bypass the queue. ErrorTracker
// is the terminal sink for every component's failure path: categorized
// counts, a bounded history, best-effort observers, and a guarantee
// that recording an error never fails. HealthMonitor folds queue
// statistics, task counts, memory state, error totals, and the
// shutdown phase into one briefly-cached snapshot, optionally exported
// to Prometheus via HealthCollector.
package monitor
