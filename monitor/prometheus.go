package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// HealthCollector exposes a handler's health snapshot as Prometheus
// metrics. It reads through the HealthMonitor, so scrapes share the
// snapshot cache with other pollers.
type HealthCollector struct {
	health  *HealthMonitor
	handler string

	queueSize     *prometheus.Desc
	queueCapacity *prometheus.Desc
	queuePuts     *prometheus.Desc
	queueGets     *prometheus.Desc
	queueDrops    *prometheus.Desc
	outstanding   *prometheus.Desc
	asyncRuns     *prometheus.Desc
	syncRuns      *prometheus.Desc
	memoryOK      *prometheus.Desc
	asyncUp       *prometheus.Desc
	errorsTotal   *prometheus.Desc
	uptime        *prometheus.Desc
}

// NewHealthCollector creates a collector for one handler. The handler
// label distinguishes multiple handlers registered in one registry.
func NewHealthCollector(handler string, health *HealthMonitor) *HealthCollector {
	labels := prometheus.Labels{"handler": handler}
	return &HealthCollector{
		health:  health,
		handler: handler,
		queueSize: prometheus.NewDesc(
			"driftlog_queue_size", "Current queue occupancy", nil, labels),
		queueCapacity: prometheus.NewDesc(
			"driftlog_queue_capacity", "Fixed queue capacity", nil, labels),
		queuePuts: prometheus.NewDesc(
			"driftlog_queue_puts_total", "Entries accepted into the queue", nil, labels),
		queueGets: prometheus.NewDesc(
			"driftlog_queue_gets_total", "Entries handed to the writer", nil, labels),
		queueDrops: prometheus.NewDesc(
			"driftlog_queue_drops_total", "Entries dropped by the overflow policy", nil, labels),
		outstanding: prometheus.NewDesc(
			"driftlog_tasks_outstanding", "Tracked background tasks still running", nil, labels),
		asyncRuns: prometheus.NewDesc(
			"driftlog_async_deliveries_total", "Emissions served by the async path", nil, labels),
		syncRuns: prometheus.NewDesc(
			"driftlog_sync_deliveries_total", "Emissions served by the synchronous fallback", nil, labels),
		memoryOK: prometheus.NewDesc(
			"driftlog_memory_ok", "1 when memory usage is below the threshold", nil, labels),
		asyncUp: prometheus.NewDesc(
			"driftlog_async_available", "1 when the async delivery path is usable", nil, labels),
		errorsTotal: prometheus.NewDesc(
			"driftlog_errors_total", "Recorded errors by category", []string{"category"}, labels),
		uptime: prometheus.NewDesc(
			"driftlog_uptime_seconds", "Seconds since the handler opened", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *HealthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueSize
	ch <- c.queueCapacity
	ch <- c.queuePuts
	ch <- c.queueGets
	ch <- c.queueDrops
	ch <- c.outstanding
	ch <- c.asyncRuns
	ch <- c.syncRuns
	ch <- c.memoryOK
	ch <- c.asyncUp
	ch <- c.errorsTotal
	ch <- c.uptime
}

// Collect implements prometheus.Collector.
func (c *HealthCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.health.Status()

	ch <- prometheus.MustNewConstMetric(c.queueSize, prometheus.GaugeValue, float64(s.Queue.Size))
	ch <- prometheus.MustNewConstMetric(c.queueCapacity, prometheus.GaugeValue, float64(s.Queue.Capacity))
	ch <- prometheus.MustNewConstMetric(c.queuePuts, prometheus.CounterValue, float64(s.Queue.Puts))
	ch <- prometheus.MustNewConstMetric(c.queueGets, prometheus.CounterValue, float64(s.Queue.Gets))
	ch <- prometheus.MustNewConstMetric(c.queueDrops, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.outstanding, prometheus.GaugeValue, float64(s.OutstandingTasks))
	ch <- prometheus.MustNewConstMetric(c.asyncRuns, prometheus.CounterValue, float64(s.AsyncRuns))
	ch <- prometheus.MustNewConstMetric(c.syncRuns, prometheus.CounterValue, float64(s.SyncRuns))
	ch <- prometheus.MustNewConstMetric(c.memoryOK, prometheus.GaugeValue, boolValue(s.MemoryOK))
	ch <- prometheus.MustNewConstMetric(c.asyncUp, prometheus.GaugeValue, boolValue(s.AsyncAvailable))
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.Uptime.Seconds())

	for category, count := range s.Errors {
		ch <- prometheus.MustNewConstMetric(c.errorsTotal, prometheus.CounterValue, float64(count), category)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
