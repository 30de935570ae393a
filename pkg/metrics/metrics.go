package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler metrics
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_ticks_total",
			Help: "Total number of scheduler ticks executed",
		},
	)

	EventsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_events_fired_total",
			Help: "Total number of events fired by scheduling phase",
		},
		[]string{"phase"},
	)

	EventsCancelledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_events_cancelled_total",
			Help: "Total number of scheduled events cancelled before firing",
		},
	)

	CurrentTick = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "loom_current_tick",
			Help: "Current scheduler tick",
		},
	)

	// PayloadEvent pool metrics
	PayloadsOutstanding = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "loom_payloads_outstanding",
			Help: "Number of outstanding payload proxies by event",
		},
		[]string{"event"},
	)

	PayloadPoolGrowthTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_payload_pool_growth_total",
			Help: "Total number of payload proxy pool growth steps",
		},
	)

	// Port metrics
	PortSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loom_port_sends_total",
			Help: "Total number of values sent on out ports by kind",
		},
		[]string{"kind"},
	)

	SyncRecirculationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_sync_recirculations_total",
			Help: "Total number of sync-port deliveries recirculated on backpressure",
		},
	)

	// Run metrics
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_run_duration_seconds",
			Help:    "Wall-clock duration of scheduler runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	FinalizeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_finalize_duration_seconds",
			Help:    "Time taken to finalize the scheduler DAG in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Trace metrics
	TraceRecordsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "loom_trace_records_total",
			Help: "Total number of event records written to the trace store",
		},
	)

	TraceFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loom_trace_flush_duration_seconds",
			Help:    "Time taken to flush a trace batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(EventsFiredTotal)
	prometheus.MustRegister(EventsCancelledTotal)
	prometheus.MustRegister(CurrentTick)
	prometheus.MustRegister(PayloadsOutstanding)
	prometheus.MustRegister(PayloadPoolGrowthTotal)
	prometheus.MustRegister(PortSendsTotal)
	prometheus.MustRegister(SyncRecirculationsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(FinalizeDuration)
	prometheus.MustRegister(TraceRecordsTotal)
	prometheus.MustRegister(TraceFlushDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
