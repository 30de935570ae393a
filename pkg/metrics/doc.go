/*
Package metrics provides Prometheus instrumentation for the simulation
kernel.

Collectors cover the scheduler (ticks, firings by phase, cancellations),
the payload-event pools (outstanding proxies, growth), the port layer
(sends by kind, sync recirculations), and the trace recorder. All metrics
register in init and are served through Handler.

# Usage

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RunDuration)

# Integration Points

This package integrates with:

  - pkg/sched: tick and firing counters on the hot path
  - pkg/port: send and recirculation counters
  - pkg/trace: record and flush instrumentation
  - cmd/loom: serves the endpoint when enabled
*/
package metrics
