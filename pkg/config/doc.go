/*
Package config loads Loom's YAML simulation configuration.

A config file selects the log level and format, bounds the run, describes
the clock tree (ratio or frequency mode, never both on one clock), and
toggles the trace and metrics sinks:

	log:
	  level: info
	run:
	  max_ticks: 100000
	clocks:
	  root: root
	  domains:
	    - name: core
	      parent: root
	      parent_ratio: 1
	      child_ratio: 2
	    - name: sink
	      parent: root
	      parent_ratio: 2
	      child_ratio: 1
	trace:
	  enabled: true
	  path: loom-trace.db
	metrics:
	  enabled: false
	  listen: :9464

BuildClockTree materializes the clocks section against a clock.Manager;
validation catches unknown parents, duplicate names, and mixed modes
before any clock is created.
*/
package config
