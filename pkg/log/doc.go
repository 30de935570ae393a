/*
Package log provides structured logging for Loom using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific loggers, configurable log levels, and
helper functions for common logging patterns. All logs include timestamps
and support filtering by severity level.

# Usage

Initializing the Logger:

	import "github.com/loom-sim/loom/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component Loggers:

	schedLog := log.WithComponent("sched")
	schedLog.Debug().Uint64("tick", 1000).Msg("Advancing to next quantum")

	portLog := log.WithPort("top.core0.ports.in_req")
	clkLog := log.WithClock("core_clk")

# Integration Points

This package integrates with:

  - pkg/sched: logs finalization
  - pkg/clock: logs clock tree normalization
  - pkg/port: logs binding and recirculation
  - pkg/trace: logs run lifecycle
  - cmd/loom: initializes the logger from CLI flags
*/
package log
