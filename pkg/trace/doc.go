/*
Package trace persists simulation event traces to a bbolt database.

A Recorder observes the scheduler through its fire hook and writes one
record per handler invocation: firing sequence, tick, phase, and label.
Records batch in memory and flush in bulk transactions; each simulation run
gets its own UUID-keyed bucket so several runs can share a database file.

The Reader side lists runs and streams a run's records back in firing
order (the record keys are big-endian sequence numbers, so bucket order is
firing order).

# Usage

	recorder, _ := trace.NewRecorder("loom-trace.db")
	recorder.Attach(scheduler)        // before Finalize
	...
	scheduler.Run(sched.RunForever, false)
	recorder.Close()

	rd, _ := trace.NewReader("loom-trace.db")
	runs, _ := rd.ListRuns()
	records, _ := rd.Records(runs[0].ID)

# Integration Points

This package integrates with:

  - pkg/sched: RegisterFireHook is the only coupling to the kernel
  - pkg/metrics: record and flush instrumentation
  - cmd/loom: the trace subcommand inspects recorded runs
*/
package trace
