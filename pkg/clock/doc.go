/*
Package clock provides Loom's virtual frequency domains: the clock tree,
exact ratio math for period normalization, and cross-domain timing.

A Clock converts between domain-local cycles and global scheduler ticks.
Clocks form a tree built through a Manager; periods are fixed once by
Normalize and immutable afterwards.

# Clock modes

Ratio mode expresses each clock as an exact ratio of its parent
(parent_ratio / child_ratio). Normalize runs an lcm pass over the tree so
every period is integral, and returns the global normalization factor.

Frequency mode gives each clock an explicit frequency in MHz; ticks are
picoseconds and periods are round(1e6 / frequency_mhz). The two modes may
not be mixed in one tree.

# Cross-domain timing

CrossingDelay snaps a nominal arrival (send tick + sender delay + receiver
delay) forward to the receiver's next posedge. ReverseCrossingDelay answers
when a beat arriving at a given posedge must have left the sender, for
next-free-slot queries on streaming ports.

# Usage

	mgr := clock.NewManager(scheduler)
	root, _ := mgr.MakeRoot("root")
	core, _ := mgr.MakeClock("core", root, 1, 2)   // twice the root rate
	mem, _ := mgr.MakeClock("mem", core, 3, 2)     // 2/3 of core
	norm, _ := mgr.Normalize()

	tick := core.CycleToTick(5)
	onEdge := core.IsPosedge()

# Integration Points

This package integrates with:

  - pkg/sched: the Scheduler interface breaks the clock <-> kernel cycle
  - pkg/port: sync ports use the crossing helpers
  - pkg/config: the YAML clock tree builds through Manager
*/
package clock
