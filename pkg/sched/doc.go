/*
Package sched implements Loom's event scheduling kernel: virtual time,
phased execution, and precedence-ordered handler invocation.

The scheduler is a tick-indexed multi-phase priority queue. Components
schedule Scheduleables — handlers bound to a phase and a clock — for future
ticks; the run loop advances time to the next tick with work and drains the
seven phases in order, honoring the precedence DAG within each phase.

# Architecture

	┌──────────────────── SCHEDULING KERNEL ───────────────────┐
	│                                                           │
	│  ┌────────────────────────────────────────────┐          │
	│  │               Scheduler                     │          │
	│  │  - Sparse tick -> quantum map               │          │
	│  │  - Min-heap over pending ticks              │          │
	│  │  - Continuing-work keep-alive count         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          Quantum (one tick)                 │          │
	│  │  Trigger | Update | PortUpdate | Flush |    │          │
	│  │  Collection | Tick | PostTick               │          │
	│  │  - per-phase ready lists, DAG-priority      │          │
	│  │    ordered                                  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │             Scheduleables                   │          │
	│  │  Event            - unbounded repeats       │          │
	│  │  UniqueEvent      - one firing per tick     │          │
	│  │  SingleCycleUniqueEvent - fixed +1 cycle    │          │
	│  │  PayloadEvent[T]  - pooled payload proxies  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                     │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Precedence DAG                   │          │
	│  │  - Vertex per Scheduleable                  │          │
	│  │  - GlobalOrderingPoint rendezvous           │          │
	│  │  - Stable topological sort at Finalize      │          │
	│  └────────────────────────────────────────────┘          │
	└───────────────────────────────────────────────────────────┘

# Ordering guarantees

 1. Strict total order across ticks.
 2. Strict total order across phases within a tick.
 3. Within a (tick, phase), a deterministic order from a stable topological
    sort of the DAG, tie-broken by label. The order is fixed at Finalize
    and reproducible across runs.
 4. A handler may schedule into the current tick only at its own phase or
    later; same-phase same-tick scheduling requires a DAG position after
    the firing entry.

# Usage

	scheduler := sched.NewScheduler()
	mgr := clock.NewManager(scheduler)
	root, _ := mgr.MakeRoot("root")
	clk, _ := mgr.MakeClock("core", root, 1, 1)
	mgr.Normalize()

	es := sched.NewEventSet(top, clk)
	ev := sched.NewUniqueEvent(es, "ev_retire", sched.PhaseTick, 0, retire)
	scheduler.Finalize()

	ev.ScheduleDelay(1)
	scheduler.Run(sched.RunForever, false)

Precedence between same-phase events:

	sched.Precedes(evDecode, evIssue, evRetire)
	sched.Precedes(sched.NewEventGroup(evA, evB), evAfterBoth)

# Concurrency

The scheduler owns the only execution context. Handlers run one at a time
and re-enter the kernel only through schedule, cancel and payload
preparation; Run is not re-entrant.

# Integration Points

This package integrates with:

  - pkg/clock: cycle -> tick conversion and clock-domain binding
  - pkg/port: ports ride internal Scheduleables and payload events
  - pkg/trace: observes firings through RegisterFireHook
  - pkg/metrics: tick and firing counters
*/
package sched
