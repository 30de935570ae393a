package sched

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/metrics"
)

// RunForever runs the scheduler until no continuing work remains.
const RunForever = ^uint64(0)

// FireHook observes every handler invocation. Trace recording attaches
// here (metrics counters are updated by the kernel directly); the kernel
// itself has no opinion about what observers do.
type FireHook func(label string, phase Phase, tick clock.Tick, seq uint64)

// entry is one queued occurrence of a Scheduleable.
type entry struct {
	s         *Scheduleable
	cancelled bool
	seq       uint64
}

// quantum holds the per-phase ready lists of one future tick. Lists are
// kept in ascending DAG-priority order; inserts during a drain always land
// after the drain point because same-phase same-tick scheduling is only
// legal for strictly-later DAG positions.
type quantum struct {
	phases [NumPhases][]*entry
}

// tickHeap is a min-heap over ticks that have a quantum.
type tickHeap []clock.Tick

func (h tickHeap) Len() int            { return len(h) }
func (h tickHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h tickHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *tickHeap) Push(x interface{}) { *h = append(*h, x.(clock.Tick)) }
func (h *tickHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Scheduler drives simulated time forward: a tick-indexed multi-phase
// priority queue plus the precedence DAG that orders same-phase work.
// Single-threaded by contract; handlers re-enter only through schedule,
// cancel and payload preparation.
type Scheduler struct {
	logger zerolog.Logger

	currentTick  clock.Tick
	currentPhase Phase
	quanta       map[clock.Tick]*quantum
	ticks        tickHeap

	dag       *dag
	finalized bool
	running   bool

	firing    *entry
	fireSeq   uint64
	insertSeq uint64

	// Number of queued occurrences whose Scheduleable is continuing; the
	// run loop exits when this reaches zero.
	continuingPending int

	hooks []FireHook
}

// NewScheduler creates an empty, unfinalized scheduler at tick 0.
func NewScheduler() *Scheduler {
	return &Scheduler{
		logger: log.WithComponent("sched"),
		quanta: make(map[clock.Tick]*quantum),
		dag:    newDag(),
	}
}

// CurrentTick returns the current absolute tick. Tick 0 is pre-simulation.
func (sch *Scheduler) CurrentTick() clock.Tick { return sch.currentTick }

// CurrentPhase returns the phase being drained. Meaningful only while the
// scheduler is running.
func (sch *Scheduler) CurrentPhase() Phase { return sch.currentPhase }

// IsRunning reports whether the run loop is active.
func (sch *Scheduler) IsRunning() bool { return sch.running }

// IsFinalized reports whether Finalize has completed.
func (sch *Scheduler) IsFinalized() bool { return sch.finalized }

// CurrentFiringLabel returns the label of the handler being invoked, "" if
// none.
func (sch *Scheduler) CurrentFiringLabel() string {
	if sch.firing == nil {
		return ""
	}
	return sch.firing.s.label
}

// RegisterFireHook attaches an observer called on every handler invocation.
// Must be called before Finalize.
func (sch *Scheduler) RegisterFireHook(h FireHook) {
	if sch.finalized {
		panic("cannot register a fire hook after finalization")
	}
	sch.hooks = append(sch.hooks, h)
}

// NewOrderingPoint creates a precedence vertex with no handler behind it,
// usable as a rendezvous between otherwise unrelated events.
func (sch *Scheduler) NewOrderingPoint(label string) *GlobalOrderingPoint {
	return &GlobalOrderingPoint{v: sch.dag.newVertex(label, phaseAny), sch: sch}
}

// Finalize computes the DAG's topological order, assigns drain priorities
// and locks the structure. Must be called before Run.
func (sch *Scheduler) Finalize() error {
	if sch.finalized {
		return fmt.Errorf("scheduler already finalized")
	}
	timer := metrics.NewTimer()
	if err := sch.dag.finalize(); err != nil {
		return fmt.Errorf("scheduler finalization failed: %w", err)
	}
	sch.finalized = true
	timer.ObserveDuration(metrics.FinalizeDuration)
	sch.logger.Info().
		Int("vertices", len(sch.dag.vertices)).
		Msg("Scheduler finalized")
	return nil
}

// Run drives the main loop. maxTicks bounds how many ticks the current tick
// may advance (RunForever for no bound). With exacting set, time advances
// through empty ticks one by one and the loop only returns once the budget
// elapses.
func (sch *Scheduler) Run(maxTicks uint64, exacting bool) error {
	if !sch.finalized {
		return fmt.Errorf("scheduler must be finalized before running")
	}
	if sch.running {
		return fmt.Errorf("scheduler run loop is not re-entrant")
	}
	sch.running = true
	defer func() { sch.running = false }()

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RunDuration)

	bounded := maxTicks != RunForever
	endTick := sch.currentTick + clock.Tick(maxTicks) // meaningful only when bounded

	for {
		if sch.continuingPending == 0 {
			if bounded && exacting {
				sch.setTick(endTick)
			}
			return nil
		}

		var next clock.Tick
		if exacting {
			next = sch.currentTick
			if q := sch.quanta[next]; q == nil || !quantumHasWork(q) {
				if t, ok := sch.peekTickWithWork(); ok {
					// Nothing at this tick; walk tick by tick toward work.
					if bounded && t >= endTick {
						sch.setTick(endTick)
						return nil
					}
					sch.setTick(next + 1)
					continue
				}
				continue // continuingPending will be rechecked
			}
		} else {
			t, ok := sch.peekTickWithWork()
			if !ok {
				return nil
			}
			next = t
		}

		if bounded && next >= endTick {
			sch.setTick(endTick)
			return nil
		}

		sch.setTick(next)
		metrics.TicksTotal.Inc()
		sch.executeTick()
		sch.setTick(sch.currentTick + 1)
	}
}

func (sch *Scheduler) setTick(t clock.Tick) {
	sch.currentTick = t
	metrics.CurrentTick.Set(float64(t))
}

// executeTick drains every phase of the current tick in order.
func (sch *Scheduler) executeTick() {
	q := sch.quanta[sch.currentTick]
	for p := 0; p < NumPhases; p++ {
		sch.currentPhase = Phase(p)
		list := q.phases[p]
		for i := 0; i < len(list); i++ {
			e := list[i]
			if e.cancelled {
				continue
			}
			sch.fire(e)
			// The handler may have appended to this phase's list.
			list = q.phases[p]
		}
	}
	delete(sch.quanta, sch.currentTick)
	sch.currentPhase = PhaseTrigger
}

func (sch *Scheduler) fire(e *entry) {
	s := e.s
	sch.firing = e
	s.firing = true
	seq := sch.fireSeq
	sch.fireSeq++

	sch.unaccount(s)
	s.unqueued(sch.currentTick, true)

	s.handler()

	s.firing = false
	sch.firing = nil

	metrics.EventsFiredTotal.WithLabelValues(sch.currentPhase.String()).Inc()
	for _, h := range sch.hooks {
		h(s.label, s.phase, sch.currentTick, seq)
	}
}

// scheduleRelative inserts s into the ready list for its phase at
// currentTick + relTicks, enforcing the variant's uniqueness contract and
// the intra-tick phase ordering rules.
func (sch *Scheduler) scheduleRelative(s *Scheduleable, relTicks clock.Tick) {
	if !sch.finalized {
		panic(fmt.Sprintf("event %q: scheduled before the scheduler was finalized", s.label))
	}
	if s.clk != nil && !s.clk.IsNormalized() {
		panic(fmt.Sprintf("event %q: its clock %q was never normalized", s.label, s.clk.Name()))
	}
	target := sch.currentTick + relTicks

	if sch.running && relTicks == 0 {
		if s.phase < sch.currentPhase {
			panic(fmt.Sprintf(
				"event %q (phase %s): zero-delay schedule into an earlier phase than the current %s at tick %d (firing: %q)",
				s.label, s.phase, sch.currentPhase, sch.currentTick, sch.CurrentFiringLabel()))
		}
		if s.phase == sch.currentPhase && sch.firing != nil &&
			s.vertex.priority <= sch.firing.s.vertex.priority {
			panic(fmt.Sprintf(
				"event %q: zero-delay schedule into the currently draining phase %s requires a precedence position after the firing event %q",
				s.label, sch.currentPhase, sch.firing.s.label))
		}
	}

	if !s.admit(target) {
		return // coalesced
	}

	e := &entry{s: s, seq: sch.insertSeq}
	sch.insertSeq++
	q := sch.quanta[target]
	if q == nil {
		q = &quantum{}
		sch.quanta[target] = q
		heap.Push(&sch.ticks, target)
	}
	q.phases[s.phase] = insertSorted(q.phases[s.phase], e)
	if s.continuing {
		sch.continuingPending++
	}
}

// insertSorted keeps the ready list ordered by (priority, insertion seq).
func insertSorted(list []*entry, e *entry) []*entry {
	i := sort.Search(len(list), func(i int) bool {
		if list[i].s.vertex.priority != e.s.vertex.priority {
			return list[i].s.vertex.priority > e.s.vertex.priority
		}
		return list[i].seq > e.seq
	})
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = e
	return list
}

// isScheduled queries pending occurrences of s, optionally restricted to
// one relative tick.
func (sch *Scheduler) isScheduled(s *Scheduleable, relTicks *clock.Tick) bool {
	check := func(q *quantum) bool {
		for _, e := range q.phases[s.phase] {
			if e.s == s && !e.cancelled {
				return true
			}
		}
		return false
	}
	if relTicks != nil {
		q := sch.quanta[sch.currentTick+*relTicks]
		return q != nil && check(q)
	}
	for _, q := range sch.quanta {
		if check(q) {
			return true
		}
	}
	return false
}

// cancel tombstones pending occurrences of s, optionally restricted to one
// relative tick, and returns how many were removed. Cancelled entries stay
// queued and are skipped on drain.
func (sch *Scheduler) cancel(s *Scheduleable, relTicks *clock.Tick) uint32 {
	var n uint32
	doCancel := func(tick clock.Tick, q *quantum) {
		for _, e := range q.phases[s.phase] {
			if e.s == s && !e.cancelled {
				e.cancelled = true
				n++
				sch.unaccount(s)
				s.unqueued(tick, false)
				metrics.EventsCancelledTotal.Inc()
			}
		}
	}
	if relTicks != nil {
		tick := sch.currentTick + *relTicks
		if q := sch.quanta[tick]; q != nil {
			doCancel(tick, q)
		}
		return n
	}
	for tick, q := range sch.quanta {
		doCancel(tick, q)
	}
	return n
}

func (sch *Scheduler) unaccount(s *Scheduleable) {
	if s.continuing {
		sch.continuingPending--
	}
}

// peekTickWithWork discards stale heap heads and returns the earliest tick
// at or after the current one holding uncancelled work. The returned tick
// stays in the heap; executeTick's quantum removal makes it stale.
func (sch *Scheduler) peekTickWithWork() (clock.Tick, bool) {
	for len(sch.ticks) > 0 {
		t := sch.ticks[0]
		q, live := sch.quanta[t]
		if !live || t < sch.currentTick {
			heap.Pop(&sch.ticks)
			continue
		}
		if !quantumHasWork(q) {
			heap.Pop(&sch.ticks)
			delete(sch.quanta, t)
			continue
		}
		return t, true
	}
	return 0, false
}

func quantumHasWork(q *quantum) bool {
	for p := 0; p < NumPhases; p++ {
		for _, e := range q.phases[p] {
			if !e.cancelled {
				return true
			}
		}
	}
	return false
}
