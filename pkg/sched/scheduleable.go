package sched

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/clock"
)

// kind selects the uniqueness and delay rules of a Scheduleable. Variants
// are tagged values in a uniform record rather than a type hierarchy; the
// scheduling hot path stays free of dynamic dispatch.
type kind uint8

const (
	kindPlain kind = iota
	kindUnique
	kindSingleCycle
	kindPayloadProxy
)

// Scheduleable is a unit of deferred work: a handler bound to a fixed
// scheduling phase, owned by a clock domain, placed on the scheduler for
// some future tick.
type Scheduleable struct {
	label        string
	handler      func()
	phase        Phase
	defaultDelay clock.Cycle
	clk          *clock.Clock
	sch          *Scheduler
	vertex       *Vertex
	continuing   bool
	knd          kind

	// Uniqueness bookkeeping. kindUnique tracks every tick it is pending
	// on; kindSingleCycle only ever has the next cycle pending.
	pendingTicks map[clock.Tick]struct{}
	nextPending  clock.Tick
	hasPending   bool

	firing bool

	// Called when a queue entry for this Scheduleable is cancelled or
	// fired; payload proxies reclaim themselves here.
	onUnqueued func(fired bool)
}

// Label returns the diagnostic label.
func (s *Scheduleable) Label() string { return s.label }

// Phase returns the fixed scheduling phase.
func (s *Scheduleable) Phase() Phase { return s.phase }

// Clock returns the owning clock domain.
func (s *Scheduleable) Clock() *clock.Clock { return s.clk }

// Scheduler returns the owning scheduler.
func (s *Scheduleable) Scheduler() *Scheduler { return s.sch }

// Vertex returns the precedence-graph vertex of this Scheduleable.
func (s *Scheduleable) Vertex() *Vertex { return s.vertex }

// IsContinuing reports whether pending occurrences keep the scheduler
// running.
func (s *Scheduleable) IsContinuing() bool { return s.continuing }

// SetContinuing marks whether pending occurrences of this Scheduleable keep
// the scheduler running. Heartbeat-style events set this to false.
func (s *Scheduleable) SetContinuing(continuing bool) { s.continuing = continuing }

// SetLabel replaces the diagnostic label. Ports relabel their internal
// delivery events with the consumer handler's name.
func (s *Scheduleable) SetLabel(label string) {
	s.label = label
	if s.vertex != nil {
		s.vertex.label = label
	}
}

// Schedule places this Scheduleable at the default delay in its own clock
// domain.
func (s *Scheduleable) Schedule() {
	s.ScheduleDelay(s.defaultDelay)
}

// ScheduleDelay places this Scheduleable delayCycles of its clock into the
// future.
func (s *Scheduleable) ScheduleDelay(delayCycles clock.Cycle) {
	if s.knd == kindSingleCycle && delayCycles != 1 {
		panic(fmt.Sprintf("event %q: single-cycle events always schedule exactly one cycle out", s.label))
	}
	s.ScheduleRelativeTick(s.clockOrDie().CycleToTick(delayCycles))
}

// ScheduleRelativeTick places this Scheduleable relTicks after the current
// tick.
func (s *Scheduleable) ScheduleRelativeTick(relTicks clock.Tick) {
	s.sch.scheduleRelative(s, relTicks)
}

// IsScheduled reports whether any occurrence is pending.
func (s *Scheduleable) IsScheduled() bool {
	return s.sch.isScheduled(s, nil)
}

// IsScheduledAt reports whether an occurrence is pending at the given
// relative cycle of this Scheduleable's clock.
func (s *Scheduleable) IsScheduledAt(relCycles clock.Cycle) bool {
	rel := s.clockOrDie().CycleToTick(relCycles)
	return s.sch.isScheduled(s, &rel)
}

// Cancel removes every pending occurrence.
func (s *Scheduleable) Cancel() uint32 {
	return s.sch.cancel(s, nil)
}

// CancelAt removes the pending occurrence at the given relative cycle.
func (s *Scheduleable) CancelAt(relCycles clock.Cycle) uint32 {
	rel := s.clockOrDie().CycleToTick(relCycles)
	return s.sch.cancel(s, &rel)
}

// Precedes adds must-run-before edges from this Scheduleable to each
// consumer. Producer and consumer must share a phase.
func (s *Scheduleable) Precedes(consumers ...*Scheduleable) {
	for _, c := range consumers {
		s.sch.dag.link(s.vertex, c.vertex, "Scheduleable.Precedes")
	}
}

func (s *Scheduleable) clockOrDie() *clock.Clock {
	if s.clk == nil {
		panic(fmt.Sprintf("event %q has no clock", s.label))
	}
	return s.clk
}

// admit applies the variant's uniqueness rules for an occurrence at the
// absolute target tick. It reports whether the occurrence should be queued.
func (s *Scheduleable) admit(target clock.Tick) bool {
	switch s.knd {
	case kindPlain:
		return true
	case kindUnique:
		if s.firing && s.sch.CurrentTick() == target {
			panic(fmt.Sprintf("event %q: schedule for the current tick from within its own handler", s.label))
		}
		if _, dup := s.pendingTicks[target]; dup {
			return false
		}
		if s.pendingTicks == nil {
			s.pendingTicks = make(map[clock.Tick]struct{}, 2)
		}
		s.pendingTicks[target] = struct{}{}
		return true
	case kindSingleCycle:
		if s.hasPending && s.nextPending == target {
			return false
		}
		if s.hasPending {
			panic(fmt.Sprintf("event %q: single-cycle event already pending for tick %d, cannot also pend for %d",
				s.label, s.nextPending, target))
		}
		s.hasPending = true
		s.nextPending = target
		return true
	case kindPayloadProxy:
		// The proxy guards its own scheduled/cancelled flags in onUnqueued
		// wiring; double-scheduling is caught by the pool.
		return true
	}
	return true
}

// unqueued is invoked by the scheduler when an occurrence leaves the queue,
// either fired or cancelled.
func (s *Scheduleable) unqueued(target clock.Tick, fired bool) {
	switch s.knd {
	case kindUnique:
		delete(s.pendingTicks, target)
	case kindSingleCycle:
		if s.hasPending && s.nextPending == target {
			s.hasPending = false
		}
	}
	if s.onUnqueued != nil {
		s.onUnqueued(fired)
	}
}
