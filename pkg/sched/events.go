package sched

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/tree"
)

// EventSet groups the events of one component under a common tree node and
// gives them their clock domain.
type EventSet struct {
	node *tree.Node
	clk  *clock.Clock
}

// NewEventSet creates the "events" node under parent, bound to the given
// clock.
func NewEventSet(parent *tree.Node, clk *clock.Clock) *EventSet {
	n := tree.MustChild(parent, "events", "event set")
	return &EventSet{node: n, clk: clk}
}

// Node returns the event set's tree node.
func (es *EventSet) Node() *tree.Node { return es.node }

// Clock returns the event set's clock domain.
func (es *EventSet) Clock() *clock.Clock { return es.clk }

// schedulerOf recovers the concrete scheduler behind a clock.
func schedulerOf(clk *clock.Clock) *Scheduler {
	sch, ok := clk.Scheduler().(*Scheduler)
	if !ok {
		panic(fmt.Sprintf("clock %q is not driven by a sched.Scheduler", clk.Name()))
	}
	return sch
}

// newScheduleable wires the common Scheduleable record: tree placement,
// clock and scheduler resolution, and its precedence vertex.
func newScheduleable(es *EventSet, name string, phase Phase, delay clock.Cycle, handler func(), knd kind) *Scheduleable {
	node := tree.MustChild(es.node, name, "event")
	sch := schedulerOf(es.clk)
	s := &Scheduleable{
		label:        name,
		handler:      handler,
		phase:        phase,
		defaultDelay: delay,
		clk:          es.clk,
		sch:          sch,
		continuing:   true,
		knd:          knd,
	}
	s.vertex = sch.dag.newVertex(name, phase)
	node.Payload = s
	return s
}

// NewEvent creates a plain event: any number of occurrences may be pending,
// including several in the same tick.
func NewEvent(es *EventSet, name string, phase Phase, delay clock.Cycle, handler func()) *Scheduleable {
	return newScheduleable(es, name, phase, delay, handler, kindPlain)
}

// NewUniqueEvent creates an event that fires at most once per (tick, phase);
// duplicate schedule requests for the same tick are silently coalesced.
func NewUniqueEvent(es *EventSet, name string, phase Phase, delay clock.Cycle, handler func()) *Scheduleable {
	return newScheduleable(es, name, phase, delay, handler, kindUnique)
}

// NewSingleCycleUniqueEvent creates a unique event that always schedules
// exactly one cycle into the future. The fixed delay keeps the duplicate
// check to a single comparison.
func NewSingleCycleUniqueEvent(es *EventSet, name string, phase Phase, handler func()) *Scheduleable {
	return newScheduleable(es, name, phase, 1, handler, kindSingleCycle)
}
