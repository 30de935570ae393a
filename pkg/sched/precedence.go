package sched

import "fmt"

// GlobalOrderingPoint is a precedence vertex with no handler behind it: a
// rendezvous that composes ordering across otherwise independent events.
// Anything that must run before the point precedes it; anything that must
// run after succeeds it.
type GlobalOrderingPoint struct {
	v   *Vertex
	sch *Scheduler
}

// Label returns the ordering point's diagnostic label.
func (g *GlobalOrderingPoint) Label() string { return g.v.label }

// Linkable is anything that can stand on either side of a precedence edge:
// events, payload-event prototypes, ordering points, and event groups.
// Buses are not Linkable; Bus.InportsPrecede and Bus.OutportsSucceed
// register events on the bus's member ports instead.
type Linkable interface {
	// PrecedenceVertices returns the DAG vertices this participant
	// contributes to an edge.
	PrecedenceVertices() []*Vertex
	// PrecedenceScheduler returns the owning scheduler.
	PrecedenceScheduler() *Scheduler
}

// PrecedenceVertices implements Linkable.
func (s *Scheduleable) PrecedenceVertices() []*Vertex { return []*Vertex{s.vertex} }

// PrecedenceScheduler implements Linkable.
func (s *Scheduleable) PrecedenceScheduler() *Scheduler { return s.sch }

// PrecedenceVertices implements Linkable.
func (g *GlobalOrderingPoint) PrecedenceVertices() []*Vertex { return []*Vertex{g.v} }

// PrecedenceScheduler implements Linkable.
func (g *GlobalOrderingPoint) PrecedenceScheduler() *Scheduler { return g.sch }

// EventGroup is a set of events that participate in precedence edges as a
// unit: every member of a producing group precedes every member of a
// consuming group. Groups hold events only; ports compose ordering through
// their consumer/producer registrations instead.
type EventGroup struct {
	members []*Scheduleable
}

// NewEventGroup collects events into a group. At least one member is
// required.
func NewEventGroup(events ...*Scheduleable) *EventGroup {
	if len(events) == 0 {
		panic("an event group requires at least one member")
	}
	return &EventGroup{members: events}
}

// Add appends an event to the group and returns the group for chaining.
func (g *EventGroup) Add(ev *Scheduleable) *EventGroup {
	g.members = append(g.members, ev)
	return g
}

// PrecedenceVertices implements Linkable.
func (g *EventGroup) PrecedenceVertices() []*Vertex {
	vs := make([]*Vertex, len(g.members))
	for i, m := range g.members {
		vs[i] = m.vertex
	}
	return vs
}

// PrecedenceScheduler implements Linkable.
func (g *EventGroup) PrecedenceScheduler() *Scheduler {
	return g.members[0].sch
}

// Precedes establishes producer-before-consumer edges between every vertex
// of producer and every vertex of each consumer, left to right, and returns
// the rightmost participant so chains read
// Precedes(a, b, c) == a before b before c.
func Precedes(producer Linkable, consumers ...Linkable) Linkable {
	if len(consumers) == 0 {
		panic("Precedes requires at least one consumer")
	}
	left := producer
	for _, right := range consumers {
		sch := left.PrecedenceScheduler()
		if right.PrecedenceScheduler() != sch {
			panic(fmt.Sprintf("precedence between participants of different schedulers (%v -> %v)",
				labels(left), labels(right)))
		}
		for _, pv := range left.PrecedenceVertices() {
			for _, cv := range right.PrecedenceVertices() {
				sch.dag.link(pv, cv, "Precedes")
			}
		}
		left = right
	}
	return left
}

func labels(l Linkable) []string {
	var out []string
	for _, v := range l.PrecedenceVertices() {
		out = append(out, v.label)
	}
	return out
}
