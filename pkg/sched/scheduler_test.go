package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/tree"
)

func init() {
	log.Init(log.Config{Level: log.ErrorLevel})
}

// testBench is the minimal scheduler + clock + event-set fixture.
type testBench struct {
	sch  *Scheduler
	mgr  *clock.Manager
	root *clock.Clock
	clk  *clock.Clock
	top  *tree.Node
	es   *EventSet
}

// newBench builds a bench whose clock has the given period in ticks.
func newBench(t *testing.T, periodTicks uint64) *testBench {
	t.Helper()
	b := &testBench{sch: NewScheduler()}
	b.mgr = clock.NewManager(b.sch)
	var err error
	b.root, err = b.mgr.MakeRoot("root")
	assert.NoError(t, err)
	b.clk, err = b.mgr.MakeClock("clk", b.root, periodTicks, 1)
	assert.NoError(t, err)
	_, err = b.mgr.Normalize()
	assert.NoError(t, err)
	b.top = tree.NewRoot("top", "test top")
	b.es = NewEventSet(b.top, b.clk)
	return b
}

func (b *testBench) finalize(t *testing.T) {
	t.Helper()
	assert.NoError(t, b.sch.Finalize())
}

func (b *testBench) run(t *testing.T) {
	t.Helper()
	assert.NoError(t, b.sch.Run(RunForever, false))
}

// TestEventFiresAtScheduledTick tests the basic contract: one handler call
// at the scheduled tick and phase
func TestEventFiresAtScheduledTick(t *testing.T) {
	b := newBench(t, 1000)

	var fired []clock.Tick
	var phases []Phase
	ev := NewEvent(b.es, "ev", PhaseTick, 0, func() {
		fired = append(fired, b.sch.CurrentTick())
		phases = append(phases, b.sch.CurrentPhase())
	})
	b.finalize(t)

	ev.ScheduleDelay(5)
	b.run(t)

	assert.Equal(t, []clock.Tick{5000}, fired)
	assert.Equal(t, []Phase{PhaseTick}, phases)
}

// TestRunBeforeFinalizeFails tests that Run requires Finalize
func TestRunBeforeFinalizeFails(t *testing.T) {
	b := newBench(t, 1)
	assert.Error(t, b.sch.Run(RunForever, false))
}

// TestScheduleBeforeFinalizePanics tests the unfinalized-schedule error
func TestScheduleBeforeFinalizePanics(t *testing.T) {
	b := newBench(t, 1)
	ev := NewEvent(b.es, "ev", PhaseTick, 0, func() {})
	assert.Panics(t, func() { ev.Schedule() })
}

// TestPhaseOrderWithinTick tests that phases drain in declaration order
func TestPhaseOrderWithinTick(t *testing.T) {
	b := newBench(t, 1)

	var order []Phase
	mk := func(name string, p Phase) *Scheduleable {
		return NewEvent(b.es, name, p, 0, func() {
			order = append(order, p)
		})
	}
	evs := []*Scheduleable{
		mk("post_tick", PhasePostTick),
		mk("tick", PhaseTick),
		mk("collection", PhaseCollection),
		mk("flush", PhaseFlush),
		mk("port_update", PhasePortUpdate),
		mk("update", PhaseUpdate),
		mk("trigger", PhaseTrigger),
	}
	b.finalize(t)

	for _, ev := range evs {
		ev.ScheduleDelay(3)
	}
	b.run(t)

	assert.Equal(t, []Phase{
		PhaseTrigger, PhaseUpdate, PhasePortUpdate, PhaseFlush,
		PhaseCollection, PhaseTick, PhasePostTick,
	}, order)
}

// TestTickOrder tests strict total order across ticks
func TestTickOrder(t *testing.T) {
	b := newBench(t, 10)

	var order []clock.Tick
	ev := NewEvent(b.es, "ev", PhaseTick, 0, func() {
		order = append(order, b.sch.CurrentTick())
	})
	b.finalize(t)

	ev.ScheduleDelay(7)
	ev.ScheduleDelay(2)
	ev.ScheduleDelay(5)
	b.run(t)

	assert.Equal(t, []clock.Tick{20, 50, 70}, order)
}

// TestSameTickPhaseEarlierPanics tests the earlier-phase scheduling error
func TestSameTickPhaseEarlierPanics(t *testing.T) {
	b := newBench(t, 1)

	early := NewEvent(b.es, "early", PhaseUpdate, 0, func() {})
	late := NewEvent(b.es, "late", PhaseTick, 0, func() {
		early.ScheduleDelay(0)
	})
	b.finalize(t)

	late.ScheduleDelay(1)
	assert.Panics(t, func() { _ = b.sch.Run(RunForever, false) })
}

// TestHandlerSchedulesLaterPhaseSameTick tests same-tick forward scheduling
func TestHandlerSchedulesLaterPhaseSameTick(t *testing.T) {
	b := newBench(t, 1)

	var got []string
	post := NewEvent(b.es, "post", PhasePostTick, 0, func() {
		got = append(got, "post")
	})
	tick := NewEvent(b.es, "tick", PhaseTick, 0, func() {
		got = append(got, "tick")
		post.ScheduleDelay(0)
	})
	b.finalize(t)

	tick.ScheduleDelay(1)
	b.run(t)
	assert.Equal(t, []string{"tick", "post"}, got)
}

// TestCancelSkipsEntry tests that a cancelled occurrence never fires
func TestCancelSkipsEntry(t *testing.T) {
	b := newBench(t, 1)

	count := 0
	ev := NewEvent(b.es, "ev", PhaseTick, 0, func() { count++ })
	b.finalize(t)

	ev.ScheduleDelay(1)
	ev.ScheduleDelay(2)
	assert.True(t, ev.IsScheduled())
	assert.True(t, ev.IsScheduledAt(1))
	assert.Equal(t, uint32(1), ev.CancelAt(1))
	assert.False(t, ev.IsScheduledAt(1))
	b.run(t)

	assert.Equal(t, 1, count)
}

// TestCancelAll tests cancelling every occurrence
func TestCancelAll(t *testing.T) {
	b := newBench(t, 1)

	count := 0
	ev := NewEvent(b.es, "ev", PhaseTick, 0, func() { count++ })
	b.finalize(t)

	ev.ScheduleDelay(1)
	ev.ScheduleDelay(2)
	ev.ScheduleDelay(3)
	assert.Equal(t, uint32(3), ev.Cancel())
	b.run(t)

	assert.Equal(t, 0, count)
	assert.False(t, ev.IsScheduled())
}

// TestTickBudget tests that Run stops at the budget boundary
func TestTickBudget(t *testing.T) {
	b := newBench(t, 1)

	var fired []clock.Tick
	ev := NewEvent(b.es, "ev", PhaseTick, 0, func() {
		fired = append(fired, b.sch.CurrentTick())
	})
	b.finalize(t)

	ev.ScheduleDelay(5)
	ev.ScheduleDelay(15)
	assert.NoError(t, b.sch.Run(10, false))
	assert.Equal(t, []clock.Tick{5}, fired)
	assert.Equal(t, clock.Tick(10), b.sch.CurrentTick())

	// A second run picks up the rest.
	assert.NoError(t, b.sch.Run(RunForever, false))
	assert.Equal(t, []clock.Tick{5, 15}, fired)
}

// TestExactingAdvancesThroughBudget tests exacting runs burn the full budget
func TestExactingAdvancesThroughBudget(t *testing.T) {
	b := newBench(t, 1)

	ev := NewEvent(b.es, "ev", PhaseTick, 0, func() {})
	b.finalize(t)

	ev.ScheduleDelay(3)
	assert.NoError(t, b.sch.Run(100, true))
	assert.Equal(t, clock.Tick(100), b.sch.CurrentTick())
}

// TestNonContinuingDoesNotKeepAlive tests the continuing keep-alive rule
func TestNonContinuingDoesNotKeepAlive(t *testing.T) {
	b := newBench(t, 1)

	heartbeats := 0
	heartbeat := NewEvent(b.es, "heartbeat", PhaseTick, 0, func() { heartbeats++ })
	heartbeat.SetContinuing(false)

	workCount := 0
	work := NewEvent(b.es, "work", PhaseTick, 0, func() { workCount++ })
	b.finalize(t)

	// The heartbeat alone must not keep the scheduler running.
	heartbeat.ScheduleDelay(1)
	heartbeat.ScheduleDelay(50)
	work.ScheduleDelay(5)
	b.run(t)

	assert.Equal(t, 1, workCount)
	// The far-out heartbeat was beyond the last continuing tick.
	assert.Equal(t, 1, heartbeats)
}

// TestFireHookObservesEverything tests the observer hook surface
func TestFireHookObservesEverything(t *testing.T) {
	b := newBench(t, 1)

	type obs struct {
		label string
		phase Phase
		tick  clock.Tick
		seq   uint64
	}
	var seen []obs
	b.sch.RegisterFireHook(func(label string, phase Phase, tick clock.Tick, seq uint64) {
		seen = append(seen, obs{label, phase, tick, seq})
	})

	ev := NewEvent(b.es, "observed", PhaseTick, 0, func() {})
	b.finalize(t)

	ev.ScheduleDelay(1)
	ev.ScheduleDelay(2)
	b.run(t)

	assert.Len(t, seen, 2)
	assert.Equal(t, obs{"observed", PhaseTick, 1, 0}, seen[0])
	assert.Equal(t, obs{"observed", PhaseTick, 2, 1}, seen[1])
}

// TestDagOrderWithinPhase tests topological drain order and determinism
func TestDagOrderWithinPhase(t *testing.T) {
	b := newBench(t, 1)

	var order []string
	mk := func(name string) *Scheduleable {
		return NewEvent(b.es, name, PhaseTick, 0, func() {
			order = append(order, name)
		})
	}
	// c -> a -> b despite alphabetical tie-break preferring a, b, c.
	a := mk("a")
	bb := mk("b")
	c := mk("c")
	Precedes(c, a, bb)
	b.finalize(t)

	a.ScheduleDelay(1)
	bb.ScheduleDelay(1)
	c.ScheduleDelay(1)
	b.run(t)

	assert.Equal(t, []string{"c", "a", "b"}, order)
}

// TestDagCycleFailsFinalize tests cycle detection with member listing
func TestDagCycleFailsFinalize(t *testing.T) {
	b := newBench(t, 1)

	a := NewEvent(b.es, "cyc_a", PhaseTick, 0, func() {})
	c := NewEvent(b.es, "cyc_b", PhaseTick, 0, func() {})
	Precedes(a, c)
	Precedes(c, a)

	err := b.sch.Finalize()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cyc_a")
	assert.Contains(t, err.Error(), "cyc_b")
}

// TestPhaseMismatchPanics tests that cross-phase edges are rejected
func TestPhaseMismatchPanics(t *testing.T) {
	b := newBench(t, 1)

	up := NewEvent(b.es, "up", PhaseUpdate, 0, func() {})
	tk := NewEvent(b.es, "tk", PhaseTick, 0, func() {})
	assert.Panics(t, func() { Precedes(up, tk) })
}

// TestGlobalOrderingPoint tests the rendezvous vertex between events
func TestGlobalOrderingPoint(t *testing.T) {
	b := newBench(t, 1)

	var order []string
	mk := func(name string) *Scheduleable {
		return NewEvent(b.es, name, PhaseTick, 0, func() {
			order = append(order, name)
		})
	}
	// z_before and y_before rendezvous ahead of a_after.
	before1 := mk("z_before")
	before2 := mk("y_before")
	after := mk("a_after")
	gop := b.sch.NewOrderingPoint("rendezvous")
	Precedes(before1, gop)
	Precedes(before2, gop)
	Precedes(gop, after)
	b.finalize(t)

	after.ScheduleDelay(1)
	before1.ScheduleDelay(1)
	before2.ScheduleDelay(1)
	b.run(t)

	assert.Len(t, order, 3)
	assert.Equal(t, "a_after", order[2])
}

// TestEventGroupCrossProduct tests group >> group expansion
func TestEventGroupCrossProduct(t *testing.T) {
	b := newBench(t, 1)

	var order []string
	mk := func(name string) *Scheduleable {
		return NewEvent(b.es, name, PhaseTick, 0, func() {
			order = append(order, name)
		})
	}
	p0, p1 := mk("z_prod0"), mk("y_prod1")
	c0, c1 := mk("b_cons0"), mk("a_cons1")
	Precedes(NewEventGroup(p0, p1), NewEventGroup(c0, c1))
	b.finalize(t)

	for _, ev := range []*Scheduleable{c0, c1, p0, p1} {
		ev.ScheduleDelay(1)
	}
	b.run(t)

	assert.Len(t, order, 4)
	// Both producers drain before either consumer.
	assert.ElementsMatch(t, []string{"z_prod0", "y_prod1"}, order[:2])
	assert.ElementsMatch(t, []string{"b_cons0", "a_cons1"}, order[2:])
}

// TestReproducibleOrder tests that unrelated same-phase events drain in a
// fixed label order
func TestReproducibleOrder(t *testing.T) {
	for trial := 0; trial < 3; trial++ {
		b := newBench(t, 1)

		var order []string
		mk := func(name string) *Scheduleable {
			return NewEvent(b.es, name, PhaseTick, 0, func() {
				order = append(order, name)
			})
		}
		evs := []*Scheduleable{mk("delta"), mk("alpha"), mk("charlie"), mk("bravo")}
		b.finalize(t)
		// Schedule in varying orders; drain order must not care.
		for i := range evs {
			evs[(i+trial)%len(evs)].ScheduleDelay(1)
		}
		b.run(t)
		assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, order)
	}
}
