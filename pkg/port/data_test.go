package port

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/sched"
)

// TestSingleCycleDataDelivery tests one-cycle port delay delivery: send at
// sender cycle 5 on a 1000-tick clock, handler sees the value once at tick
// 6000 in the PortUpdate phase
func TestSingleCycleDataDelivery(t *testing.T) {
	b, clk := newBench(t, 1000)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, err := NewDataOutPort[int](a.ports, "out_port", clk)
	assert.NoError(t, err)
	in, err := NewDataInPort[int](c.ports, "in_port", clk, 1)
	assert.NoError(t, err)
	assert.Equal(t, sched.PhasePortUpdate, in.DeliveryPhase())

	type arrival struct {
		v     int
		tick  clock.Tick
		phase sched.Phase
	}
	var got []arrival
	assert.NoError(t, in.RegisterConsumerHandler(func(v int) {
		got = append(got, arrival{v, b.sch.CurrentTick(), b.sch.CurrentPhase()})
	}))

	sender := sched.NewEvent(a.es, "sender", sched.PhaseTick, 0, func() {
		out.Send(42)
	})
	assert.NoError(t, Bind(out, in))
	b.finalize(t)

	sender.ScheduleDelay(5)
	b.run(t)

	assert.Equal(t, []arrival{{42, 6000, sched.PhasePortUpdate}}, got)
	assert.True(t, in.DataReceived())
	assert.Equal(t, 42, in.PeekData())
}

// TestZeroCycleInlineDelivery tests a zero-delay send landing within the
// same tick and phase
func TestZeroCycleInlineDelivery(t *testing.T) {
	b, clk := newBench(t, 1000)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, _ := NewDataOutPort[int](a.ports, "out_port", clk)
	in, err := NewDataInPortWithPhase[int](c.ports, "in_port", clk, 0, sched.PhaseTick)
	assert.NoError(t, err)

	var gotTick clock.Tick
	var gotPhase sched.Phase
	calls := 0
	assert.NoError(t, in.RegisterConsumerHandler(func(v int) {
		calls++
		gotTick = b.sch.CurrentTick()
		gotPhase = b.sch.CurrentPhase()
	}))

	sender := sched.NewEvent(a.es, "sender", sched.PhaseTick, 0, func() {
		out.Send(7)
		// Inline delivery completed before Send returned.
		assert.Equal(t, 1, calls)
		assert.True(t, in.DataReceivedThisCycle())
	})
	assert.NoError(t, out.RegisterProducingEvent(sender))
	assert.NoError(t, Bind(out, in))
	b.finalize(t)

	sender.ScheduleDelay(3)
	b.run(t)

	assert.Equal(t, 1, calls)
	assert.Equal(t, clock.Tick(3000), gotTick)
	assert.Equal(t, sched.PhaseTick, gotPhase)
}

// TestZeroCycleToLaterPhase tests a zero-total-delay send scheduled into a
// later phase of the same tick
func TestZeroCycleToLaterPhase(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, _ := NewDataOutPort[int](a.ports, "out_port", clk)
	in, err := NewDataInPortWithPhase[int](c.ports, "in_port", clk, 0, sched.PhasePostTick)
	assert.NoError(t, err)

	var gotPhase sched.Phase
	assert.NoError(t, in.RegisterConsumerHandler(func(v int) {
		gotPhase = b.sch.CurrentPhase()
	}))

	sender := sched.NewEvent(a.es, "sender", sched.PhaseTick, 0, func() {
		out.Send(1)
	})
	assert.NoError(t, Bind(out, in))
	b.finalize(t)

	sender.ScheduleDelay(1)
	b.run(t)
	assert.Equal(t, sched.PhasePostTick, gotPhase)
}

// TestZeroCycleToEarlierPhasePanics tests the unreachable-phase send error
func TestZeroCycleToEarlierPhasePanics(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, _ := NewDataOutPort[int](a.ports, "out_port", clk)
	in, err := NewDataInPortWithPhase[int](c.ports, "in_port", clk, 0, sched.PhaseUpdate)
	assert.NoError(t, err)
	assert.NoError(t, in.RegisterConsumerHandler(func(v int) {}))

	sender := sched.NewEvent(a.es, "sender", sched.PhaseTick, 0, func() {
		out.Send(1)
	})
	assert.NoError(t, Bind(out, in))
	b.finalize(t)

	sender.ScheduleDelay(1)
	assert.Panics(t, func() { _ = b.sch.Run(sched.RunForever, false) })
}

// TestFanOutDelivery tests one Out port bound to several In ports
func TestFanOutDelivery(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, _ := NewDataOutPort[int](a.ports, "out_port", clk)
	in1, _ := NewDataInPort[int](c.ports, "in_port1", clk, 1)
	in2, _ := NewDataInPort[int](c.ports, "in_port2", clk, 2)

	var got1, got2 []int
	assert.NoError(t, in1.RegisterConsumerHandler(func(v int) { got1 = append(got1, v) }))
	assert.NoError(t, in2.RegisterConsumerHandler(func(v int) { got2 = append(got2, v) }))

	sender := sched.NewEvent(a.es, "sender", sched.PhaseTick, 0, func() {
		out.Send(9)
	})
	assert.NoError(t, Bind(out, in1))
	assert.NoError(t, Bind(out, in2))
	b.finalize(t)

	sender.ScheduleDelay(1)
	b.run(t)

	assert.Equal(t, []int{9}, got1)
	assert.Equal(t, []int{9}, got2)
}

// TestPullDataClearsValidity tests the container pull/peek contract
func TestPullDataClearsValidity(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, _ := NewDataOutPort[int](a.ports, "out_port", clk)
	in, _ := NewDataInPort[int](c.ports, "in_port", clk, 1)
	sender := sched.NewEvent(a.es, "sender", sched.PhaseTick, 0, func() { out.Send(5) })
	assert.NoError(t, Bind(out, in))
	b.finalize(t)

	sender.ScheduleDelay(1)
	b.run(t)

	assert.True(t, in.DataReceived())
	assert.Equal(t, 5, in.PullData())
	assert.False(t, in.DataReceived())
	assert.Panics(t, func() { in.PullData() })
}

// TestIsDriven tests pending-delivery queries on the Out port
func TestIsDriven(t *testing.T) {
	b, clk := newBench(t, 1)
	a := newUnit(t, b.top, "a", clk)
	c := newUnit(t, b.top, "c", clk)

	out, _ := NewDataOutPort[int](a.ports, "out_port", clk)
	in, _ := NewDataInPort[int](c.ports, "in_port", clk, 2)
	assert.NoError(t, Bind(out, in))
	b.finalize(t)

	assert.False(t, out.IsDriven())
	out.Send(3)
	assert.True(t, out.IsDriven())
	assert.True(t, out.IsDrivenAt(2))
	assert.False(t, out.IsDrivenAt(1))
	b.run(t)
	assert.False(t, out.IsDriven())
}
