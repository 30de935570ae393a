package port

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/metrics"
	"github.com/loom-sim/loom/pkg/sched"
)

// SyncInPort receives typed values across a clock-domain boundary.
// Arrivals snap to this port's posedges, at most one per receiver cycle,
// and the port latches a ready/valid backpressure signal: a not-ready
// receiver has arrivals recirculated until ready takes effect.
//
// The ready latch is one cycle deep. Ready driven on cycle M is seen by
// senders from cycle M+1; both the current and previous values start at the
// configured initial ready state.
type SyncInPort[T any] struct {
	inPortBase
	DataContainer[T]

	payload *sched.PayloadEvent[T]
	handler func(T)

	curReady     bool
	prevReady    bool
	setReadyTick clock.Tick

	prevArrival      clock.Tick
	prevArrivalValid bool
	numInFlight      int
}

// NewSyncInPort creates a sync In port delivering in the PortUpdate phase.
// The port delay defaults to zero; set it before binding with SetPortDelay.
func NewSyncInPort[T any](ps *PortSet, name string, clk *clock.Clock) (*SyncInPort[T], error) {
	return NewSyncInPortWithPhase[T](ps, name, clk, sched.PhasePortUpdate)
}

// NewSyncInPortWithPhase creates a sync In port delivering in an explicit
// phase.
func NewSyncInPortWithPhase[T any](ps *PortSet, name string, clk *clock.Clock, deliveryPhase sched.Phase) (*SyncInPort[T], error) {
	p := &SyncInPort[T]{curReady: true, prevReady: true}
	if err := p.initPort(ps, name, In, clk, p); err != nil {
		return nil, err
	}
	p.sync = true
	p.DataContainer = newDataContainer[T](clk)
	p.deliveryPhase = deliveryPhase

	es := sched.NewEventSet(p.node, clk)
	p.payload = sched.NewPayloadEvent(es, name+"_forward_event", deliveryPhase, 0, p.forwardData)
	p.delivery = p.payload.Proto()
	return p, nil
}

// RegisterConsumerHandler attaches the single handler invoked with every
// delivered value.
func (p *SyncInPort[T]) RegisterConsumerHandler(handler func(T)) error {
	if err := p.registerHandlerName("SyncInPort"); err != nil {
		return err
	}
	p.handler = handler
	return nil
}

// SetContinuing marks whether pending arrivals keep the scheduler alive.
func (p *SyncInPort[T]) SetContinuing(continuing bool) {
	p.portBase.SetContinuing(continuing)
	p.payload.SetContinuing(continuing)
}

// SetInitialReadyState seeds both sides of the ready latch before
// simulation begins.
func (p *SyncInPort[T]) SetInitialReadyState(ready bool) {
	if p.sch.IsRunning() || p.sch.CurrentTick() != 0 {
		panic(fmt.Sprintf("port %q: initial ready state must be set before simulation starts", p.Location()))
	}
	p.curReady = ready
	p.prevReady = ready
}

// SetReady drives the backpressure signal. Senders observe the value one
// cycle later. Driving different values twice in one tick is an error.
func (p *SyncInPort[T]) SetReady(ready bool) {
	cur := p.sch.CurrentTick()
	switch {
	case cur > p.setReadyTick:
		p.setReadyTick = cur
		p.prevReady = p.curReady
		p.curReady = ready
	case cur == p.setReadyTick:
		if ready != p.curReady {
			panic(fmt.Sprintf("port %q: ready driven twice in one cycle with differing values", p.Location()))
		}
	default:
		panic(fmt.Sprintf("port %q: ready driven for a past tick", p.Location()))
	}
}

// Ready returns the value most recently driven, unlatched.
func (p *SyncInPort[T]) Ready() bool { return p.curReady }

// receiveDelayTicks resolves the port delay into receiver ticks.
func (p *SyncInPort[T]) receiveDelayTicks() clock.Tick {
	return p.clk.CycleToTick(p.portDelay)
}

// latchedReady is the sender-visible ready value at curTick: the previous
// value if ready changed this tick, the current value otherwise.
func (p *SyncInPort[T]) latchedReady(curTick clock.Tick) bool {
	if (p.setReadyTick == curTick && !p.prevReady) ||
		(p.setReadyTick < curTick && !p.curReady) {
		return false
	}
	return true
}

// rawReady returns the unlatched ready value, only meaningful for
// zero-cycle connections.
func (p *SyncInPort[T]) rawReady() bool {
	if p.portDelay != 0 {
		panic(fmt.Sprintf("port %q: raw ready is only defined for zero-cycle connections", p.Location()))
	}
	return p.curReady
}

// couldAccept reports whether a send with the given delay would be
// deliverable: the arrival must land after the previous arrival and the
// latched ready must allow it.
func (p *SyncInPort[T]) couldAccept(sendClk *clock.Clock, sendDelayCycles clock.Cycle) bool {
	cur := p.sch.CurrentTick()
	delay := clock.CrossingDelay(cur, sendClk.CycleToTick(sendDelayCycles), p.receiveDelayTicks(), p.clk)
	abs := cur + delay

	if p.setReadyTick > cur {
		panic(fmt.Sprintf("port %q: ready was driven in the future", p.Location()))
	}
	arrivalFree := !p.prevArrivalValid || abs > p.prevArrival
	return arrivalFree && p.latchedReady(cur)
}

// computeSendToReceiveDelay returns the tick delay from the current tick to
// the arrival posedge, optionally sliding past a previous arrival.
func (p *SyncInPort[T]) computeSendToReceiveDelay(sendClk *clock.Clock, sendDelayCycles clock.Cycle,
	allowSlide bool, prevArrival clock.Tick, prevArrivalValid bool) clock.Tick {

	cur := p.sch.CurrentTick()
	delay := clock.CrossingDelay(cur, sendClk.CycleToTick(sendDelayCycles), p.receiveDelayTicks(), p.clk)
	abs := cur + delay

	// Slide pushes this send out past the previous arrival rather than
	// faulting on sending too early.
	if allowSlide && prevArrivalValid && abs <= prevArrival {
		abs = prevArrival + p.clk.Period()
	}

	if abs%p.clk.Period() != 0 {
		panic(fmt.Sprintf("port %q: arrival tick %d misses a posedge", p.Location(), abs))
	}
	return abs - cur
}

// computeReverseSendToReceiveDelay answers when a beat arriving at
// arrivalTick must have been sent.
func (p *SyncInPort[T]) computeReverseSendToReceiveDelay(sendClk *clock.Clock, sendDelayCycles clock.Cycle,
	arrivalTick clock.Tick) clock.Tick {
	return clock.ReverseCrossingDelay(arrivalTick, sendClk.CycleToTick(sendDelayCycles), sendClk,
		p.receiveDelayTicks(), p.clk)
}

// sendInternal schedules one arrival. Called from the bound SyncOutPort and
// from recirculation.
func (p *SyncInPort[T]) sendInternal(v T, sendClk *clock.Clock, sendDelayCycles clock.Cycle, allowSlide bool) clock.Tick {
	delay := p.computeSendToReceiveDelay(sendClk, sendDelayCycles, allowSlide, p.prevArrival, p.prevArrivalValid)
	cur := p.sch.CurrentTick()
	abs := cur + delay

	// Only one item can be received per cycle.
	if p.prevArrivalValid && abs <= p.prevArrival {
		panic(fmt.Sprintf(
			"port %q: arrival scheduled for tick %d, not later than the previous arrival at tick %d; "+
				"sync In ports accept at most one arrival per cycle",
			p.Location(), abs, p.prevArrival))
	}
	p.prevArrival = abs
	p.prevArrivalValid = true

	if delay == 0 {
		p.checkZeroCycleDelivery()
	}
	h := p.payload.PreparePayload(v)
	h.ScheduleRelativeTick(delay)
	h.Release()
	p.numInFlight++
	return delay
}

// forwardData is the delivery handler: recirculate when the latched ready
// says the receiver cannot take the value, deliver otherwise.
func (p *SyncInPort[T]) forwardData(v T) {
	cur := p.sch.CurrentTick()
	if p.setReadyTick > cur {
		panic(fmt.Sprintf("port %q: ready was driven in the future", p.Location()))
	}
	if p.numInFlight <= 0 {
		panic(fmt.Sprintf("port %q: delivery with no arrivals in flight", p.Location()))
	}
	p.numInFlight--

	if !p.latchedReady(cur) {
		metrics.SyncRecirculationsTotal.Inc()
		p.logger.Debug().
			Uint64("cycle", uint64(p.clk.CurrentCycle())).
			Msg("Receiver not ready, recirculating")
		// Slide past any arrival already in flight so the recirculated value
		// takes the next free receiver cycle.
		p.sendInternal(v, p.clk, 0, true)
		return
	}

	p.setData(v)
	if p.handler != nil {
		p.handler(v)
	}
	p.scheduleConsumers()
}

// SyncOutPort drives typed values across a clock-domain boundary to a
// single bound SyncInPort. Sends must happen on the sender's posedge, at
// most one per sender cycle.
type SyncOutPort[T any] struct {
	outPortBase
	in *SyncInPort[T]

	prevSendCycle clock.Cycle
	prevSendValid bool
}

// NewSyncOutPort creates a sync Out port on the sending clock.
func NewSyncOutPort[T any](ps *PortSet, name string, clk *clock.Clock) (*SyncOutPort[T], error) {
	p := &SyncOutPort[T]{}
	if err := p.initPort(ps, name, Out, clk, p); err != nil {
		return nil, err
	}
	p.sync = true
	p.presumeZeroDelay = true
	return p, nil
}

func (p *SyncOutPort[T]) bindPeer(in Port) error {
	ip, ok := in.(*SyncInPort[T])
	if !ok {
		return fmt.Errorf("cannot bind %q to %q: sync port payload types differ",
			p.Location(), in.Location())
	}
	if p.in != nil {
		return fmt.Errorf("port %q: sync ports support a single binding, already bound to %q",
			p.Location(), p.in.Location())
	}
	if err := completeBind(p, &p.outPortBase, ip, func(c bool) { ip.payload.SetContinuing(c) }); err != nil {
		return err
	}
	p.in = ip
	return nil
}

// Send drives a value with zero send delay and returns the delay in ticks
// until it arrives.
func (p *SyncOutPort[T]) Send(v T) clock.Tick {
	return p.send(v, 0, false)
}

// SendDelay drives a value sendDelayCycles of the sending clock into the
// future.
func (p *SyncOutPort[T]) SendDelay(v T, sendDelayCycles clock.Cycle) clock.Tick {
	return p.send(v, sendDelayCycles, false)
}

// SendAllowSlide drives a value and lets the arrival slide past the
// previous arrival instead of faulting when the receiver cycle collides.
func (p *SyncOutPort[T]) SendAllowSlide(v T, sendDelayCycles clock.Cycle) clock.Tick {
	return p.send(v, sendDelayCycles, true)
}

func (p *SyncOutPort[T]) send(v T, sendDelayCycles clock.Cycle, allowSlide bool) clock.Tick {
	if p.in == nil {
		panic(fmt.Sprintf("port %q: send on an unbound port", p.Location()))
	}
	if !p.clk.IsPosedge() {
		panic(fmt.Sprintf("port %q: sends must occur on the sender's posedge", p.Location()))
	}

	sendCycle := p.clk.CurrentCycle() + sendDelayCycles
	if p.prevSendValid && sendCycle <= p.prevSendCycle {
		panic(fmt.Sprintf(
			"port %q: send at cycle %d is not later than the previous send cycle %d; "+
				"sync Out ports send at most once per cycle",
			p.Location(), sendCycle, p.prevSendCycle))
	}

	metrics.PortSendsTotal.WithLabelValues("sync").Inc()
	delay := p.in.sendInternal(v, p.clk, sendDelayCycles, allowSlide)

	p.prevSendCycle = sendCycle
	p.prevSendValid = true
	return delay
}

// IsReady reports whether a send with the given delay would be accepted,
// accounting for both latched ready and the one-arrival-per-cycle rule.
func (p *SyncOutPort[T]) IsReady(sendDelayCycles clock.Cycle) bool {
	if p.in == nil {
		panic(fmt.Sprintf("port %q: ready check on an unbound port", p.Location()))
	}
	return p.in.couldAccept(p.clk, sendDelayCycles)
}

// IsReadyPS returns the present-state ready signal alone, ignoring pending
// arrivals. Zero-cycle connections only.
func (p *SyncOutPort[T]) IsReadyPS() bool {
	if p.in == nil {
		panic(fmt.Sprintf("port %q: ready check on an unbound port", p.Location()))
	}
	return p.in.rawReady()
}

// NextFreeSendCycle computes the relative cycle at which an N+1th beat
// could be sent, assuming numBeats beats stream out starting at the current
// cycle plus sendDelayCycles, each sliding behind the last.
func (p *SyncOutPort[T]) NextFreeSendCycle(sendDelayCycles clock.Cycle, numBeats uint32) clock.Cycle {
	if p.in == nil {
		panic(fmt.Sprintf("port %q: send query on an unbound port", p.Location()))
	}
	if !p.clk.IsPosedge() {
		panic(fmt.Sprintf("port %q: send queries must occur on the sender's posedge", p.Location()))
	}

	curCycle := p.clk.CurrentCycle()
	curTick := p.clk.CurrentTick()

	prevArrival := p.in.prevArrival
	prevValid := p.in.prevArrivalValid

	// Walk one beat past the stream to find where the next beat would land.
	for beat := uint32(0); beat <= numBeats; beat++ {
		delay := p.in.computeSendToReceiveDelay(p.clk, sendDelayCycles+clock.Cycle(beat), true, prevArrival, prevValid)
		prevArrival = curTick + delay
		prevValid = true
	}

	rev := p.in.computeReverseSendToReceiveDelay(p.clk, sendDelayCycles, prevArrival)
	sendTick := prevArrival - rev

	nextSendCycle := p.clk.TickToCycle(sendTick)
	if nextSendCycle <= curCycle {
		panic(fmt.Sprintf("port %q: next free send cycle %d does not follow the current cycle %d",
			p.Location(), nextSendCycle, curCycle))
	}
	return nextSendCycle - curCycle
}
