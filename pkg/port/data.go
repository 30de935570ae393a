package port

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/metrics"
	"github.com/loom-sim/loom/pkg/sched"
)

// DataInPort receives typed values from bound DataOutPorts. Deliveries ride
// an internal payload event; the optional consumer handler sees every value
// as it lands, and the container keeps the last one for polling.
type DataInPort[T any] struct {
	inPortBase
	DataContainer[T]

	payload *sched.PayloadEvent[T]
	handler func(T)
}

// NewDataInPort creates a data In port. With a zero port delay, deliveries
// land in the Tick phase; with a positive delay they land in PortUpdate.
// Use NewDataInPortWithPhase to override.
func NewDataInPort[T any](ps *PortSet, name string, clk *clock.Clock, delayCycles clock.Cycle) (*DataInPort[T], error) {
	phase := sched.PhaseTick
	if delayCycles > 0 {
		phase = sched.PhasePortUpdate
	}
	return NewDataInPortWithPhase[T](ps, name, clk, delayCycles, phase)
}

// NewDataInPortWithPhase creates a data In port delivering in an explicit
// phase.
func NewDataInPortWithPhase[T any](ps *PortSet, name string, clk *clock.Clock, delayCycles clock.Cycle, deliveryPhase sched.Phase) (*DataInPort[T], error) {
	p := &DataInPort[T]{}
	if err := p.initPort(ps, name, In, clk, p); err != nil {
		return nil, err
	}
	p.DataContainer = newDataContainer[T](clk)
	p.deliveryPhase = deliveryPhase
	p.portDelay = delayCycles

	es := sched.NewEventSet(p.node, clk)
	p.payload = sched.NewPayloadEvent(es, name+"_forward_event", deliveryPhase, 0, p.receive)
	p.delivery = p.payload.Proto()
	return p, nil
}

// RegisterConsumerHandler attaches the single handler invoked with every
// delivered value.
func (p *DataInPort[T]) RegisterConsumerHandler(handler func(T)) error {
	if err := p.registerHandlerName("DataInPort"); err != nil {
		return err
	}
	p.handler = handler
	return nil
}

// SetContinuing marks whether pending deliveries keep the scheduler alive.
func (p *DataInPort[T]) SetContinuing(continuing bool) {
	p.portBase.SetContinuing(continuing)
	p.payload.SetContinuing(continuing)
}

// receive is the delivery handler behind the internal payload event.
func (p *DataInPort[T]) receive(v T) {
	p.setData(v)
	if p.handler != nil {
		p.handler(v)
	}
	p.scheduleConsumers()
}

// DataOutPort drives typed values to its bound DataInPorts.
type DataOutPort[T any] struct {
	outPortBase
	ins []*DataInPort[T]
}

// NewDataOutPort creates a data Out port. Zero-delay sends are presumed for
// precedence purposes; disable with SetPresumeZeroDelay.
func NewDataOutPort[T any](ps *PortSet, name string, clk *clock.Clock) (*DataOutPort[T], error) {
	p := &DataOutPort[T]{}
	if err := p.initPort(ps, name, Out, clk, p); err != nil {
		return nil, err
	}
	p.presumeZeroDelay = true
	return p, nil
}

func (p *DataOutPort[T]) bindPeer(in Port) error {
	ip, ok := in.(*DataInPort[T])
	if !ok {
		return fmt.Errorf("cannot bind %q to %q: data port payload types differ",
			p.Location(), in.Location())
	}
	if err := completeBind(p, &p.outPortBase, ip, func(c bool) { ip.payload.SetContinuing(c) }); err != nil {
		return err
	}
	p.ins = append(p.ins, ip)
	return nil
}

// Send drives a value with the port's default (zero) send delay.
func (p *DataOutPort[T]) Send(v T) {
	p.SendDelay(v, 0)
}

// SendDelay drives a value relCycles of the sending clock into the future.
// Each bound In port adds its own port delay; a total delay of zero
// delivers within the current tick.
func (p *DataOutPort[T]) SendDelay(v T, relCycles clock.Cycle) {
	if !p.IsBound() {
		panic(fmt.Sprintf("port %q: send on an unbound port", p.Location()))
	}
	metrics.PortSendsTotal.WithLabelValues("data").Inc()
	for _, ip := range p.ins {
		total := relCycles + ip.portDelay
		if total == 0 {
			ip.checkZeroCycleDelivery()
			if p.sch.IsRunning() && ip.deliveryPhase == p.sch.CurrentPhase() {
				// Same phase, same tick: hand the value over inline.
				ip.receive(v)
				continue
			}
		}
		ip.payload.Schedule(v, total)
	}
}

// IsDriven reports whether any bound In port has an undelivered value.
func (p *DataOutPort[T]) IsDriven() bool {
	for _, ip := range p.ins {
		if ip.payload.IsScheduled() {
			return true
		}
	}
	return false
}

// IsDrivenAt reports whether any bound In port has an undelivered value at
// the given relative cycle.
func (p *DataOutPort[T]) IsDrivenAt(relCycles clock.Cycle) bool {
	for _, ip := range p.ins {
		if ip.payload.IsScheduledAt(relCycles) {
			return true
		}
	}
	return false
}
