package port

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/metrics"
	"github.com/loom-sim/loom/pkg/sched"
)

// SignalInPort receives dataless pulses. Scheduled deliveries ride an
// internal unique event, so any number of them landing in the same tick
// collapse into one handler call; a zero-delay send delivered inline calls
// the handler each time.
type SignalInPort struct {
	inPortBase
	DataContainer[bool]

	delivered *sched.Scheduleable
	handler   func()
}

// NewSignalInPort creates a signal In port. With a zero port delay,
// deliveries land in the Tick phase; with a positive delay they land in
// PortUpdate. Use NewSignalInPortWithPhase to override.
func NewSignalInPort(ps *PortSet, name string, clk *clock.Clock, delayCycles clock.Cycle) (*SignalInPort, error) {
	phase := sched.PhaseTick
	if delayCycles > 0 {
		phase = sched.PhasePortUpdate
	}
	return NewSignalInPortWithPhase(ps, name, clk, delayCycles, phase)
}

// NewSignalInPortWithPhase creates a signal In port delivering in an
// explicit phase.
func NewSignalInPortWithPhase(ps *PortSet, name string, clk *clock.Clock, delayCycles clock.Cycle, deliveryPhase sched.Phase) (*SignalInPort, error) {
	p := &SignalInPort{}
	if err := p.initPort(ps, name, In, clk, p); err != nil {
		return nil, err
	}
	p.DataContainer = newDataContainer[bool](clk)
	p.deliveryPhase = deliveryPhase
	p.portDelay = delayCycles

	es := sched.NewEventSet(p.node, clk)
	p.delivered = sched.NewUniqueEvent(es, name+"_forward_event", deliveryPhase, 0, p.receive)
	p.delivery = p.delivered
	return p, nil
}

// RegisterConsumerHandler attaches the single handler invoked on every
// delivered pulse.
func (p *SignalInPort) RegisterConsumerHandler(handler func()) error {
	if err := p.registerHandlerName("SignalInPort"); err != nil {
		return err
	}
	p.handler = handler
	return nil
}

// SetContinuing marks whether pending pulses keep the scheduler alive.
func (p *SignalInPort) SetContinuing(continuing bool) {
	p.portBase.SetContinuing(continuing)
	p.delivered.SetContinuing(continuing)
}

func (p *SignalInPort) receive() {
	p.setData(true)
	if p.handler != nil {
		p.handler()
	}
	p.scheduleConsumers()
}

// SignalOutPort drives dataless pulses to its bound SignalInPorts.
type SignalOutPort struct {
	outPortBase
	ins []*SignalInPort
}

// NewSignalOutPort creates a signal Out port.
func NewSignalOutPort(ps *PortSet, name string, clk *clock.Clock) (*SignalOutPort, error) {
	p := &SignalOutPort{}
	if err := p.initPort(ps, name, Out, clk, p); err != nil {
		return nil, err
	}
	p.presumeZeroDelay = true
	return p, nil
}

func (p *SignalOutPort) bindPeer(in Port) error {
	ip, ok := in.(*SignalInPort)
	if !ok {
		return fmt.Errorf("cannot bind %q to %q: peer is not a signal In port",
			p.Location(), in.Location())
	}
	if err := completeBind(p, &p.outPortBase, ip, func(c bool) { ip.delivered.SetContinuing(c) }); err != nil {
		return err
	}
	p.ins = append(p.ins, ip)
	return nil
}

// Send drives a pulse relCycles of the sending clock into the future. Each
// bound In port adds its own port delay; a total delay of zero delivers
// within the current tick.
func (p *SignalOutPort) Send(relCycles clock.Cycle) {
	if !p.IsBound() {
		panic(fmt.Sprintf("port %q: send on an unbound port", p.Location()))
	}
	metrics.PortSendsTotal.WithLabelValues("signal").Inc()
	for _, ip := range p.ins {
		total := relCycles + ip.portDelay
		if total == 0 {
			ip.checkZeroCycleDelivery()
			if p.sch.IsRunning() && ip.deliveryPhase == p.sch.CurrentPhase() {
				ip.receive()
				continue
			}
		}
		ip.delivered.ScheduleDelay(total)
	}
}
