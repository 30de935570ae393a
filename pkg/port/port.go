package port

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/log"
	"github.com/loom-sim/loom/pkg/sched"
	"github.com/loom-sim/loom/pkg/tree"
)

// Direction tells which way traffic flows through a port.
type Direction int

const (
	// In ports receive traffic.
	In Direction = iota
	// Out ports drive traffic.
	Out
	// Unknown is the direction of an unresolved exported port.
	Unknown

	numDirections int = iota
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	}
	return "unknown"
}

// Port is a named endpoint on a component. Concrete ports come in data,
// signal and sync flavors; exported ports are indirections onto any of
// them.
type Port interface {
	// Name returns the port's name within its port set.
	Name() string
	// Node returns the port's tree node.
	Node() *tree.Node
	// Location returns the dotted tree path of the port.
	Location() string
	// Direction returns which way traffic flows.
	Direction() Direction
	// Clock returns the port's clock domain.
	Clock() *clock.Clock
	// IsBound reports whether the port has at least one peer.
	IsBound() bool
	// BoundPorts returns the bound peers.
	BoundPorts() []Port
	// SetContinuing marks whether deliveries pending on this port keep the
	// scheduler alive.
	SetContinuing(continuing bool)
	// ParticipateInAutoPrecedence opts the port in or out of automatic
	// precedence establishment.
	ParticipateInAutoPrecedence(participate bool)
	// DoesParticipateInAutoPrecedence reports the auto-precedence opt-in.
	DoesParticipateInAutoPrecedence() bool

	// resolve follows exported-port indirections to a concrete port.
	resolve() (Port, error)
	// isSyncPort reports whether the port crosses clock domains.
	isSyncPort() bool

	base() *portBase
}

// binder is implemented by every Out port type: it type-checks the peer and
// completes the pairing.
type binder interface {
	bindPeer(in Port) error
}

// inPort is the package-internal view of an In port used during binding.
type inPort interface {
	Port
	inBase() *inPortBase
}

// portBase carries the state common to every port.
type portBase struct {
	name       string
	node       *tree.Node
	dir        Direction
	clk        *clock.Clock
	sch        *sched.Scheduler
	bound      []Port
	continuing bool
	autoPrec   bool
	sync       bool
	self       Port
	logger     zerolog.Logger
}

func (b *portBase) initPort(ps *PortSet, name string, dir Direction, clk *clock.Clock, self Port) error {
	if name == "" {
		return fmt.Errorf("cannot create an unnamed port under %q", ps.node.Location())
	}
	node, err := tree.NewChild(ps.node, name, "port")
	if err != nil {
		return err
	}
	b.name = name
	b.node = node
	b.dir = dir
	b.clk = clk
	b.continuing = true
	b.autoPrec = true
	b.logger = log.WithPort(node.Location())
	if clk != nil {
		s, ok := clk.Scheduler().(*sched.Scheduler)
		if !ok {
			return fmt.Errorf("port %q: clock %q is not driven by a sched.Scheduler", name, clk.Name())
		}
		b.sch = s
	}
	b.self = self
	node.Payload = self
	return ps.register(self)
}

// resolve is the identity for concrete ports; exported ports override it.
func (b *portBase) resolve() (Port, error) { return b.self, nil }

func (b *portBase) Name() string         { return b.name }
func (b *portBase) Node() *tree.Node     { return b.node }
func (b *portBase) Location() string     { return b.node.Location() }
func (b *portBase) Direction() Direction { return b.dir }
func (b *portBase) Clock() *clock.Clock  { return b.clk }
func (b *portBase) IsBound() bool        { return len(b.bound) > 0 }
func (b *portBase) BoundPorts() []Port   { return b.bound }
func (b *portBase) isSyncPort() bool     { return b.sync }
func (b *portBase) base() *portBase      { return b }
func (b *portBase) SetContinuing(c bool) { b.continuing = c }

func (b *portBase) ParticipateInAutoPrecedence(participate bool) { b.autoPrec = participate }
func (b *portBase) DoesParticipateInAutoPrecedence() bool        { return b.autoPrec }

func (b *portBase) alreadyBoundTo(p Port) bool {
	for _, bp := range b.bound {
		if bp == p {
			return true
		}
	}
	return false
}

// inPortBase carries the state common to every In port: delivery phase,
// port delay, the single consumer handler slot, listener events, and the
// internal delivery Scheduleable.
type inPortBase struct {
	portBase
	deliveryPhase sched.Phase
	portDelay     clock.Cycle
	delaySet      bool
	consumers     []*sched.Scheduleable

	// delivery is the prototype of the internal Scheduleable that carries
	// traffic onto the scheduler: a unique event for signal ports, a
	// payload-event prototype for data and sync ports.
	delivery *sched.Scheduleable

	handlerSet  bool
	handlerName string
}

func (b *inPortBase) inBase() *inPortBase { return b }

// PortDelay returns the receive-side delay in cycles.
func (b *inPortBase) PortDelay() clock.Cycle { return b.portDelay }

// DeliveryPhase returns the phase deliveries land in.
func (b *inPortBase) DeliveryPhase() sched.Phase { return b.deliveryPhase }

// SetPortDelay changes the receive-side delay. Only legal before binding,
// and only once.
func (b *inPortBase) SetPortDelay(delayCycles clock.Cycle) error {
	if b.IsBound() {
		return fmt.Errorf("port %q: port delay must be set before binding", b.Location())
	}
	if b.delaySet {
		return fmt.Errorf("port %q: port delay set twice", b.Location())
	}
	b.portDelay = delayCycles
	b.delaySet = true
	return nil
}

// RegisterConsumerEvent adds a listener event scheduled whenever this port
// delivers. The listener's phase must not precede the delivery phase; a
// same-phase listener gets a precedence edge after the delivery event.
// Registration after binding is rejected: the precedence edges are emitted
// at bind time only.
func (b *inPortBase) RegisterConsumerEvent(consumer *sched.Scheduleable) error {
	if b.IsBound() {
		return fmt.Errorf(
			"port %q: cannot register consuming event %q after the port is bound; "+
				"disable auto precedence with ParticipateInAutoPrecedence(false) if this comes from unit setup",
			b.Location(), consumer.Label())
	}
	if consumer.Phase() < b.deliveryPhase {
		return fmt.Errorf("port %q (delivery phase %s): consumer event %q is in earlier phase %s",
			b.Location(), b.deliveryPhase, consumer.Label(), consumer.Phase())
	}
	b.consumers = append(b.consumers, consumer)
	return nil
}

// ConsumerEvents returns the listener events registered on this port.
func (b *inPortBase) ConsumerEvents() []*sched.Scheduleable { return b.consumers }

// registerHandlerName relabels the internal delivery event so scheduler
// diagnostics name the user's handler.
func (b *inPortBase) registerHandlerName(kind string) error {
	if b.handlerSet {
		return fmt.Errorf("port %q: only one consumer handler is supported", b.Location())
	}
	b.handlerSet = true
	b.handlerName = fmt.Sprintf("%s<%s>", b.name, kind)
	b.delivery.SetLabel(b.handlerName)
	return nil
}

// scheduleConsumers places every registered listener on the scheduler for
// the current tick. Called from the delivery handler; unique listeners
// coalesce repeats.
func (b *inPortBase) scheduleConsumers() {
	for _, c := range b.consumers {
		c.ScheduleRelativeTick(0)
	}
}

// checkZeroCycleDelivery verifies that a zero-delay send can still land in
// the delivery phase of the current tick.
func (b *inPortBase) checkZeroCycleDelivery() {
	cur := b.sch.CurrentPhase()
	if b.sch.IsRunning() && b.deliveryPhase < cur {
		panic(fmt.Sprintf(
			"port %q: zero-cycle send from phase %s cannot reach this port's %s delivery phase within the same tick; "+
				"move the handler to %s or later, or add a cycle of port delay (firing event: %q)",
			b.Location(), cur, b.deliveryPhase, cur, b.sch.CurrentFiringLabel()))
	}
}

// setContinuingFromPeer propagates the bound Out port's continuing flag
// into the delivery machinery.
func (b *inPortBase) setContinuingFromPeer(continuing bool, apply func(bool)) {
	b.continuing = continuing
	apply(continuing)
}

// outPortBase carries the state common to every Out port.
type outPortBase struct {
	portBase
	producers        []*sched.Scheduleable
	presumeZeroDelay bool
}

// RegisterProducingEvent adds an event that may drive this port. Producers
// registered before binding are ordered ahead of the bound In ports'
// deliveries and same-phase consumers for zero-delay sends. Registration
// after binding is rejected.
func (b *outPortBase) RegisterProducingEvent(producer *sched.Scheduleable) error {
	if b.IsBound() {
		return fmt.Errorf(
			"port %q: cannot register producing event %q after the port is bound; "+
				"disable auto precedence with ParticipateInAutoPrecedence(false) if this comes from unit setup",
			b.Location(), producer.Label())
	}
	b.producers = append(b.producers, producer)
	return nil
}

// ProducingEvents returns the producer events registered on this port.
func (b *outPortBase) ProducingEvents() []*sched.Scheduleable { return b.producers }

// SetPresumeZeroDelay controls whether binding assumes zero-delay sends and
// emits producer-before-consumer edges for delay-0 In ports.
func (b *outPortBase) SetPresumeZeroDelay(presume bool) { b.presumeZeroDelay = presume }

// Bind pairs two ports bi-directionally. Exported indirections are resolved
// first; directions must be complementary; clocks must agree unless either
// side is a sync port.
func Bind(a, b Port) error {
	ra, err := a.resolve()
	if err != nil {
		return fmt.Errorf("binding %q to %q: %w", a.Location(), b.Location(), err)
	}
	rb, err := b.resolve()
	if err != nil {
		return fmt.Errorf("binding %q to %q: %w", a.Location(), b.Location(), err)
	}

	var out, in Port
	switch {
	case ra.Direction() == Out && rb.Direction() == In:
		out, in = ra, rb
	case ra.Direction() == In && rb.Direction() == Out:
		out, in = rb, ra
	default:
		return fmt.Errorf("cannot bind %q (%s) to %q (%s): directions must be complementary",
			ra.Location(), ra.Direction(), rb.Location(), rb.Direction())
	}

	bd, ok := out.(binder)
	if !ok {
		return fmt.Errorf("port %q cannot initiate a binding", out.Location())
	}
	return bd.bindPeer(in)
}

// completeBind performs the direction-agnostic part of a binding: clock
// compatibility, duplicate detection, the zero-delay precedence edges, and
// continuing propagation.
func completeBind(out Port, ob *outPortBase, in inPort, applyContinuing func(bool)) error {
	ib := in.inBase()

	if !out.isSyncPort() && !in.isSyncPort() {
		if ob.clk != ib.clk {
			return fmt.Errorf(
				"cannot bind %q to %q: ports live on different clocks (%q vs %q); use sync ports",
				out.Location(), in.Location(), ob.clk.Name(), ib.clk.Name())
		}
	}
	if ob.alreadyBoundTo(in) {
		return fmt.Errorf("port %q is already bound to %q", out.Location(), in.Location())
	}

	// Zero-delay sends promise producer-before-delivery-before-consumer
	// within a shared phase.
	if ib.portDelay == 0 && ob.presumeZeroDelay {
		for _, pd := range ob.producers {
			for _, cons := range ib.consumers {
				if pd == cons {
					return fmt.Errorf(
						"event %q is registered both as a producer of %q and a consumer of %q",
						pd.Label(), out.Location(), in.Location())
				}
				if pd.Phase() == cons.Phase() {
					sched.Precedes(pd, cons)
				}
			}
			if pd.Phase() == ib.delivery.Phase() {
				sched.Precedes(pd, ib.delivery)
			}
		}
	}

	// Delivery precedes its same-phase listeners.
	for _, cons := range ib.consumers {
		if cons.Phase() == ib.delivery.Phase() {
			sched.Precedes(ib.delivery, cons)
		}
	}

	ob.bound = append(ob.bound, in)
	ib.bound = append(ib.bound, out)
	ib.setContinuingFromPeer(ob.continuing, applyContinuing)

	ob.logger.Debug().Str("peer", in.Location()).Msg("Port bound")
	return nil
}

// MustBind is Bind that panics on error, for construction-time wiring.
func MustBind(a, b Port) {
	if err := Bind(a, b); err != nil {
		panic(err)
	}
}
