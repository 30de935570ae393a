package port

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loom-sim/loom/pkg/clock"
	"github.com/loom-sim/loom/pkg/sched"
	"github.com/loom-sim/loom/pkg/tree"
)

// Bus is a named bundle of unidirectional ports bound collectively: each
// port pairs with the peer bus's complementary port of the same canonical
// name. Either every port binds or none do.
type Bus struct {
	node          *tree.Node
	ports         *PortSet
	precedenceSet bool
}

// BusSet groups the buses of one component under a common "buses" tree
// node.
type BusSet struct {
	node *tree.Node
}

// NewBusSet creates the "buses" node under parent.
func NewBusSet(parent *tree.Node) (*BusSet, error) {
	n, err := tree.NewChild(parent, "buses", "bus set")
	if err != nil {
		return nil, err
	}
	return &BusSet{node: n}, nil
}

// NewBus creates a bus in the given bus set.
func NewBus(bs *BusSet, name string) (*Bus, error) {
	n, err := tree.NewChild(bs.node, name, "bus")
	if err != nil {
		return nil, err
	}
	ps, err := NewPortSet(n)
	if err != nil {
		return nil, err
	}
	b := &Bus{node: n, ports: ps}
	n.Payload = b
	return b, nil
}

// Name returns the bus's name.
func (b *Bus) Name() string { return b.node.Name() }

// Node returns the bus's tree node.
func (b *Bus) Node() *tree.Node { return b.node }

// PortSet returns the port set holding the bus's member ports. Create
// member ports against this set.
func (b *Bus) PortSet() *PortSet {
	if b.precedenceSet {
		panic(fmt.Sprintf("bus %q: cannot add ports after collective precedence was set", b.node.Location()))
	}
	return b.ports
}

// Ports returns the member ports for one direction, keyed by their raw
// names.
func (b *Bus) Ports(dir Direction) map[string]Port {
	return b.ports.Ports(dir)
}

// SetInPortDelay applies one receive-side delay to every member In port.
func (b *Bus) SetInPortDelay(delayCycles clock.Cycle) error {
	for _, p := range b.ports.Ports(In) {
		ip, ok := p.(inPort)
		if !ok {
			return fmt.Errorf("bus %q: member %q does not take a port delay", b.node.Location(), p.Name())
		}
		if err := ip.inBase().SetPortDelay(delayCycles); err != nil {
			return err
		}
	}
	return nil
}

// InportsPrecede registers ev as a listener on every member In port: every
// delivery into the bus fires before ev. No more ports may be added
// afterwards.
func (b *Bus) InportsPrecede(ev *sched.Scheduleable) error {
	for _, p := range b.ports.Ports(In) {
		ip, ok := p.(inPort)
		if !ok {
			return fmt.Errorf("bus %q: member %q cannot take consumer events", b.node.Location(), p.Name())
		}
		if err := ip.inBase().RegisterConsumerEvent(ev); err != nil {
			return err
		}
	}
	b.precedenceSet = true
	return nil
}

// OutportsSucceed registers ev as a producer on every member Out port: ev
// fires before anything the bus drives. No more ports may be added
// afterwards.
func (b *Bus) OutportsSucceed(ev *sched.Scheduleable) error {
	for _, p := range b.ports.Ports(Out) {
		op, ok := p.(interface {
			RegisterProducingEvent(*sched.Scheduleable) error
		})
		if !ok {
			return fmt.Errorf("bus %q: member %q cannot take producer events", b.node.Location(), p.Name())
		}
		if err := op.RegisterProducingEvent(ev); err != nil {
			return err
		}
	}
	b.precedenceSet = true
	return nil
}

// Bind pairs every member port with the complementary same-canonical-name
// port of the peer bus, bi-directionally. If any member on either side has
// no counterpart, nothing is bound and the error lists every unbindable
// port.
func (b *Bus) Bind(other *Bus) error {
	thisIn, err := b.canonicalPorts(In)
	if err != nil {
		return err
	}
	thisOut, err := b.canonicalPorts(Out)
	if err != nil {
		return err
	}
	otherIn, err := other.canonicalPorts(In)
	if err != nil {
		return err
	}
	otherOut, err := other.canonicalPorts(Out)
	if err != nil {
		return err
	}

	var unbound []string
	checkCoverage(thisIn, otherOut, &unbound)
	checkCoverage(thisOut, otherIn, &unbound)
	checkCoverage(otherIn, thisOut, &unbound)
	checkCoverage(otherOut, thisIn, &unbound)
	if len(unbound) > 0 {
		sort.Strings(unbound)
		return fmt.Errorf("binding bus %q to bus %q: no equivalence found for: %s",
			b.Name(), other.Name(), strings.Join(unbound, ", "))
	}

	for canon, p := range thisIn {
		if err := Bind(p, otherOut[canon]); err != nil {
			return err
		}
	}
	for canon, p := range thisOut {
		if err := Bind(p, otherIn[canon]); err != nil {
			return err
		}
	}
	return nil
}

// canonicalPorts maps canonical name to port for one direction. Two member
// ports collapsing onto the same canonical name cannot be discerned.
func (b *Bus) canonicalPorts(dir Direction) (map[string]Port, error) {
	out := make(map[string]Port)
	strip := dir.String()
	for name, p := range b.ports.Ports(dir) {
		canon := CanonicalPortName(name, strip)
		if dup, clash := out[canon]; clash {
			return nil, fmt.Errorf("bus %q: cannot discern between port name %q and %q",
				b.node.Location(), name, dup.Name())
		}
		out[canon] = p
	}
	return out, nil
}

func checkCoverage(side, peer map[string]Port, unbound *[]string) {
	for canon, p := range side {
		if _, ok := peer[canon]; !ok {
			*unbound = append(*unbound, p.Location())
		}
	}
}

// CanonicalPortName strips a leading "<tok>_" and a trailing "_<tok>"
// (tok being "in" or "out"), then removes every remaining underscore.
// Comparison is case-sensitive.
func CanonicalPortName(name, tok string) string {
	name = strings.TrimPrefix(name, tok+"_")
	name = strings.TrimSuffix(name, "_"+tok)
	return strings.ReplaceAll(name, "_", "")
}
