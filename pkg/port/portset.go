package port

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/tree"
)

// PortSet groups the ports of one component under a common "ports" tree
// node. Port names are unique within a set; ports are indexed per
// direction.
type PortSet struct {
	node  *tree.Node
	byDir [numDirections]map[string]Port
}

// NewPortSet creates the "ports" node under parent.
func NewPortSet(parent *tree.Node) (*PortSet, error) {
	n, err := tree.NewChild(parent, "ports", "port set")
	if err != nil {
		return nil, err
	}
	ps := &PortSet{node: n}
	for i := range ps.byDir {
		ps.byDir[i] = make(map[string]Port)
	}
	return ps, nil
}

// MustPortSet is NewPortSet that panics on error.
func MustPortSet(parent *tree.Node) *PortSet {
	ps, err := NewPortSet(parent)
	if err != nil {
		panic(err)
	}
	return ps
}

// Node returns the port set's tree node.
func (ps *PortSet) Node() *tree.Node { return ps.node }

// Port returns the port with the given name in any direction.
func (ps *PortSet) Port(name string) (Port, error) {
	for d := 0; d < numDirections; d++ {
		if p, ok := ps.byDir[d][name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no port named %q in %q", name, ps.node.Location())
}

// Ports returns the registered ports for one direction, keyed by name.
func (ps *PortSet) Ports(dir Direction) map[string]Port {
	return ps.byDir[dir]
}

func (ps *PortSet) register(p Port) error {
	m := ps.byDir[p.Direction()]
	if _, dup := m[p.Name()]; dup {
		return fmt.Errorf("port %q already registered in %q", p.Name(), ps.node.Location())
	}
	m[p.Name()] = p
	return nil
}
