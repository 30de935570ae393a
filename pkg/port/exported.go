package port

import (
	"fmt"

	"github.com/loom-sim/loom/pkg/tree"
)

// ExportedPort represents a port buried in a component hierarchy at a
// higher level, so deep paths never leak into binding code. It either
// references the inner port directly, or carries a search root and a port
// name resolved by recursive descent the first time it is bound.
type ExportedPort struct {
	portBase

	inner      Port
	searchRoot *tree.Node
	innerName  string
}

// NewExportedPort exports an already-known inner port. The exported port
// adopts the inner port's direction.
func NewExportedPort(ps *PortSet, name string, inner Port) (*ExportedPort, error) {
	if inner == nil {
		return nil, fmt.Errorf("exported port %q: inner port must not be nil", name)
	}
	p := &ExportedPort{inner: inner, innerName: inner.Name()}
	if err := p.initPort(ps, name, inner.Direction(), inner.Clock(), p); err != nil {
		return nil, err
	}
	return p, nil
}

// NewDeferredExportedPort exports a port found later by searching for
// innerName under searchRoot. Direction stays Unknown until resolution.
func NewDeferredExportedPort(ps *PortSet, name string, searchRoot *tree.Node, innerName string) (*ExportedPort, error) {
	if searchRoot == nil {
		return nil, fmt.Errorf("exported port %q: a search root is required when the inner port is not given", name)
	}
	p := &ExportedPort{searchRoot: searchRoot, innerName: innerName}
	if err := p.initPort(ps, name, Unknown, nil, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Direction returns the inner port's direction once resolved, Unknown
// before.
func (p *ExportedPort) Direction() Direction {
	if p.inner != nil {
		return p.inner.Direction()
	}
	return Unknown
}

// InnerPort returns the resolved inner port, nil before resolution.
func (p *ExportedPort) InnerPort() Port { return p.inner }

// resolve finds the inner port by recursive descent. A name may match both
// this exported port and the intended inner port; any other ambiguity is an
// error.
func (p *ExportedPort) resolve() (Port, error) {
	if p.inner != nil {
		return p.inner.resolve()
	}

	var found []Port
	for _, n := range p.searchRoot.Find(p.innerName) {
		inner, ok := n.Payload.(Port)
		if !ok {
			return nil, fmt.Errorf(
				"exported port %q: tree node %q matches the name but is not a port",
				p.Location(), n.Location())
		}
		if inner == Port(p) {
			continue
		}
		found = append(found, inner)
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("exported port %q: no port named %q under %q",
			p.Location(), p.innerName, p.searchRoot.Location())
	case 1:
		p.inner = found[0]
	default:
		return nil, fmt.Errorf("exported port %q: multiple ports named %q under %q",
			p.Location(), p.innerName, p.searchRoot.Location())
	}
	return p.inner.resolve()
}
