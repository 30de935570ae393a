package sched

import (
	"fmt"
	"sort"
	"strings"
)

// Vertex is a node in the precedence graph. Every Scheduleable owns one;
// GlobalOrderingPoints are vertices with no Scheduleable behind them.
// Edges are "must-run-before" constraints between same-phase work.
type Vertex struct {
	label string
	phase Phase
	edges []*Vertex

	// Fixed by the topological sort at finalization; the per-phase ready
	// lists drain in ascending priority order.
	priority uint32

	id uint32
}

// Label returns the vertex's diagnostic label.
func (v *Vertex) Label() string { return v.label }

// Phase returns the phase this vertex is constrained to, phaseAny for
// ordering points.
func (v *Vertex) Phase() Phase { return v.phase }

// dag owns every vertex created against one scheduler.
type dag struct {
	vertices []*Vertex
	sorted   bool
}

func newDag() *dag {
	return &dag{}
}

func (d *dag) newVertex(label string, phase Phase) *Vertex {
	v := &Vertex{label: label, phase: phase, id: uint32(len(d.vertices))}
	d.vertices = append(d.vertices, v)
	return v
}

// link adds the edge from -> to. Endpoint phases must agree unless one side
// is an ordering point.
func (d *dag) link(from, to *Vertex, reason string) {
	if d.sorted {
		panic(fmt.Sprintf("precedence %q -> %q (%s): cannot add edges after finalization",
			from.label, to.label, reason))
	}
	if from == to {
		panic(fmt.Sprintf("precedence %q (%s): a vertex cannot precede itself", from.label, reason))
	}
	if from.phase != phaseAny && to.phase != phaseAny && from.phase != to.phase {
		panic(fmt.Sprintf("precedence %q (phase %s) -> %q (phase %s): endpoints must share a phase (%s)",
			from.label, from.phase, to.label, to.phase, reason))
	}
	for _, e := range from.edges {
		if e == to {
			return
		}
	}
	from.edges = append(from.edges, to)
}

// finalize runs a stable topological sort and assigns every vertex its
// drain priority. Returns an error naming the cycle members if the graph
// is not acyclic.
func (d *dag) finalize() error {
	indegree := make(map[*Vertex]int, len(d.vertices))
	for _, v := range d.vertices {
		indegree[v] += 0
		for _, e := range v.edges {
			indegree[e]++
		}
	}

	// Ready set kept ordered by (label, id) so the resulting total order is
	// deterministic and reproducible across runs.
	var ready []*Vertex
	for _, v := range d.vertices {
		if indegree[v] == 0 {
			ready = append(ready, v)
		}
	}
	sortVertices(ready)

	var prio uint32
	visited := 0
	for len(ready) > 0 {
		v := ready[0]
		ready = ready[1:]
		v.priority = prio
		prio++
		visited++

		var unblocked []*Vertex
		for _, e := range v.edges {
			indegree[e]--
			if indegree[e] == 0 {
				unblocked = append(unblocked, e)
			}
		}
		if len(unblocked) > 0 {
			sortVertices(unblocked)
			ready = mergeVertices(ready, unblocked)
		}
	}

	if visited != len(d.vertices) {
		var cycle []string
		for _, v := range d.vertices {
			if indegree[v] > 0 {
				cycle = append(cycle, v.label)
			}
		}
		sort.Strings(cycle)
		return fmt.Errorf("precedence cycle detected among: %s", strings.Join(cycle, ", "))
	}
	d.sorted = true
	return nil
}

func sortVertices(vs []*Vertex) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].label != vs[j].label {
			return vs[i].label < vs[j].label
		}
		return vs[i].id < vs[j].id
	})
}

func mergeVertices(a, b []*Vertex) []*Vertex {
	out := make([]*Vertex, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].label < b[j].label || (a[i].label == b[j].label && a[i].id < b[j].id) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
