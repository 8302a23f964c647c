package dag

import "github.com/cellgraph/engine/internal/address"

// Component is one strongly connected component of the graph, in
// Tarjan discovery order.
type Component struct {
	Members []address.CellAddress
}

// Condensation is the graph with every SCC collapsed to a single node,
// the representation the cost-driver analyzer's dependent_count DP
// walks (spec.md §4.7).
type Condensation struct {
	Components   []Component
	ComponentOf  map[string]int // cell key -> component index
	Successors   map[int]map[int]bool
	Predecessors map[int]map[int]bool
}

// BuildCondensation collapses gr's SCCs (reusing the same Tarjan pass
// findCycles and computeMaxDepth run) into a condensation graph.
func (gr *Graph) BuildCondensation() Condensation {
	sccs, component := computeSCCs(gr)
	comps := make([]Component, len(sccs))
	for i, ids := range sccs {
		members := make([]address.CellAddress, len(ids))
		for j, id := range ids {
			members[j] = gr.cells[id].Address
		}
		comps[i] = Component{Members: members}
	}

	succ := make(map[int]map[int]bool, len(sccs))
	pred := make(map[int]map[int]bool, len(sccs))
	for key := range gr.cells {
		cFrom := component[key]
		for _, nb := range gr.g.Neighbors(key) {
			cTo := component[nb.ID]
			if cFrom == cTo {
				continue
			}
			if succ[cFrom] == nil {
				succ[cFrom] = map[int]bool{}
			}
			succ[cFrom][cTo] = true
			if pred[cTo] == nil {
				pred[cTo] = map[int]bool{}
			}
			pred[cTo][cFrom] = true
		}
	}

	return Condensation{Components: comps, ComponentOf: component, Successors: succ, Predecessors: pred}
}

// TopoOrder returns the condensation's components in topological order
// (sources before sinks), via Kahn's algorithm.
func (c Condensation) TopoOrder() []int {
	n := len(c.Components)
	indegree := make([]int, n)
	for from := range c.Successors {
		for to := range c.Successors[from] {
			indegree[to]++
		}
	}
	var queue []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	order := make([]int, 0, n)
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for to := range c.Successors[v] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}
	return order
}
