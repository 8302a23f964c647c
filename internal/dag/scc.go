package dag

import (
	"sort"

	"github.com/cellgraph/engine/internal/address"
)

// tarjanState holds the working state for one run of Tarjan's
// strongly-connected-components algorithm over gr's vertex IDs.
type tarjanState struct {
	gr        *Graph
	index     map[string]int
	lowlink   map[string]int
	onStack   map[string]bool
	stack     []string
	next      int
	sccs      [][]string
	component map[string]int
}

// computeSCCs partitions gr's vertices into strongly connected
// components via Tarjan's algorithm (iterative to avoid stack-depth
// limits on large workbooks).
func computeSCCs(gr *Graph) (sccs [][]string, component map[string]int) {
	st := &tarjanState{
		gr:        gr,
		index:     make(map[string]int),
		lowlink:   make(map[string]int),
		onStack:   make(map[string]bool),
		component: make(map[string]int),
	}

	ids := gr.vertexIDs()
	sort.Strings(ids) // deterministic visitation order
	for _, id := range ids {
		if _, seen := st.index[id]; !seen {
			st.strongConnect(id)
		}
	}
	return st.sccs, st.component
}

// frame is one level of the explicit DFS stack used to make
// strongConnect iterative.
type frame struct {
	v        string
	nbrs     []string
	nbrIndex int
}

func (st *tarjanState) strongConnect(root string) {
	var call []frame
	push := func(v string) {
		st.index[v] = st.next
		st.lowlink[v] = st.next
		st.next++
		st.stack = append(st.stack, v)
		st.onStack[v] = true
		nbrVertices := st.gr.g.Neighbors(v)
		nbrs := make([]string, len(nbrVertices))
		for i, nb := range nbrVertices {
			nbrs[i] = nb.ID
		}
		call = append(call, frame{v: v, nbrs: nbrs})
	}
	push(root)

	for len(call) > 0 {
		top := &call[len(call)-1]
		if top.nbrIndex < len(top.nbrs) {
			w := top.nbrs[top.nbrIndex]
			top.nbrIndex++
			if _, seen := st.index[w]; !seen {
				push(w)
				continue
			} else if st.onStack[w] {
				if st.index[w] < st.lowlink[top.v] {
					st.lowlink[top.v] = st.index[w]
				}
			}
			continue
		}

		// Done exploring top.v's neighbors.
		v := top.v
		call = call[:len(call)-1]
		if len(call) > 0 {
			parent := &call[len(call)-1]
			if st.lowlink[v] < st.lowlink[parent.v] {
				st.lowlink[parent.v] = st.lowlink[v]
			}
		}
		if st.lowlink[v] == st.index[v] {
			var comp []string
			for {
				n := len(st.stack) - 1
				w := st.stack[n]
				st.stack = st.stack[:n]
				st.onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			cid := len(st.sccs)
			for _, w := range comp {
				st.component[w] = cid
			}
			st.sccs = append(st.sccs, comp)
		}
	}
}

// findCycles derives the Cycles() view from gr's SCCs: every component
// of size >= 2, plus every self-loop, each walked greedily from its
// lexicographically smallest member (spec.md §4.5).
func findCycles(gr *Graph) [][]address.CellAddress {
	sccs, _ := computeSCCs(gr)
	var out [][]address.CellAddress

	selfLoop := make(map[string]bool)
	for key := range gr.cells {
		for _, nb := range gr.g.Neighbors(key) {
			if nb.ID == key {
				selfLoop[key] = true
			}
		}
	}

	for _, comp := range sccs {
		if len(comp) >= 2 {
			out = append(out, orderCycle(gr, comp))
		} else if len(comp) == 1 && selfLoop[comp[0]] {
			out = append(out, []address.CellAddress{gr.cells[comp[0]].Address})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i][0].Less(out[j][0]) })
	return out
}

// orderCycle walks comp starting from its lexicographically smallest
// address, at each step following the smallest in-component neighbor
// not yet visited. For a simple cycle (the common case) this recovers
// the cycle's natural order; for a denser SCC it still yields a
// deterministic, fully-covering walk.
func orderCycle(gr *Graph, comp []string) []address.CellAddress {
	inComp := make(map[string]bool, len(comp))
	for _, id := range comp {
		inComp[id] = true
	}
	sort.Slice(comp, func(i, j int) bool {
		return gr.cells[comp[i]].Address.Less(gr.cells[comp[j]].Address)
	})
	start := comp[0]

	visited := map[string]bool{start: true}
	order := []string{start}
	cur := start
	for len(order) < len(comp) {
		var candidates []string
		for _, nb := range gr.g.Neighbors(cur) {
			if inComp[nb.ID] && !visited[nb.ID] {
				candidates = append(candidates, nb.ID)
			}
		}
		if len(candidates) == 0 {
			// Disconnected from here within the component walk (can
			// happen in non-Hamiltonian SCCs); resume from the smallest
			// unvisited member to still cover every cell.
			for _, id := range comp {
				if !visited[id] {
					candidates = append(candidates, id)
					break
				}
			}
		}
		sort.Strings(candidates)
		next := candidates[0]
		visited[next] = true
		order = append(order, next)
		cur = next
	}

	out := make([]address.CellAddress, len(order))
	for i, id := range order {
		out[i] = gr.cells[id].Address
	}
	return out
}

// computeMaxDepth collapses gr into its condensation DAG (one node per
// SCC, regardless of the SCC's size) and runs a topological longest-path
// DP counting condensation nodes along the deepest input-to-output
// chain, per spec.md §3's Graph.metrics.max_depth.
func computeMaxDepth(gr *Graph) int {
	sccs, component := computeSCCs(gr)
	n := len(sccs)
	if n == 0 {
		return 0
	}

	condAdj := make([]map[int]bool, n)
	for i := range condAdj {
		condAdj[i] = make(map[int]bool)
	}
	for key := range gr.cells {
		cFrom := component[key]
		for _, nb := range gr.g.Neighbors(key) {
			cTo := component[nb.ID]
			if cFrom != cTo {
				condAdj[cFrom][cTo] = true
			}
		}
	}

	indegree := make([]int, n)
	for from := range condAdj {
		for to := range condAdj[from] {
			indegree[to]++
		}
	}
	var queue []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	var topo []int
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		topo = append(topo, v)
		for to := range condAdj[v] {
			indegree[to]--
			if indegree[to] == 0 {
				queue = append(queue, to)
			}
		}
	}

	// longest[v] counts condensation nodes along the deepest chain
	// starting at v (a leaf with no further precedents has depth 1).
	longest := make([]int, n)
	for i := len(topo) - 1; i >= 0; i-- {
		v := topo[i]
		best := 0
		for to := range condAdj[v] {
			if longest[to] > best {
				best = longest[to]
			}
		}
		longest[v] = 1 + best
	}

	max := 0
	for _, d := range longest {
		if d > max {
			max = d
		}
	}
	return max
}
