package dag

import (
	"sort"

	"github.com/cellgraph/engine/internal/address"
	"github.com/katalvlaran/lvlath/graph/core"
)

// Metrics is the spec.md §3 Graph.metrics record.
type Metrics struct {
	NodeCount int `json:"node_count"`
	EdgeCount int `json:"edge_count"`
	MaxDepth  int `json:"max_depth"`
}

// Graph is the finalized dependency graph: every cell the workbook (or a
// formula reference) mentions, plus the coalesced, directed edges between
// them. Once built it is immutable, matching spec.md §3's lifecycle rule.
//
// The adjacency itself is an lvlath core.Graph keyed by canonical A1
// address strings; each edge's Weight encodes its EdgeKind rank (see
// edge.go) since core.Edge carries no other metadata slot.
type Graph struct {
	g       *core.Graph
	cells   map[string]*Cell
	cycles  [][]address.CellAddress // SCCs of size >= 2, plus self-loops
}

// NodeCount, EdgeCount, MaxDepth back Metrics.
func (gr *Graph) Metrics() Metrics {
	return Metrics{
		NodeCount: len(gr.g.Vertices()),
		EdgeCount: len(gr.g.Edges()),
		MaxDepth:  computeMaxDepth(gr),
	}
}

// Nodes returns every cell, ordered by (sheet, row, col) for determinism.
func (gr *Graph) Nodes() []Cell {
	out := make([]Cell, 0, len(gr.cells))
	for _, c := range gr.cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })
	return out
}

// Node looks up a single cell by address.
func (gr *Graph) Node(addr address.CellAddress) (Cell, bool) {
	c, ok := gr.cells[addr.String()]
	if !ok {
		return Cell{}, false
	}
	return *c, true
}

// Edges returns every coalesced edge, ordered by (source, target, kind)
// per spec.md §5's determinism rule.
func (gr *Graph) Edges() []Edge {
	raw := gr.g.Edges()
	out := make([]Edge, 0, len(raw))
	for _, e := range raw {
		src := gr.cells[e.From.ID].Address
		tgt := gr.cells[e.To.ID].Address
		out = append(out, Edge{Source: src, Target: tgt, Kind: kindFromRank(e.Weight)})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Source.Equal(out[j].Source) {
			return out[i].Source.Less(out[j].Source)
		}
		if !out[i].Target.Equal(out[j].Target) {
			return out[i].Target.Less(out[j].Target)
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// OutNeighbors returns the targets of addr's outgoing edges (cells addr
// reads), via lvlath's adjacency.
func (gr *Graph) OutNeighbors(addr address.CellAddress) []address.CellAddress {
	nbrs := gr.g.Neighbors(addr.String())
	out := make([]address.CellAddress, 0, len(nbrs))
	for _, v := range nbrs {
		out = append(out, gr.cells[v.ID].Address)
	}
	return out
}

// reverseAdjacency builds, on demand, the incoming-edge index: for each
// node, the set of nodes whose formula reads it. lvlath's core.Graph
// exposes only forward Neighbors, so InNeighbors and InDegree (used by
// anomaly's unused_formula check) go through this.
func (gr *Graph) reverseAdjacency() map[string][]string {
	rev := make(map[string][]string, len(gr.cells))
	for _, e := range gr.g.Edges() {
		rev[e.To.ID] = append(rev[e.To.ID], e.From.ID)
	}
	return rev
}

// InNeighbors returns the sources of addr's incoming edges (cells that
// read addr).
func (gr *Graph) InNeighbors(addr address.CellAddress) []address.CellAddress {
	rev := gr.reverseAdjacency()
	ids := rev[addr.String()]
	out := make([]address.CellAddress, 0, len(ids))
	for _, id := range ids {
		out = append(out, gr.cells[id].Address)
	}
	return out
}

// InDegree and OutDegree count addr's incoming and outgoing edges.
func (gr *Graph) InDegree(addr address.CellAddress) int {
	return len(gr.reverseAdjacency()[addr.String()])
}

func (gr *Graph) OutDegree(addr address.CellAddress) int {
	return len(gr.g.Neighbors(addr.String()))
}

// Cycles returns every strongly connected component of size >= 2, plus
// every self-loop, each ordered starting from its lexicographically
// smallest member, per spec.md §4.5.
func (gr *Graph) Cycles() [][]address.CellAddress {
	return gr.cycles
}

func (gr *Graph) vertexIDs() []string {
	vs := gr.g.Vertices()
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}
