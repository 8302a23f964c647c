// Package dag assembles the finalized dependency graph from per-cell
// formula analyses: node set construction, edge coalescing, cycle
// detection, and depth metrics, per spec.md §4.5.
package dag

import (
	"strings"

	"github.com/cellgraph/engine/internal/address"
	"github.com/cellgraph/engine/internal/dynamic"
	"github.com/cellgraph/engine/internal/reference"
	"github.com/cellgraph/engine/internal/tokenizer"
	"github.com/katalvlaran/lvlath/graph/core"
)

// lexFormula and extractRefs wrap the tokenizer/reference packages for
// named-range formula bodies, which are resolved on demand rather than
// as part of the orchestrator's bulk tokenize/extract phase.
func lexFormula(formula string) []tokenizer.Token {
	return tokenizer.Lex(formula).Tokens
}

func extractRefs(tokens []tokenizer.Token, homeSheet string) []reference.Reference {
	return reference.Extract(tokens, homeSheet).References
}

// NamedRangeDef is the spec.md §3 NamedRange record: a workbook-scoped,
// case-insensitive name bound to either a range or a formula.
type NamedRangeDef struct {
	Name      string // original casing, preserved for output
	Range     *address.CellRange
	Formula   string
	HomeSheet string // sheet context used to resolve bare refs in Formula
}

// FormulaAnalysis is one cell's tokenize+extract(+dynamic-resolve)
// output, the unit the DAG builder's edge phase consumes. Orchestrator
// builds these in the parallel tokenize/extract/resolve phases; Builder
// consumes them serially (spec.md §5: "a single writer thread consumes
// the parallel output stream").
type FormulaAnalysis struct {
	Address    address.CellAddress
	References []reference.Reference
	Dynamic    dynamic.Outcome
	Complexity int
	LexError   bool
	// HasErrorToken records whether the formula's token stream contains a
	// literal error token (e.g. "=A1+#REF!"), distinct from LexError's
	// unrecognized-input recovery.
	HasErrorToken bool
}

// LargeRangeSummary records a range reference too large to expand to
// per-cell edges (spec.md §4.5's fan-out cap).
type LargeRangeSummary struct {
	Source    address.CellAddress
	Range     address.CellRange
	CellCount int
}

const (
	DefaultFanoutCap          = 4096
	DefaultNamedRangeMaxDepth = 32
)

// Builder accumulates Phase 1 nodes and Phase 2 edges, then finalizes an
// immutable Graph. It is not safe for concurrent edge insertion — edge
// construction is a deliberately serialized phase (spec.md §5).
type Builder struct {
	cells      map[string]*Cell
	edgeKind   map[edgeKey]EdgeKind
	namedLower map[string]NamedRangeDef

	FanoutCap          int
	NamedRangeMaxDepth int

	largeRanges      []LargeRangeSummary
	namedRangeIssues []address.CellAddress // formulas whose named-range resolution hit a depth/cycle problem
}

type edgeKey struct{ src, tgt string }

// NewBuilder constructs an empty Builder with spec.md default caps.
func NewBuilder() *Builder {
	return &Builder{
		cells:              make(map[string]*Cell),
		edgeKind:           make(map[edgeKey]EdgeKind),
		namedLower:         make(map[string]NamedRangeDef),
		FanoutCap:          DefaultFanoutCap,
		NamedRangeMaxDepth: DefaultNamedRangeMaxDepth,
	}
}

// AddNamedRange registers a named range definition (Phase 1, before any
// formula reference is resolved against it).
func (b *Builder) AddNamedRange(def NamedRangeDef) {
	b.namedLower[strings.ToLower(def.Name)] = def
}

// AddPopulatedCell is Phase 1: register one reader-reported cell.
func (b *Builder) AddPopulatedCell(addr address.CellAddress, value Value, formula string) {
	c := newPopulatedCell(addr, value, formula)
	b.cells[addr.String()] = &c
}

func (b *Builder) ensureNode(addr address.CellAddress) *Cell {
	key := addr.String()
	if c, ok := b.cells[key]; ok {
		return c
	}
	c := newImplicitNode(addr)
	b.cells[key] = &c
	return &c
}

func (b *Builder) addEdge(src, tgt address.CellAddress, kind EdgeKind) {
	b.ensureNode(src)
	b.ensureNode(tgt)
	key := edgeKey{src: src.String(), tgt: tgt.String()}
	if existing, ok := b.edgeKind[key]; ok && existing.rank() >= kind.rank() {
		return
	}
	b.edgeKind[key] = kind
}

// AddFormula is Phase 2 for one cell: converts its extracted references
// (post dynamic resolution) into edges.
func (b *Builder) AddFormula(fa FormulaAnalysis) {
	if c, ok := b.cells[fa.Address.String()]; ok {
		c.Complexity = fa.Complexity
		c.LexError = fa.LexError
		c.HasErrorToken = fa.HasErrorToken
		c.DynamicUnresolved = fa.Dynamic.Unresolved
	}

	dynamicSucceeded := len(fa.Dynamic.Resolved) > 0 && !fa.Dynamic.Unresolved
	for _, ref := range fa.References {
		if dynamicSucceeded && ref.ArgIndex == 0 && isDynamicFunc(ref.EnclosingFunc) {
			// Superseded by a successful dynamic resolution of this call's
			// base/target argument; spec.md §4.4 treats the resolved
			// reference as the real edge in this case.
			continue
		}
		switch ref.Kind {
		case reference.Cell:
			b.addEdge(fa.Address, ref.Address, Direct)
		case reference.Range:
			b.addRangeEdges(fa.Address, ref.Range, RangeMember)
		case reference.Named:
			b.resolveNamedRef(fa.Address, ref.Name)
		}
	}

	for _, r := range fa.Dynamic.Resolved {
		switch r.Kind {
		case dynamic.ResolvedCell:
			b.addEdge(fa.Address, r.Address, Dynamic)
		case dynamic.ResolvedRange:
			b.addRangeEdges(fa.Address, r.Range, Dynamic)
		}
	}
}

func isDynamicFunc(name string) bool {
	return name == "INDIRECT" || name == "OFFSET" || name == "INDEX"
}

func (b *Builder) addRangeEdges(src address.CellAddress, r address.CellRange, kind EdgeKind) {
	size := r.Size()
	if size <= b.FanoutCap {
		r.Each(func(a address.CellAddress) bool {
			b.addEdge(src, a, kind)
			return true
		})
		return
	}
	// Cap fan-out: record corners only, summarize the rest.
	b.addEdge(src, r.TopLeft, kind)
	b.addEdge(src, r.BottomRight, kind)
	b.largeRanges = append(b.largeRanges, LargeRangeSummary{Source: src, Range: r, CellCount: size})
}

// resolveNamedRef resolves a NAME reference through the named-range
// table, recursing through formula-backed names, with bounded depth and
// cycle detection along the current resolution path (spec.md §9).
func (b *Builder) resolveNamedRef(src address.CellAddress, name string) {
	visited := map[string]bool{}
	ok := b.resolveNamedInto(src, name, visited, 1)
	if !ok {
		return
	}
}

func (b *Builder) resolveNamedInto(src address.CellAddress, name string, visited map[string]bool, depth int) bool {
	key := strings.ToLower(name)
	def, found := b.namedLower[key]
	if !found {
		// Unknown name: not distinguishable from a typo; dropped silently.
		return true
	}
	if visited[key] {
		b.namedRangeIssues = append(b.namedRangeIssues, src)
		return false
	}
	if depth > b.NamedRangeMaxDepth {
		b.namedRangeIssues = append(b.namedRangeIssues, src)
		return false
	}
	visited[key] = true
	defer delete(visited, key)

	if def.Range != nil {
		b.addRangeEdges(src, *def.Range, Named)
		return true
	}

	// Formula-backed name: recurse through its own references.
	tokens := lexFormula(def.Formula)
	extracted := extractRefs(tokens, def.HomeSheet)
	for _, ref := range extracted {
		switch ref.Kind {
		case reference.Cell:
			b.addEdge(src, ref.Address, Named)
		case reference.Range:
			b.addRangeEdges(src, ref.Range, Named)
		case reference.Named:
			if !b.resolveNamedInto(src, ref.Name, visited, depth+1) {
				return false
			}
		}
	}
	return true
}

// LargeRanges returns every range reference whose fan-out exceeded the
// cap, for the anomaly/reporting layers.
func (b *Builder) LargeRanges() []LargeRangeSummary { return b.largeRanges }

// NamedRangeIssues returns the triggering formula addresses for named
// ranges that hit a cycle or exceeded the max resolution depth.
func (b *Builder) NamedRangeIssues() []address.CellAddress { return b.namedRangeIssues }

// Build finalizes the accumulated nodes/edges into an immutable Graph:
// materializes the lvlath adjacency, assigns is_output, and runs cycle
// detection (Tarjan SCC, see scc.go).
func (b *Builder) Build() *Graph {
	g := core.NewGraph(true, true)
	for key := range b.cells {
		g.AddVertex(&core.Vertex{ID: key, Metadata: map[string]interface{}{}})
	}
	hasIncoming := make(map[string]bool, len(b.cells))
	for key, kind := range b.edgeKind {
		g.AddEdge(key.src, key.tgt, kind.rank())
		hasIncoming[key.tgt] = true
	}

	for key, c := range b.cells {
		if c.HasFormula() && !hasIncoming[key] {
			c.Flags |= IsOutput
		}
	}

	gr := &Graph{g: g, cells: b.cells}
	gr.cycles = findCycles(gr)
	return gr
}
