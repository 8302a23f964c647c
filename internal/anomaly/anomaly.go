// Package anomaly scans a finalized dependency graph for the structural
// defects catalogued in spec.md §4.6: cycles, broken and missing
// references, literal-among-formulas overwrites, dead formulas,
// overly complex formulas, and unreduced dynamic references.
package anomaly

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cellgraph/engine/internal/address"
	"github.com/cellgraph/engine/internal/dag"
)

// Severity is the three-level ranking spec.md §3 assigns every Anomaly.
type Severity string

const (
	High   Severity = "high"
	Medium Severity = "medium"
	Low    Severity = "low"
)

func (s Severity) rank() int {
	switch s {
	case High:
		return 3
	case Medium:
		return 2
	default:
		return 1
	}
}

// Type is the closed set of anomaly kinds spec.md §4.6 defines.
type Type string

const (
	CircularReference  Type = "circular_reference"
	BrokenReference    Type = "broken_reference"
	MissingDependency  Type = "missing_dependency"
	HardCodedOverwrite Type = "hard_coded_overwrite"
	UnusedFormula      Type = "unused_formula"
	HighComplexity     Type = "high_complexity"
	DynamicUnresolved  Type = "dynamic_unresolved"
)

// Anomaly is one finding, per spec.md §3's Anomaly record.
type Anomaly struct {
	Type        Type           `json:"type"`
	CellAddress string         `json:"cell_address"`
	Sheet       string         `json:"sheet"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Suggestion  string         `json:"suggestion,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Inputs bundles the finalized graph with the builder-time diagnostics
// that don't survive into the Graph itself (large-range and named-range
// resolution issues), per spec.md §4.5.
type Inputs struct {
	Graph            *dag.Graph
	NamedRangeIssues []address.CellAddress
	// LargeRanges carries the ranges the builder summarized instead of
	// expanding edge-by-edge (spec.md §4.5: "the anomaly pass still sees
	// the range" even though fan-out was capped to the two corners).
	LargeRanges []dag.LargeRangeSummary
}

const complexityThreshold = 5

// Detect scans in.Graph and returns every anomaly, sorted per spec.md
// §4.6: (severity descending, type ascending, cell_address ascending).
func Detect(in Inputs) []Anomaly {
	nodes := in.Graph.Nodes()
	byAddr := make(map[string]dag.Cell, len(nodes))
	for _, c := range nodes {
		byAddr[c.Address.String()] = c
	}

	var out []Anomaly
	seen := make(map[[2]string]bool) // dedup key: (type, cell_address)
	add := func(a Anomaly) {
		key := [2]string{string(a.Type), a.CellAddress}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, a)
	}

	detectCircularReferences(in.Graph, add)
	detectReferenceAnomalies(in.Graph, nodes, byAddr, add)
	detectHardCodedOverwrites(nodes, add)
	detectUnusedFormulas(in.Graph, nodes, add)
	detectHighComplexity(nodes, add)
	detectDynamicUnresolved(nodes, add)
	detectLargeRangeGaps(in.LargeRanges, byAddr, add)

	for _, addr := range in.NamedRangeIssues {
		add(Anomaly{
			Type:        MissingDependency,
			CellAddress: addr.String(),
			Sheet:       addr.Sheet,
			Severity:    High,
			Description: "Named-range resolution exceeded the maximum nesting depth or re-entered a name already on the resolution path.",
			Suggestion:  "Flatten the named-range chain or break the cycle between defined names.",
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.rank() != out[j].Severity.rank() {
			return out[i].Severity.rank() > out[j].Severity.rank()
		}
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].CellAddress < out[j].CellAddress
	})
	return out
}

func detectCircularReferences(g *dag.Graph, add func(Anomaly)) {
	for _, cycle := range g.Cycles() {
		if len(cycle) == 0 {
			continue
		}
		addrs := make([]string, 0, len(cycle))
		for _, a := range cycle {
			addrs = append(addrs, a.String())
		}
		root := cycle[0]
		add(Anomaly{
			Type:        CircularReference,
			CellAddress: root.String(),
			Sheet:       root.Sheet,
			Severity:    High,
			Description: fmt.Sprintf("Cell participates in a circular reference spanning %d cell(s): %s.", len(cycle), strings.Join(addrs, " -> ")),
			Metadata:    map[string]any{"cycle": addrs},
		})
	}
}

// detectReferenceAnomalies covers both broken_reference and
// missing_dependency: the two share a trigger shape (an edge whose
// target is never populated) and are distinguished by whether the
// source cell itself carries an error value.
func detectReferenceAnomalies(g *dag.Graph, nodes []dag.Cell, byAddr map[string]dag.Cell, add func(Anomaly)) {
	for _, c := range nodes {
		if c.LexError {
			add(Anomaly{
				Type:        BrokenReference,
				CellAddress: c.Address.String(),
				Sheet:       c.Address.Sheet,
				Severity:    High,
				Description: "Formula contains unrecognized input the tokenizer could not scan.",
				Suggestion:  "Check the formula for a typo or an unsupported syntax construct.",
			})
		}
		if c.HasErrorToken {
			add(Anomaly{
				Type:        BrokenReference,
				CellAddress: c.Address.String(),
				Sheet:       c.Address.Sheet,
				Severity:    High,
				Description: "Formula contains a literal error token (e.g. #REF!, #NAME?) in its own body.",
				Suggestion:  "Replace the error literal with a valid reference or value.",
			})
		}
	}

	for _, e := range g.Edges() {
		target, ok := byAddr[e.Target.String()]
		if !ok || isImplicit(target) {
			source := byAddr[e.Source.String()]
			if source.HasError() {
				add(Anomaly{
					Type:        BrokenReference,
					CellAddress: e.Source.String(),
					Sheet:       e.Source.Sheet,
					Severity:    High,
					Description: fmt.Sprintf("Formula references %s, which was never populated, and the source cell itself already holds an error value.", e.Target.String()),
					Suggestion:  "Resolve the upstream error before trusting this cell's references.",
				})
			} else {
				add(Anomaly{
					Type:        MissingDependency,
					CellAddress: e.Source.String(),
					Sheet:       e.Source.Sheet,
					Severity:    High,
					Description: fmt.Sprintf("Formula references %s, a cell the workbook never populated.", e.Target.String()),
					Suggestion:  "Populate the referenced cell or update the formula to point elsewhere.",
				})
			}
			continue
		}
		if s, isStr := target.Value.(string); isStr && (s == "#REF!" || s == "#NAME?") {
			add(Anomaly{
				Type:        BrokenReference,
				CellAddress: e.Source.String(),
				Sheet:       e.Source.Sheet,
				Severity:    High,
				Description: fmt.Sprintf("Formula references %s, which holds a %s literal.", e.Target.String(), s),
				Suggestion:  "Trace the error literal back to its source and correct the underlying formula.",
			})
		}
	}
}

func isImplicit(c dag.Cell) bool {
	return c.Flags == 0 && c.Value == nil && c.Formula == ""
}

// detectLargeRangeGaps covers ranges the builder summarized instead of
// expanding edge-by-edge: fan-out capping means the graph itself only
// carries an edge to each corner, so a missing interior cell would
// otherwise be invisible to detectReferenceAnomalies. This walks the
// full range per spec.md §4.5's "the anomaly pass still sees the range".
func detectLargeRangeGaps(ranges []dag.LargeRangeSummary, byAddr map[string]dag.Cell, add func(Anomaly)) {
	for _, lr := range ranges {
		missing := 0
		lr.Range.Each(func(a address.CellAddress) bool {
			if c, ok := byAddr[a.String()]; !ok || isImplicit(c) {
				missing++
			}
			return true
		})
		if missing == 0 {
			continue
		}
		add(Anomaly{
			Type:        MissingDependency,
			CellAddress: lr.Source.String(),
			Sheet:       lr.Source.Sheet,
			Severity:    Medium,
			Description: fmt.Sprintf("Range reference %s spans %d cells and was summarized past the fan-out cap; %d of its cells were never populated.", lr.Range.String(), lr.CellCount, missing),
			Suggestion:  "Verify every cell in the range is intentionally part of this calculation.",
			Metadata:    map[string]any{"range": lr.Range.String(), "cell_count": lr.CellCount, "missing_count": missing},
		})
	}
}

// peerWindow is the ±5 row/column span spec.md §4.6's hard_coded_overwrite
// trigger checks for formula-dominated peers.
const peerWindow = 5

func detectHardCodedOverwrites(nodes []dag.Cell, add func(Anomaly)) {
	type sheetIndex struct {
		byRow map[uint32][]dag.Cell
		byCol map[uint32][]dag.Cell
	}
	sheets := make(map[string]*sheetIndex)
	for _, c := range nodes {
		idx, ok := sheets[c.Address.Sheet]
		if !ok {
			idx = &sheetIndex{byRow: map[uint32][]dag.Cell{}, byCol: map[uint32][]dag.Cell{}}
			sheets[c.Address.Sheet] = idx
		}
		idx.byRow[c.Address.Row] = append(idx.byRow[c.Address.Row], c)
		idx.byCol[c.Address.Col] = append(idx.byCol[c.Address.Col], c)
	}

	for _, c := range nodes {
		if !c.IsInput() {
			continue
		}
		idx := sheets[c.Address.Sheet]

		rowFormulas, rowTotal := 0, 0
		for _, peer := range idx.byRow[c.Address.Row] {
			if peer.Address.Col == c.Address.Col {
				continue
			}
			if withinWindow(peer.Address.Col, c.Address.Col) {
				rowTotal++
				if peer.HasFormula() {
					rowFormulas++
				}
			}
		}

		colFormulas, colTotal := 0, 0
		for _, peer := range idx.byCol[c.Address.Col] {
			if peer.Address.Row == c.Address.Row {
				continue
			}
			if withinWindow(peer.Address.Row, c.Address.Row) {
				colTotal++
				if peer.HasFormula() {
					colFormulas++
				}
			}
		}

		if rowTotal == 0 || colTotal == 0 {
			continue
		}
		if float64(rowFormulas)/float64(rowTotal) >= 0.6 && float64(colFormulas)/float64(colTotal) >= 0.6 {
			add(Anomaly{
				Type:        HardCodedOverwrite,
				CellAddress: c.Address.String(),
				Sheet:       c.Address.Sheet,
				Severity:    Medium,
				Description: "Cell holds a literal value surrounded by formulas on both its row and its column.",
				Suggestion:  "Confirm this literal is intentional rather than a formula overwritten by a pasted value.",
			})
		}
	}
}

func withinWindow(v, center uint32) bool {
	var diff uint32
	if v > center {
		diff = v - center
	} else {
		diff = center - v
	}
	return diff <= peerWindow
}

func detectUnusedFormulas(g *dag.Graph, nodes []dag.Cell, add func(Anomaly)) {
	for _, c := range nodes {
		if !c.HasFormula() {
			continue
		}
		if g.OutDegree(c.Address) == 0 && g.InDegree(c.Address) == 0 {
			add(Anomaly{
				Type:        UnusedFormula,
				CellAddress: c.Address.String(),
				Sheet:       c.Address.Sheet,
				Severity:    Low,
				Description: "Formula neither depends on nor is depended on by any other cell.",
				Suggestion:  "Confirm the formula is still needed.",
			})
		}
	}
}

func detectHighComplexity(nodes []dag.Cell, add func(Anomaly)) {
	for _, c := range nodes {
		if c.HasFormula() && c.Complexity > complexityThreshold {
			add(Anomaly{
				Type:        HighComplexity,
				CellAddress: c.Address.String(),
				Sheet:       c.Address.Sheet,
				Severity:    Medium,
				Description: fmt.Sprintf("Formula has %d operator tokens, above the complexity threshold of %d.", c.Complexity, complexityThreshold),
				Suggestion:  "Consider splitting the formula across helper cells.",
			})
		}
	}
}

func detectDynamicUnresolved(nodes []dag.Cell, add func(Anomaly)) {
	for _, c := range nodes {
		if c.DynamicUnresolved {
			add(Anomaly{
				Type:        DynamicUnresolved,
				CellAddress: c.Address.String(),
				Sheet:       c.Address.Sheet,
				Severity:    Low,
				Description: "Formula calls INDIRECT/OFFSET/INDEX with arguments the resolver could not reduce to a concrete reference.",
				Suggestion:  "Replace the dynamic call with a direct reference where possible, or document the intended target.",
			})
		}
	}
}
