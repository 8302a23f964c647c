package dag

import (
	"testing"

	"github.com/cellgraph/engine/internal/address"
	"github.com/cellgraph/engine/internal/reference"
	"github.com/cellgraph/engine/internal/tokenizer"
	"github.com/stretchr/testify/require"
)

func cell(sheet string, row, col uint32) address.CellAddress {
	return address.CellAddress{Sheet: sheet, Row: row, Col: col}
}

func analyze(t *testing.T, addr address.CellAddress, formula, homeSheet string) FormulaAnalysis {
	t.Helper()
	toks := tokenizer.Lex(formula)
	res := reference.Extract(toks.Tokens, homeSheet)
	errTok := false
	for _, tok := range toks.Tokens {
		if tok.Kind == tokenizer.ErrorLiteral {
			errTok = true
			break
		}
	}
	return FormulaAnalysis{
		Address:       addr,
		References:    res.References,
		Complexity:    res.Complexity,
		LexError:      toks.HadLexErr,
		HasErrorToken: errTok,
	}
}

func TestBuild_S1_SimpleSum(t *testing.T) {
	b := NewBuilder()
	b.AddPopulatedCell(cell("S", 1, 1), 1.0, "")
	b.AddPopulatedCell(cell("S", 2, 1), 2.0, "")
	b.AddPopulatedCell(cell("S", 3, 1), nil, "=A1+A2")
	b.AddFormula(analyze(t, cell("S", 3, 1), "=A1+A2", "S"))

	g := b.Build()
	m := g.Metrics()
	require.Equal(t, 3, m.NodeCount)
	require.Equal(t, 2, m.EdgeCount)
	require.Empty(t, g.Cycles())

	a3, ok := g.Node(cell("S", 3, 1))
	require.True(t, ok)
	require.True(t, a3.IsOutput())

	a1, ok := g.Node(cell("S", 1, 1))
	require.True(t, ok)
	require.True(t, a1.IsInput())

	a2, ok := g.Node(cell("S", 2, 1))
	require.True(t, ok)
	require.True(t, a2.IsInput())
}

func TestBuild_S2_Cycle(t *testing.T) {
	b := NewBuilder()
	a1 := cell("S", 1, 1)
	b1 := cell("S", 1, 2)
	b.AddPopulatedCell(a1, nil, "=B1")
	b.AddPopulatedCell(b1, nil, "=A1")
	b.AddFormula(analyze(t, a1, "=B1", "S"))
	b.AddFormula(analyze(t, b1, "=A1", "S"))

	g := b.Build()
	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	require.Equal(t, []address.CellAddress{a1, b1}, cycles[0])
	require.Equal(t, 1, g.Metrics().MaxDepth)
}

func TestBuild_S3_CrossSheetRange(t *testing.T) {
	b := NewBuilder()
	summary := cell("Summary", 1, 1)
	b.AddPopulatedCell(summary, nil, "=SUM(Data!B2:B4)")
	b.AddFormula(analyze(t, summary, "=SUM(Data!B2:B4)", "Summary"))

	g := b.Build()
	var rangeEdges int
	for _, e := range g.Edges() {
		if e.Source.Equal(summary) && e.Kind == RangeMember {
			rangeEdges++
		}
	}
	require.Equal(t, 3, rangeEdges)
}

func TestBuild_S4_BrokenReference(t *testing.T) {
	b := NewBuilder()
	src := cell("S", 1, 1)
	b.AddPopulatedCell(src, nil, "=Missing!X9")
	b.AddFormula(analyze(t, src, "=Missing!X9", "S"))

	g := b.Build()
	target := cell("Missing", 9, 24) // X -> column 24
	node, ok := g.Node(target)
	require.True(t, ok)
	require.False(t, node.HasFormula())
	require.False(t, node.IsInput())

	srcNode, ok := g.Node(src)
	require.True(t, ok)
	require.False(t, srcNode.HasError())
}

func TestBuilder_EdgeCoalescing_DirectBeatsRangeMember(t *testing.T) {
	b := NewBuilder()
	src := cell("S", 5, 1)
	tgt := cell("S", 1, 2)
	b.addEdge(src, tgt, RangeMember)
	b.addEdge(src, tgt, Direct)
	require.Equal(t, Direct, b.edgeKind[edgeKey{src: src.String(), tgt: tgt.String()}])

	// A weaker kind arriving after a stronger one must not downgrade it.
	b.addEdge(src, tgt, Named)
	require.Equal(t, Direct, b.edgeKind[edgeKey{src: src.String(), tgt: tgt.String()}])
}

func TestBuilder_LargeRangeCapped(t *testing.T) {
	b := NewBuilder()
	b.FanoutCap = 4
	src := cell("S", 1, 1)
	r := address.CellRange{TopLeft: cell("S", 1, 1), BottomRight: cell("S", 100, 100)}
	b.addRangeEdges(src, r, RangeMember)

	require.Len(t, b.LargeRanges(), 1)
	require.Equal(t, 10000, b.LargeRanges()[0].CellCount)

	g := b.Build()
	var targets []address.CellAddress
	for _, e := range g.Edges() {
		if e.Source.Equal(src) {
			targets = append(targets, e.Target)
		}
	}
	require.ElementsMatch(t, []address.CellAddress{r.TopLeft, r.BottomRight}, targets)
}

func TestBuilder_NamedRangeCycleDetected(t *testing.T) {
	b := NewBuilder()
	b.AddNamedRange(NamedRangeDef{Name: "Foo", Formula: "Bar", HomeSheet: "S"})
	b.AddNamedRange(NamedRangeDef{Name: "Bar", Formula: "Foo", HomeSheet: "S"})

	src := cell("S", 1, 1)
	b.AddPopulatedCell(src, nil, "=Foo")
	b.AddFormula(analyze(t, src, "=Foo", "S"))

	require.Contains(t, b.NamedRangeIssues(), src)
}

func TestBuilder_NamedRangeResolvesToRange(t *testing.T) {
	b := NewBuilder()
	r := address.CellRange{TopLeft: cell("Data", 2, 2), BottomRight: cell("Data", 4, 2)}
	b.AddNamedRange(NamedRangeDef{Name: "Revenue", Range: &r, HomeSheet: "Data"})

	src := cell("S", 1, 1)
	b.AddPopulatedCell(src, nil, "=SUM(Revenue)")
	b.AddFormula(analyze(t, src, "=SUM(Revenue)", "S"))

	g := b.Build()
	var named int
	for _, e := range g.Edges() {
		if e.Source.Equal(src) && e.Kind == Named {
			named++
		}
	}
	require.Equal(t, 3, named)
}
