package analysis

import (
	"context"
	"testing"

	"github.com/cellgraph/engine/internal/anomaly"
	"github.com/cellgraph/engine/internal/workbook"
	"github.com/stretchr/testify/require"
)

// fakeReader is an in-memory workbook.Reader built straight from a
// record slice, used so these orchestrator tests don't need a real
// spreadsheet file on disk.
type fakeReader struct {
	sheets []string
	named  []workbook.NamedRange
	cells  []workbook.Record
}

func (r fakeReader) SheetNames() ([]string, error)            { return r.sheets, nil }
func (r fakeReader) NamedRanges() ([]workbook.NamedRange, error) { return r.named, nil }
func (r fakeReader) Cells(fn func(workbook.Record) bool) error {
	for _, c := range r.cells {
		if !fn(c) {
			break
		}
	}
	return nil
}

func rec(sheet string, row, col uint32, value any, formula string) workbook.Record {
	return workbook.Record{Sheet: sheet, Row: row, Col: col, Value: value, Formula: formula}
}

func findAnomaly(anomalies []anomaly.Anomaly, typ anomaly.Type, addr string) bool {
	for _, a := range anomalies {
		if a.Type == typ && a.CellAddress == addr {
			return true
		}
	}
	return false
}

func findNode(nodes []Node, id string) (Node, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// S1: S!A1=1, S!A2=2, S!A3==A1+A2.
func TestAnalyze_S1_SimpleSum(t *testing.T) {
	r := fakeReader{
		sheets: []string{"S"},
		cells: []workbook.Record{
			rec("S", 1, 1, 1.0, ""),
			rec("S", 2, 1, 2.0, ""),
			rec("S", 3, 1, nil, "=A1+A2"),
		},
	}
	result, err := Analyze(context.Background(), r, Options{DetectAnomalies: true, IdentifyCostDrivers: true})
	require.NoError(t, err)

	require.Equal(t, 3, result.Graph.Metrics.NodeCount)
	require.Equal(t, 2, result.Graph.Metrics.EdgeCount)
	require.Empty(t, result.Anomalies.Anomalies)

	a3, ok := findNode(result.Graph.Nodes, "S!A3")
	require.True(t, ok)
	require.True(t, a3.IsOutput)

	a1, ok := findNode(result.Graph.Nodes, "S!A1")
	require.True(t, ok)
	require.True(t, a1.IsInput)
	a2, ok := findNode(result.Graph.Nodes, "S!A2")
	require.True(t, ok)
	require.True(t, a2.IsInput)
}

// S2: S!A1==B1, S!B1==A1 (cycle).
func TestAnalyze_S2_Cycle(t *testing.T) {
	r := fakeReader{
		sheets: []string{"S"},
		cells: []workbook.Record{
			rec("S", 1, 1, nil, "=B1"),
			rec("S", 1, 2, nil, "=A1"),
		},
	}
	result, err := Analyze(context.Background(), r, Options{DetectAnomalies: true})
	require.NoError(t, err)

	require.True(t, findAnomaly(result.Anomalies.Anomalies, anomaly.CircularReference, "S!A1"))
	require.Equal(t, 1, result.Graph.Metrics.MaxDepth)

	for _, a := range result.Anomalies.Anomalies {
		if a.Type == anomaly.CircularReference {
			cycle, _ := a.Metadata["cycle"].([]string)
			require.Equal(t, []string{"S!A1", "S!B1"}, cycle)
		}
	}
}

// S3: Summary!A1==SUM(Data!B2:B4).
func TestAnalyze_S3_CrossSheetRange(t *testing.T) {
	r := fakeReader{
		sheets: []string{"Summary", "Data"},
		cells: []workbook.Record{
			rec("Summary", 1, 1, nil, "=SUM(Data!B2:B4)"),
			rec("Data", 2, 2, 1.0, ""),
			rec("Data", 3, 2, 2.0, ""),
			rec("Data", 4, 2, 3.0, ""),
		},
	}
	result, err := Analyze(context.Background(), r, Options{})
	require.NoError(t, err)

	rangeEdges := 0
	for _, e := range result.Graph.Edges {
		if e.Source == "Summary!A1" && e.Kind == "range_member" {
			rangeEdges++
		}
	}
	require.Equal(t, 3, rangeEdges)
}

// S4: S!A1==Missing!X9 where Missing doesn't exist.
func TestAnalyze_S4_MissingDependency(t *testing.T) {
	r := fakeReader{
		sheets: []string{"S"},
		cells: []workbook.Record{
			rec("S", 1, 1, nil, "=Missing!X9"),
		},
	}
	result, err := Analyze(context.Background(), r, Options{DetectAnomalies: true})
	require.NoError(t, err)

	require.True(t, findAnomaly(result.Anomalies.Anomalies, anomaly.MissingDependency, "S!A1"))
	require.False(t, findAnomaly(result.Anomalies.Anomalies, anomaly.BrokenReference, "S!A1"))

	a1, ok := findNode(result.Graph.Nodes, "S!A1")
	require.True(t, ok)
	require.False(t, a1.HasError)

	missing, ok := findNode(result.Graph.Nodes, "Missing!X9")
	require.True(t, ok)
	require.False(t, missing.HasFormula)
}

// S5: S!A1==INDIRECT("S!B"&"2") with S!B2=5; constant-folding of string
// concatenation is off by default, so no edge is produced, only a
// dynamic_unresolved anomaly.
func TestAnalyze_S5_DynamicUnresolved(t *testing.T) {
	r := fakeReader{
		sheets: []string{"S"},
		cells: []workbook.Record{
			rec("S", 1, 1, nil, `=INDIRECT("S!B"&"2")`),
			rec("S", 2, 2, 5.0, ""),
		},
	}
	result, err := Analyze(context.Background(), r, Options{DetectAnomalies: true})
	require.NoError(t, err)

	require.True(t, findAnomaly(result.Anomalies.Anomalies, anomaly.DynamicUnresolved, "S!A1"))
	for _, e := range result.Graph.Edges {
		require.NotEqual(t, "S!A1", e.Source)
	}
}

// S6: S!Z99==1+1, no referencing cell and no outgoing references.
func TestAnalyze_S6_OrphanFormula(t *testing.T) {
	r := fakeReader{
		sheets: []string{"S"},
		cells: []workbook.Record{
			rec("S", 99, 26, nil, "=1+1"),
		},
	}
	result, err := Analyze(context.Background(), r, Options{DetectAnomalies: true})
	require.NoError(t, err)

	require.True(t, findAnomaly(result.Anomalies.Anomalies, anomaly.UnusedFormula, "S!Z99"))
	for _, a := range result.Anomalies.Anomalies {
		if a.Type == anomaly.UnusedFormula && a.CellAddress == "S!Z99" {
			require.Equal(t, anomaly.Low, a.Severity)
		}
	}
}

func TestAnalyze_EmptyWorkbook(t *testing.T) {
	r := fakeReader{sheets: []string{"S"}}
	result, err := Analyze(context.Background(), r, Options{DetectAnomalies: true, IdentifyCostDrivers: true})
	require.NoError(t, err)

	require.Equal(t, 0, result.Graph.Metrics.NodeCount)
	require.Empty(t, result.Anomalies.Anomalies)
	require.Empty(t, result.CostDrivers.TopDrivers)
	require.Equal(t, 0.0, result.Metrics.AvgComplexity)
}

func TestAnalyze_Deterministic(t *testing.T) {
	r := fakeReader{
		sheets: []string{"S"},
		cells: []workbook.Record{
			rec("S", 1, 1, 1.0, ""),
			rec("S", 2, 1, nil, "=A1"),
			rec("S", 3, 1, nil, "=A2"),
		},
	}
	opts := Options{DetectAnomalies: true, IdentifyCostDrivers: true}
	r1, err := Analyze(context.Background(), r, opts)
	require.NoError(t, err)
	r2, err := Analyze(context.Background(), r, opts)
	require.NoError(t, err)

	r1.JobID, r2.JobID = "", ""
	require.Equal(t, r1, r2)
}

func TestAnalyze_IncludeValuesOption(t *testing.T) {
	r := fakeReader{
		sheets: []string{"S"},
		cells:  []workbook.Record{rec("S", 1, 1, 42.0, "")},
	}
	without, err := Analyze(context.Background(), r, Options{})
	require.NoError(t, err)
	n, ok := findNode(without.Graph.Nodes, "S!A1")
	require.True(t, ok)
	require.Nil(t, n.Value)

	with, err := Analyze(context.Background(), r, Options{IncludeValues: true})
	require.NoError(t, err)
	n, ok = findNode(with.Graph.Nodes, "S!A1")
	require.True(t, ok)
	require.Equal(t, 42.0, n.Value)
}

func TestAnalyze_TopDriversCountClamped(t *testing.T) {
	r := fakeReader{
		sheets: []string{"S"},
		cells: []workbook.Record{
			rec("S", 1, 1, 1.0, ""),
			rec("S", 2, 1, nil, "=A1"),
			rec("S", 3, 1, nil, "=A2"),
		},
	}
	result, err := Analyze(context.Background(), r, Options{IdentifyCostDrivers: true, TopDriversCount: 100000})
	require.NoError(t, err)
	require.LessOrEqual(t, len(result.CostDrivers.TopDrivers), result.CostDrivers.TotalDrivers)
}
