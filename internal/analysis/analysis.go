// Package analysis is the top-level orchestrator, spec.md §5/§6: it
// drains a workbook.Reader, runs the tokenize/extract/resolve/build
// pipeline, then the anomaly and cost-driver passes, and assembles the
// single AnalysisResult document callers receive.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/cellgraph/engine/config"
	"github.com/cellgraph/engine/internal/address"
	"github.com/cellgraph/engine/internal/anomaly"
	"github.com/cellgraph/engine/internal/costdriver"
	"github.com/cellgraph/engine/internal/dag"
	"github.com/cellgraph/engine/internal/dynamic"
	"github.com/cellgraph/engine/internal/reference"
	"github.com/cellgraph/engine/internal/runtime"
	"github.com/cellgraph/engine/internal/telemetry"
	"github.com/cellgraph/engine/internal/tokenizer"
	"github.com/cellgraph/engine/internal/workbook"
	"github.com/cellgraph/engine/pkg/engerr"
	"github.com/google/uuid"
)

// Options is spec.md §6's "options record to analyze". The numeric
// fields and Controller fall back to a config default at their zero
// value; the bool fields are used as given, and a nil Hooks disables
// logging. Nothing here is process-global.
type Options struct {
	IncludeValues       bool
	DetectAnomalies     bool
	IdentifyCostDrivers bool
	TopDriversCount     int
	FanoutCap           int
	NamedRangeMaxDepth  int
	BetweennessSeed     int64
	Controller          *runtime.Controller
	Hooks               *telemetry.Hooks
}

func (o Options) normalized() Options {
	out := o
	if out.TopDriversCount <= 0 {
		out.TopDriversCount = config.DefaultTopDriversCount
	}
	if out.TopDriversCount > config.DefaultTopDriversMax {
		out.TopDriversCount = config.DefaultTopDriversMax
	}
	if out.FanoutCap <= 0 {
		out.FanoutCap = config.DefaultRangeFanoutCap
	}
	if out.NamedRangeMaxDepth <= 0 {
		out.NamedRangeMaxDepth = config.DefaultNamedRangeMaxDepth
	}
	if out.BetweennessSeed == 0 {
		out.BetweennessSeed = config.DefaultBetweennessSampleSeed
	}
	if out.Controller == nil {
		out.Controller = runtime.NewController(runtime.NewLimits(0, 0))
	}
	return out
}

// Node is the spec.md §6 graph.nodes record.
type Node struct {
	ID         string `json:"id"`
	Sheet      string `json:"sheet"`
	Row        uint32 `json:"row"`
	Col        uint32 `json:"col"`
	Value      any    `json:"value,omitempty"`
	Formula    string `json:"formula,omitempty"`
	HasFormula bool   `json:"has_formula"`
	IsInput    bool   `json:"is_input"`
	IsOutput   bool   `json:"is_output"`
	HasError   bool   `json:"has_error"`
}

// EdgeView is the spec.md §6 graph.edges record.
type EdgeView struct {
	Source string       `json:"source"`
	Target string       `json:"target"`
	Kind   dag.EdgeKind `json:"kind"`
}

// Graph is the spec.md §6 "graph" document section.
type Graph struct {
	Nodes   []Node     `json:"nodes"`
	Edges   []EdgeView `json:"edges"`
	Metrics dag.Metrics `json:"metrics"`
}

// Anomalies is the spec.md §6 "anomalies" document section.
type Anomalies struct {
	TotalCount int               `json:"total_count"`
	Anomalies  []anomaly.Anomaly `json:"anomalies"`
}

// CostDrivers is the spec.md §6 "cost_drivers" document section.
type CostDrivers struct {
	TotalDrivers int                    `json:"total_drivers"`
	TopDrivers   []costdriver.CostDriver `json:"top_drivers"`
}

// Summary is the spec.md §6 top-level "metrics" document section.
type Summary struct {
	SheetCount     int     `json:"sheet_count"`
	FormulaCount   int     `json:"formula_count"`
	InputCount     int     `json:"input_count"`
	AvgComplexity  float64 `json:"avg_complexity"`
}

// Result is the full spec.md §6 AnalysisResult document.
type Result struct {
	JobID       string      `json:"job_id"`
	Graph       Graph       `json:"graph"`
	Anomalies   Anomalies   `json:"anomalies"`
	CostDrivers CostDrivers `json:"cost_drivers"`
	Metrics     Summary     `json:"metrics"`
}

// literalTable implements dynamic.Literals over the cell values read in
// Phase 1, the only inputs the dynamic resolver may consult for a cell
// argument (spec.md §4.4).
type literalTable struct {
	cells map[string]workbook.Record
}

func (lt literalTable) NumberAt(addr address.CellAddress) (float64, bool) {
	rec, ok := lt.cells[addr.String()]
	if !ok || rec.Formula != "" {
		return 0, false
	}
	switch v := rec.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func (lt literalTable) StringAt(addr address.CellAddress) (string, bool) {
	rec, ok := lt.cells[addr.String()]
	if !ok || rec.Formula != "" {
		return "", false
	}
	s, ok := rec.Value.(string)
	return s, ok
}

// Analyze runs the full pipeline described in spec.md §4-§6 over reader
// and returns the assembled document. The reader is drained once but
// never mutated, so repeated calls over the same reader return identical
// documents apart from JobID, which is a fresh UUID per call (spec.md
// §8, invariant 5).
func Analyze(ctx context.Context, reader workbook.Reader, opts Options) (Result, error) {
	opts = opts.normalized()
	jobID := uuid.NewString()
	start := time.Now()
	if opts.Hooks != nil {
		opts.Hooks.OnAnalysisStart(jobID)
	}

	result, err := analyze(ctx, reader, opts, jobID)
	if opts.Hooks != nil {
		opts.Hooks.OnAnalysisEnd(jobID, time.Since(start), err)
	}
	return result, err
}

func analyze(ctx context.Context, reader workbook.Reader, opts Options, jobID string) (Result, error) {
	phaseStart := time.Now()

	records, err := drain(reader)
	if err != nil {
		return Result{}, engerr.Reader(engerr.CodeCellEnumFailed, err)
	}
	namedDefs, err := reader.NamedRanges()
	if err != nil {
		return Result{}, engerr.Reader(engerr.CodeNamedRangeReadFailed, err)
	}
	reportPhase(opts, jobID, "read", phaseStart, len(records))

	builder := dag.NewBuilder()
	builder.FanoutCap = opts.FanoutCap
	builder.NamedRangeMaxDepth = opts.NamedRangeMaxDepth

	byAddr := make(map[string]workbook.Record, len(records))
	for _, rec := range records {
		addr := address.CellAddress{Sheet: rec.Sheet, Row: rec.Row, Col: rec.Col}
		byAddr[addr.String()] = rec
		builder.AddPopulatedCell(addr, rec.Value, rec.Formula)
	}

	for _, nd := range namedDefs {
		builder.AddNamedRange(toNamedRangeDef(nd))
	}

	lits := literalTable{cells: byAddr}

	phaseStart = time.Now()
	analyses, err := tokenizeExtractResolve(ctx, records, lits, opts.Controller)
	if err != nil {
		return Result{}, err
	}
	for _, fa := range analyses {
		builder.AddFormula(fa)
	}
	reportPhase(opts, jobID, "tokenize_extract_resolve", phaseStart, len(analyses))

	phaseStart = time.Now()
	graph := builder.Build()
	reportPhase(opts, jobID, "dag_build", phaseStart, len(graph.Nodes()))

	var anomalies []anomaly.Anomaly
	var drivers costdriver.Result
	if opts.DetectAnomalies {
		phaseStart = time.Now()
		anomalies = anomaly.Detect(anomaly.Inputs{Graph: graph, NamedRangeIssues: builder.NamedRangeIssues(), LargeRanges: builder.LargeRanges()})
		reportPhase(opts, jobID, "anomaly_detect", phaseStart, len(anomalies))
	}
	if opts.IdentifyCostDrivers {
		phaseStart = time.Now()
		drivers = costdriver.Rank(graph, opts.TopDriversCount, opts.BetweennessSeed)
		reportPhase(opts, jobID, "cost_driver_rank", phaseStart, len(drivers.TopDrivers))
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	return assemble(jobID, graph, anomalies, drivers, opts), nil
}

func drain(reader workbook.Reader) ([]workbook.Record, error) {
	var out []workbook.Record
	err := reader.Cells(func(rec workbook.Record) bool {
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// toNamedRangeDef classifies a defined name's raw RefersTo body as
// either a range (the common case) or a formula, re-qualifying it with
// its home sheet first since splitRefersTo already stripped any sheet
// prefix from the definition string.
func toNamedRangeDef(nd workbook.NamedRange) dag.NamedRangeDef {
	qualified := nd.Definition
	if nd.HomeSheet != "" {
		qualified = nd.HomeSheet + "!" + nd.Definition
	}
	if rng, rerr := address.ParseRange(qualified); rerr == nil {
		return dag.NamedRangeDef{Name: nd.Name, Range: &rng, HomeSheet: nd.HomeSheet}
	}
	return dag.NamedRangeDef{Name: nd.Name, Formula: "=" + nd.Definition, HomeSheet: nd.HomeSheet}
}

func analyzeFormula(addr address.CellAddress, formula, homeSheet string, lits literalTable) dag.FormulaAnalysis {
	lexed := tokenizer.Lex(formula)
	extracted := reference.Extract(lexed.Tokens, homeSheet)
	outcome := dynamic.Resolve(lexed.Tokens, homeSheet, lits)

	hasErrorToken := false
	for _, tok := range lexed.Tokens {
		if tok.Kind == tokenizer.ErrorLiteral {
			hasErrorToken = true
			break
		}
	}

	return dag.FormulaAnalysis{
		Address:       addr,
		References:    extracted.References,
		Dynamic:       outcome,
		Complexity:    extracted.Complexity,
		LexError:      lexed.HadLexErr,
		HasErrorToken: hasErrorToken,
	}
}

func assemble(jobID string, graph *dag.Graph, anomalies []anomaly.Anomaly, drivers costdriver.Result, opts Options) Result {
	nodes := graph.Nodes()
	sheetSet := make(map[string]bool)
	formulaCount, inputCount := 0, 0
	complexitySum := 0

	outNodes := make([]Node, 0, len(nodes))
	for _, c := range nodes {
		sheetSet[c.Address.Sheet] = true
		if c.HasFormula() {
			formulaCount++
			complexitySum += c.Complexity
		}
		if c.IsInput() {
			inputCount++
		}
		n := Node{
			ID:         c.Address.String(),
			Sheet:      c.Address.Sheet,
			Row:        c.Address.Row,
			Col:        c.Address.Col,
			Formula:    c.Formula,
			HasFormula: c.HasFormula(),
			IsInput:    c.IsInput(),
			IsOutput:   c.IsOutput(),
			HasError:   c.HasError(),
		}
		if opts.IncludeValues {
			n.Value = c.Value
		}
		outNodes = append(outNodes, n)
	}

	edges := graph.Edges()
	outEdges := make([]EdgeView, 0, len(edges))
	for _, e := range edges {
		outEdges = append(outEdges, EdgeView{Source: e.Source.String(), Target: e.Target.String(), Kind: e.Kind})
	}

	avgComplexity := 0.0
	if formulaCount > 0 {
		avgComplexity = float64(complexitySum) / float64(formulaCount)
	}

	return Result{
		JobID: jobID,
		Graph: Graph{
			Nodes:   outNodes,
			Edges:   outEdges,
			Metrics: graph.Metrics(),
		},
		Anomalies: Anomalies{
			TotalCount: len(anomalies),
			Anomalies:  anomalies,
		},
		CostDrivers: CostDrivers{
			TotalDrivers: drivers.TotalEligible,
			TopDrivers:   drivers.TopDrivers,
		},
		Metrics: Summary{
			SheetCount:    len(sheetSet),
			FormulaCount:  formulaCount,
			InputCount:    inputCount,
			AvgComplexity: avgComplexity,
		},
	}
}

func reportPhase(opts Options, jobID, phase string, start time.Time, count int) {
	if opts.Hooks != nil {
		opts.Hooks.OnPhase(jobID, phase, time.Since(start), count)
	}
}

// tokenizeExtractResolve runs Phase 1's tokenize/extract/dynamic-resolve
// step across every formula cell, bounded by controller's worker
// semaphore (spec.md §5: "embarrassingly parallel across cells"). The
// DAG builder itself stays single-threaded: this returns analyses in
// original record order so the caller's single writer thread consumes
// them deterministically.
func tokenizeExtractResolve(ctx context.Context, records []workbook.Record, lits literalTable, controller *runtime.Controller) ([]dag.FormulaAnalysis, error) {
	type slot struct {
		fa dag.FormulaAnalysis
		ok bool
	}
	slots := make([]slot, len(records))

	var wg sync.WaitGroup
	errCh := make(chan error, 1)
	for i, rec := range records {
		if rec.Formula == "" {
			continue
		}
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := controller.AcquireWorker(ctx); err != nil {
			select {
			case errCh <- err:
			default:
			}
			break
		}
		wg.Add(1)
		go func(i int, rec workbook.Record) {
			defer wg.Done()
			defer controller.ReleaseWorker()
			addr := address.CellAddress{Sheet: rec.Sheet, Row: rec.Row, Col: rec.Col}
			slots[i] = slot{fa: analyzeFormula(addr, rec.Formula, rec.Sheet, lits), ok: true}
		}(i, rec)
	}
	wg.Wait()
	close(errCh)
	if err := <-errCh; err != nil {
		return nil, err
	}

	out := make([]dag.FormulaAnalysis, 0, len(records))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.fa)
		}
	}
	return out, nil
}
