// Command analyze runs the dependency-graph and cost-driver analysis
// engine over a single workbook and writes the resulting AnalysisResult
// as JSON to stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/cellgraph/engine/internal/analysis"
	"github.com/cellgraph/engine/internal/runtime"
	"github.com/cellgraph/engine/internal/security"
	"github.com/cellgraph/engine/internal/telemetry"
	"github.com/cellgraph/engine/internal/workbook"
	"github.com/cellgraph/engine/pkg/validation"
	"github.com/cellgraph/engine/pkg/version"
)

// cliInput is validated before any file or network access happens, per
// the teacher's convention of validating MCP tool requests up front.
type cliInput struct {
	Path            string `validate:"required,filepath_ext"`
	AnomaliesCursor string `validate:"omitempty,cursor"`
	DriversCursor   string `validate:"omitempty,cursor"`
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		path                string
		includeValues       bool
		detectAnomalies     bool
		identifyCostDrivers bool
		topDriversCount     int
		fanoutCap           int
		namedRangeMaxDepth  int
		betweennessSeed     int64
		timeout             time.Duration
		showVersion         bool
		pageSize            int
		anomaliesCursor     string
		driversCursor       string
	)

	flag.StringVar(&path, "path", "", "Path to the workbook to analyze (.xlsx, .xlsm, .xltx, .xltm)")
	flag.BoolVar(&includeValues, "include-values", false, "Include literal cell values in the graph output")
	flag.BoolVar(&detectAnomalies, "detect-anomalies", true, "Run the anomaly-detection pass")
	flag.BoolVar(&identifyCostDrivers, "identify-cost-drivers", true, "Run the cost-driver ranking pass")
	flag.IntVar(&topDriversCount, "top-drivers-count", 0, "Number of cost drivers to return (0 uses the engine default)")
	flag.IntVar(&fanoutCap, "fanout-cap", 0, "Per-range edge fan-out cap before summarizing (0 uses the engine default)")
	flag.IntVar(&namedRangeMaxDepth, "named-range-max-depth", 0, "Named-range resolution recursion cap (0 uses the engine default)")
	flag.Int64Var(&betweennessSeed, "betweenness-seed", 0, "RNG seed for sampled betweenness/dependent-count passes")
	flag.DurationVar(&timeout, "timeout", 0, "Overall analysis timeout (0 uses the engine default)")
	flag.BoolVar(&showVersion, "version", false, "Print the engine version and exit")
	flag.IntVar(&pageSize, "page-size", 0, "Page anomalies and cost drivers instead of returning the full lists (0 disables paging)")
	flag.StringVar(&anomaliesCursor, "anomalies-cursor", "", "Resume anomaly paging from a cursor returned by a previous run")
	flag.StringVar(&driversCursor, "drivers-cursor", "", "Resume cost-driver paging from a cursor returned by a previous run")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Version())
		return
	}

	logger := zlog.With().Str("service", "cellgraph-analyze").Str("version", version.Version()).Logger()
	ctx := logger.WithContext(context.Background())

	if path == "" {
		logger.Error().Msg("missing required -path flag")
		fmt.Fprintln(os.Stderr, "usage: analyze -path <workbook.xlsx> [flags]")
		os.Exit(2)
	}

	input := cliInput{Path: path, AnomaliesCursor: anomaliesCursor, DriversCursor: driversCursor}
	if msg := validation.ValidateStruct(input); msg != "" {
		logger.Error().Str("path", path).Msg(msg)
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(2)
	}

	secMgr, err := security.NewManagerFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize manager from env")
		fmt.Fprintln(os.Stderr, "invalid security configuration; set CELLGRAPH_ALLOWED_DIRS")
		os.Exit(1)
	}
	if err := secMgr.ValidateConfig(); err != nil {
		logger.Error().Err(err).Msg("security: invalid allow-list configuration")
		fmt.Fprintln(os.Stderr, "no allowed directories configured; set CELLGRAPH_ALLOWED_DIRS")
		os.Exit(1)
	}

	validPath, err := secMgr.ValidateOpenPath(path)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("security: path rejected")
		fmt.Fprintf(os.Stderr, "path rejected: %v\n", err)
		os.Exit(1)
	}

	reader, err := workbook.Open(validPath)
	if err != nil {
		logger.Error().Err(err).Str("path", validPath).Msg("failed to open workbook")
		fmt.Fprintf(os.Stderr, "failed to open workbook: %v\n", err)
		os.Exit(1)
	}
	defer reader.Close()

	if timeout <= 0 {
		timeout = runtime.NewLimits(0, 0).OperationTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	controller := runtime.NewController(runtime.NewLimits(0, 1))
	hooks := telemetry.NewHooks(logger)

	opts := analysis.Options{
		IncludeValues:       includeValues,
		DetectAnomalies:     detectAnomalies,
		IdentifyCostDrivers: identifyCostDrivers,
		TopDriversCount:     topDriversCount,
		FanoutCap:           fanoutCap,
		NamedRangeMaxDepth:  namedRangeMaxDepth,
		BetweennessSeed:     betweennessSeed,
		Controller:          controller,
		Hooks:               hooks,
	}

	logger.Info().Str("path", validPath).Msg("analysis starting")

	result, err := analysis.Analyze(runCtx, reader, opts)
	if err != nil {
		logger.Error().Err(err).Msg("analysis failed")
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if pageSize <= 0 {
		if err := enc.Encode(result); err != nil {
			logger.Error().Err(err).Msg("failed to encode result")
			fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
			os.Exit(1)
		}
		return
	}

	anomalyPage, anomalyNext, err := analysis.PageAnomalies(result.Anomalies.Anomalies, anomaliesCursor, pageSize)
	if err != nil {
		logger.Error().Err(err).Msg("invalid anomalies cursor")
		fmt.Fprintf(os.Stderr, "invalid anomalies cursor: %v\n", err)
		os.Exit(2)
	}
	driverPage, driverNext, err := analysis.PageCostDrivers(result.CostDrivers.TopDrivers, driversCursor, pageSize)
	if err != nil {
		logger.Error().Err(err).Msg("invalid drivers cursor")
		fmt.Fprintf(os.Stderr, "invalid drivers cursor: %v\n", err)
		os.Exit(2)
	}

	result.Anomalies.Anomalies = anomalyPage
	result.CostDrivers.TopDrivers = driverPage

	paged := struct {
		analysis.Result
		AnomaliesNextCursor string `json:"anomalies_next_cursor,omitempty"`
		DriversNextCursor   string `json:"drivers_next_cursor,omitempty"`
	}{Result: result, AnomaliesNextCursor: anomalyNext, DriversNextCursor: driverNext}

	if err := enc.Encode(paged); err != nil {
		logger.Error().Err(err).Msg("failed to encode result")
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(1)
	}
}
