package telemetry

import (
	"time"

	"github.com/rs/zerolog"
)

// Hooks emits structured, per-phase log events for one Analyze run.
// It is intentionally minimal; metrics backends can be added later
// under this package.
type Hooks struct {
	logger zerolog.Logger
}

// NewHooks constructs a Hooks instance with the provided logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{logger: logger}
}

// OnAnalysisStart records the start of one Analyze call.
func (h *Hooks) OnAnalysisStart(jobID string) {
	h.logger.Info().Str("job_id", jobID).Msg("analysis starting")
}

// OnAnalysisEnd records the end of an Analyze call and its outcome.
func (h *Hooks) OnAnalysisEnd(jobID string, duration time.Duration, err error) {
	if err != nil {
		h.logger.Error().Str("job_id", jobID).Dur("duration", duration).Err(err).Msg("analysis failed")
		return
	}
	h.logger.Info().Str("job_id", jobID).Dur("duration", duration).Msg("analysis completed")
}

// OnPhase logs one pipeline phase's completion (read,
// tokenize_extract_resolve, dag_build, anomaly_detect, cost_driver_rank)
// with its duration and the count of items it produced.
func (h *Hooks) OnPhase(jobID, phase string, duration time.Duration, count int) {
	h.logger.Debug().
		Str("job_id", jobID).
		Str("phase", phase).
		Dur("duration", duration).
		Int("count", count).
		Msg("phase completed")
}

// OnCellError logs a recovered per-cell ParseError; the run continues.
func (h *Hooks) OnCellError(jobID, cell string, err error) {
	h.logger.Warn().Str("job_id", jobID).Str("cell", cell).Err(err).Msg("cell recovered from parse error")
}
