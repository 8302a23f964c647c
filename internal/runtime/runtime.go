// Package runtime coordinates the engine's concurrency guardrails: how
// many formula-analysis workers run at once and how many analysis slots
// a host process hands out concurrently, per spec.md §5.
package runtime

import (
	"context"
	"time"

	"github.com/cellgraph/engine/config"
	"golang.org/x/sync/semaphore"
)

// Limits captures the concurrency guardrails for one engine instance.
type Limits struct {
	// WorkerPoolSize bounds the fan-out during the tokenize/extract/
	// resolve phase (spec.md §5); the anomaly and cost-driver passes do
	// not take worker slots.
	WorkerPoolSize int
	// MaxConcurrentAnalyses bounds how many slots AcquireAnalysis hands
	// out at once within a single process, independent of worker pool
	// size. Analyze itself does not acquire a slot.
	MaxConcurrentAnalyses int
	// OperationTimeout bounds a single Analyze call end to end.
	OperationTimeout time.Duration
}

// NewLimits initializes Limits with config defaults for any unset field.
func NewLimits(workerPoolSize, maxConcurrentAnalyses int) Limits {
	if workerPoolSize <= 0 {
		workerPoolSize = config.DefaultWorkerPoolSize()
	}
	if maxConcurrentAnalyses <= 0 {
		maxConcurrentAnalyses = 1
	}
	return Limits{
		WorkerPoolSize:        workerPoolSize,
		MaxConcurrentAnalyses: maxConcurrentAnalyses,
		OperationTimeout:      config.DefaultOperationTimeout,
	}
}

// Controller hands out worker slots and analysis slots from weighted
// semaphores, so a busy run degrades by making callers wait rather than
// by unbounded goroutine growth.
type Controller struct {
	limits           Limits
	workerSemaphore  *semaphore.Weighted
	analysisSemaphore *semaphore.Weighted
}

// NewController constructs a Controller backed by weighted semaphores
// sized from limits.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:            limits,
		workerSemaphore:   semaphore.NewWeighted(int64(limits.WorkerPoolSize)),
		analysisSemaphore: semaphore.NewWeighted(int64(limits.MaxConcurrentAnalyses)),
	}
}

// AcquireWorker reserves one fan-out slot for a phase's worker pool.
func (c *Controller) AcquireWorker(ctx context.Context) error {
	return c.workerSemaphore.Acquire(ctx, 1)
}

// ReleaseWorker frees a previously acquired worker slot.
func (c *Controller) ReleaseWorker() {
	c.workerSemaphore.Release(1)
}

// AcquireAnalysis reserves a slot for an entire Analyze call.
func (c *Controller) AcquireAnalysis(ctx context.Context) error {
	return c.analysisSemaphore.Acquire(ctx, 1)
}

// ReleaseAnalysis frees a previously acquired analysis slot.
func (c *Controller) ReleaseAnalysis() {
	c.analysisSemaphore.Release(1)
}

// LimitsSnapshot exposes the configured guardrails for logging.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}
