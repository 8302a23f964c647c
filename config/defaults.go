package config

import (
	"runtime"
	"time"
)

// Default tunables for the analysis engine. These are the values
// analysis.Options falls back to when a caller leaves a field at its
// zero value; every one is overridable per call, never global state.

const (
	// DefaultTopDriversCount is how many cost drivers Analyze returns
	// when the caller doesn't specify top_drivers_count.
	DefaultTopDriversCount = 50
	// DefaultTopDriversMax is the hard ceiling top_drivers_count clamps to.
	DefaultTopDriversMax = 500

	// DefaultRangeFanoutCap bounds how many per-cell edges a single range
	// reference expands to before it is summarized instead.
	DefaultRangeFanoutCap = 4096
	// DefaultNamedRangeMaxDepth bounds named-range-through-named-range
	// resolution recursion.
	DefaultNamedRangeMaxDepth = 32

	// DefaultBetweennessSampleCap caps how many source nodes are sampled
	// (K = min(cap, N/4)) once the graph exceeds
	// DefaultLargeGraphNodeThreshold; the sampled dependent_count pass
	// uses the same cap.
	DefaultBetweennessSampleCap = 500
	// DefaultBetweennessSampleSeed seeds the sampled-pivot RNG so repeated
	// runs over the same graph are byte-identical (spec.md §8, invariant 5).
	DefaultBetweennessSampleSeed int64 = 0x51C05

	// DefaultLargeGraphNodeThreshold is the node count above which the
	// graph is considered "large" for sampling/runtime-tuning purposes.
	DefaultLargeGraphNodeThreshold = 5_000
	// DefaultHugeGraphNodeThreshold is the node count above which
	// dependent_count falls back to a sampled estimate.
	DefaultHugeGraphNodeThreshold = 20_000
)

// DefaultWorkerPoolSize sizes the tokenize/extract/resolve worker pool
// to the host's available cores, per spec.md §5.
func DefaultWorkerPoolSize() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	return n
}

// DefaultOperationTimeout bounds a single Analyze call end to end.
const DefaultOperationTimeout = 60 * time.Second
