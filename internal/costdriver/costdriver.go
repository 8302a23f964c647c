// Package costdriver ranks cells by structural influence, per spec.md
// §4.7: approximate betweenness centrality (Brandes' algorithm) blended
// with a reverse-reachability dependent-cell count into a single
// impact score.
package costdriver

import (
	"fmt"
	"math/big"
	"math/rand"
	"sort"

	"github.com/cellgraph/engine/config"
	"github.com/cellgraph/engine/internal/dag"
)

// CostDriver is one ranked cell, per spec.md §3's CostDriver record.
type CostDriver struct {
	CellAddress     string  `json:"cell_address"`
	CentralityScore float64 `json:"centrality_score"`
	ImpactScore     float64 `json:"impact_score"`
	DependentCount  int     `json:"dependent_count"`
	Description     string  `json:"description"`
}

// Result is the cost-driver pass's output: the requested Top-K slice
// plus how many cells were eligible for ranking at all.
type Result struct {
	TotalEligible int
	TopDrivers    []CostDriver
}

// Rank scores every node in g and returns the top K by impact_score.
// seed fixes the RNG used for source/sample selection on large graphs,
// so repeated runs over the same graph produce the same ranking.
func Rank(g *dag.Graph, topK int, seed int64) Result {
	nodes := g.Nodes()
	n := len(nodes)
	if n == 0 {
		return Result{}
	}

	forward, reverse := buildAdjacency(g, nodes)
	rng := rand.New(rand.NewSource(seed))

	centrality := computeCentrality(nodes, forward, n, rng)
	dependents, sheetCounts := computeDependents(g, nodes, forward, reverse, n, rng)

	type scored struct {
		addr       string
		sheet      string
		hasFormula bool
		centrality float64
		impact     float64
		dependent  int
		sheets     int
	}

	all := make([]scored, 0, n)
	for _, c := range nodes {
		key := c.Address.String()
		dep := dependents[key]
		if !c.HasFormula() && dep == 0 {
			continue // spec.md §4.7: excluded from ranking entirely
		}
		cen := clamp01(centrality[key])
		impact := clamp01(0.6*cen + 0.4*float64(dep)/float64(maxInt(n-1, 1)))
		all = append(all, scored{
			addr:       key,
			sheet:      c.Address.Sheet,
			hasFormula: c.HasFormula(),
			centrality: cen,
			impact:     impact,
			dependent:  dep,
			sheets:     sheetCounts[key],
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].impact != all[j].impact {
			return all[i].impact > all[j].impact
		}
		if all[i].dependent != all[j].dependent {
			return all[i].dependent > all[j].dependent
		}
		return all[i].addr < all[j].addr
	})

	if topK <= 0 {
		topK = config.DefaultTopDriversCount
	}
	if topK > config.DefaultTopDriversMax {
		topK = config.DefaultTopDriversMax
	}
	if topK > len(all) {
		topK = len(all)
	}

	out := make([]CostDriver, 0, topK)
	for _, s := range all[:topK] {
		out = append(out, CostDriver{
			CellAddress:     s.addr,
			CentralityScore: round4(s.centrality),
			ImpactScore:     round4(s.impact),
			DependentCount:  s.dependent,
			Description:     fmt.Sprintf("Affects %d cell(s) across %d sheet(s)", s.dependent, maxInt(s.sheets, 1)),
		})
	}

	return Result{TotalEligible: len(all), TopDrivers: out}
}

func buildAdjacency(g *dag.Graph, nodes []dag.Cell) (forward, reverse map[string][]string) {
	forward = make(map[string][]string, len(nodes))
	reverse = make(map[string][]string, len(nodes))
	for _, c := range nodes {
		key := c.Address.String()
		forward[key] = nil
		reverse[key] = nil
	}
	for _, e := range g.Edges() {
		src, tgt := e.Source.String(), e.Target.String()
		forward[src] = append(forward[src], tgt)
		reverse[tgt] = append(reverse[tgt], src)
	}
	return forward, reverse
}

// computeCentrality runs Brandes' algorithm for directed, unweighted
// graphs, normalizing by the undirected pair count (N-1)(N-2)/2. For
// N > DefaultLargeGraphNodeThreshold, sources are sampled uniformly at
// random (seeded) and the accumulated centrality scaled up by N/K.
func computeCentrality(nodes []dag.Cell, forward map[string][]string, n int, rng *rand.Rand) map[string]float64 {
	centrality := make(map[string]float64, n)
	keys := make([]string, n)
	for i, c := range nodes {
		keys[i] = c.Address.String()
	}

	sources := keys
	scale := 1.0
	if n > config.DefaultLargeGraphNodeThreshold {
		k := config.DefaultBetweennessSampleCap
		if n/4 < k {
			k = n / 4
		}
		if k < 1 {
			k = 1
		}
		sources = sampleKeys(keys, k, rng)
		scale = float64(n) / float64(len(sources))
	}

	for _, s := range sources {
		brandesSingleSource(s, keys, forward, centrality)
	}

	normalizer := float64(n-1) * float64(n-2) / 2
	out := make(map[string]float64, n)
	for _, k := range keys {
		v := centrality[k] * scale
		if normalizer > 0 {
			v /= normalizer
		} else {
			v = 0
		}
		out[k] = clamp01(v)
	}
	return out
}

// brandesSingleSource runs one BFS-based Brandes accumulation pass from
// source s, adding each intermediate node's dependency score into acc.
func brandesSingleSource(s string, keys []string, forward map[string][]string, acc map[string]float64) {
	sigma := make(map[string]float64, len(keys))
	dist := make(map[string]int, len(keys))
	preds := make(map[string][]string, len(keys))
	for _, k := range keys {
		dist[k] = -1
	}
	sigma[s] = 1
	dist[s] = 0

	var order []string
	queue := []string{s}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		order = append(order, v)
		for _, w := range forward[v] {
			if dist[w] < 0 {
				dist[w] = dist[v] + 1
				queue = append(queue, w)
			}
			if dist[w] == dist[v]+1 {
				sigma[w] += sigma[v]
				preds[w] = append(preds[w], v)
			}
		}
	}

	delta := make(map[string]float64, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		w := order[i]
		for _, v := range preds[w] {
			if sigma[w] == 0 {
				continue
			}
			delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
		}
		if w != s {
			acc[w] += delta[w]
		}
	}
}

// computeDependents derives, for every node, the count of cells that
// transitively depend on it plus how many distinct sheets those cells
// span, per spec.md §4.7's reverse-reachability definition. Small and
// medium graphs get an exact condensation-DP answer; past
// DefaultHugeGraphNodeThreshold it switches to seeded sampling.
func computeDependents(g *dag.Graph, nodes []dag.Cell, forward, reverse map[string][]string, n int, rng *rand.Rand) (counts map[string]int, sheets map[string]int) {
	if n > config.DefaultHugeGraphNodeThreshold {
		return sampledDependents(nodes, forward, n, rng)
	}
	return exactDependents(g, nodes)
}

// exactDependents computes dependent_count precisely via a condensation
// DAG plus a topological DP accumulating bitsets of ancestor
// components: each cell's dependents are the members of every
// condensation component that can reach it, plus its own SCC peers.
func exactDependents(g *dag.Graph, nodes []dag.Cell) (map[string]int, map[string]int) {
	cond := g.BuildCondensation()
	topo := cond.TopoOrder()
	nc := len(cond.Components)

	ancestors := make([]*big.Int, nc)
	for i := range ancestors {
		ancestors[i] = big.NewInt(0)
	}
	for _, c := range topo {
		acc := big.NewInt(0)
		for p := range cond.Predecessors[c] {
			acc.SetBit(acc, p, 1)
			acc.Or(acc, ancestors[p])
		}
		ancestors[c] = acc
	}

	memberSheets := make([]map[string]bool, nc)
	memberCount := make([]int, nc)
	for i, comp := range cond.Components {
		memberCount[i] = len(comp.Members)
		sheetSet := make(map[string]bool)
		for _, m := range comp.Members {
			sheetSet[m.Sheet] = true
		}
		memberSheets[i] = sheetSet
	}

	counts := make(map[string]int, len(nodes))
	sheets := make(map[string]int, len(nodes))
	for _, c := range nodes {
		key := c.Address.String()
		comp := cond.ComponentOf[key]
		total := memberCount[comp] - 1 // SCC peers, excluding self
		sheetSet := make(map[string]bool)
		for s := range memberSheets[comp] {
			sheetSet[s] = true
		}
		bits := ancestors[comp]
		for i := 0; i < nc; i++ {
			if bits.Bit(i) == 1 {
				total += memberCount[i]
				for s := range memberSheets[i] {
					sheetSet[s] = true
				}
			}
		}
		delete(sheetSet, c.Address.Sheet)
		if total > 0 {
			sheetSet[c.Address.Sheet] = true // v's own sheet counts if anything depends on it
		}
		counts[key] = total
		sheets[key] = len(sheetSet)
	}
	return counts, sheets
}

// sampledDependents estimates dependent_count via K random forward BFS
// passes: source s "depends on" every node its BFS reaches, so each
// reached node's sample hit-count scales up to an estimate of N.
func sampledDependents(nodes []dag.Cell, forward map[string][]string, n int, rng *rand.Rand) (map[string]int, map[string]int) {
	keys := make([]string, n)
	sheetOf := make(map[string]string, n)
	for i, c := range nodes {
		keys[i] = c.Address.String()
		sheetOf[c.Address.String()] = c.Address.Sheet
	}
	k := config.DefaultBetweennessSampleCap
	if n/4 < k {
		k = n / 4
	}
	if k < 1 {
		k = 1
	}
	samples := sampleKeys(keys, k, rng)

	hits := make(map[string]int, n)
	hitSheets := make(map[string]map[string]bool, n)
	for _, s := range samples {
		visited := map[string]bool{s: true}
		queue := []string{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range forward[v] {
				if visited[w] {
					continue
				}
				visited[w] = true
				queue = append(queue, w)
			}
		}
		for v := range visited {
			if v == s {
				continue
			}
			hits[v]++
			if hitSheets[v] == nil {
				hitSheets[v] = map[string]bool{}
			}
			hitSheets[v][sheetOf[s]] = true
		}
	}

	counts := make(map[string]int, n)
	sheets := make(map[string]int, n)
	scale := float64(n) / float64(len(samples))
	for _, key := range keys {
		counts[key] = int(float64(hits[key])*scale + 0.5)
		if s := hitSheets[key]; s != nil {
			sheets[key] = len(s)
		}
	}
	return counts, sheets
}

func sampleKeys(keys []string, k int, rng *rand.Rand) []string {
	if k >= len(keys) {
		out := make([]string, len(keys))
		copy(out, keys)
		return out
	}
	shuffled := make([]string, len(keys))
	copy(shuffled, keys)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:k]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
