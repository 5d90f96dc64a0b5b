package graphstore

import (
	"sort"
	"strings"

	"kgraph/internal/domain"
)

// rankedIndex pairs a candidate's position in its slice with a fused score.
type rankedIndex struct {
	index int
	score float64
}

// rrfK is the reciprocal-rank-fusion damping constant; 60 is the
// conventional default used across RRF implementations.
const rrfK = 60.0

// rankByLexical scores candidates by token-overlap with query and returns
// their indices ordered best-first (rank 0 = best match).
func rankByLexical[T any](query string, candidates []T, text func(T) string) []int {
	queryTerms := toTermSet(query)
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = lexicalScore(queryTerms, text(c))
	}
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return scores[idx[i]] > scores[idx[j]] })
	return idx
}

// rankByVector scores candidates by cosine similarity to queryVec and
// returns their indices ordered best-first.
func rankByVector[T any](queryVec []float32, candidates []T, vec func(T) []float32) []int {
	scores := make([]float64, len(candidates))
	for i, c := range candidates {
		scores[i] = cosine(queryVec, vec(c))
	}
	idx := make([]int, len(candidates))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return scores[idx[i]] > scores[idx[j]] })
	return idx
}

// fuseRRF combines two rank orderings (over the same candidate indices)
// into one score per candidate via reciprocal rank fusion: score(c) =
// sum(1 / (rrfK + rank_in_each_list)), with ranks counted from 1.
func fuseRRF(lists ...[]int) []rankedIndex {
	scores := make(map[int]float64)
	for _, list := range lists {
		for rank, idx := range list {
			scores[idx] += 1.0 / (rrfK + float64(rank+1))
		}
	}
	out := make([]rankedIndex, 0, len(scores))
	for idx, score := range scores {
		out = append(out, rankedIndex{index: idx, score: score})
	}
	return out
}

func toTermSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(text)) {
		set[t] = true
	}
	return set
}

func lexicalScore(queryTerms map[string]bool, text string) float64 {
	var hits float64
	for _, t := range strings.Fields(strings.ToLower(text)) {
		if queryTerms[t] {
			hits++
		}
	}
	return hits
}

// bfsDistanceFromNode computes unweighted hop distance from center to every
// entity reachable through edges, treating edges as undirected for
// traversal purposes. Unreachable nodes are absent from the result.
func bfsDistanceFromNode(center string, edges map[string]domain.EntityEdge) map[string]int {
	adj := make(map[string][]string)
	for _, e := range edges {
		adj[e.SourceUUID] = append(adj[e.SourceUUID], e.TargetUUID)
		adj[e.TargetUUID] = append(adj[e.TargetUUID], e.SourceUUID)
	}

	dist := map[string]int{center: 0}
	queue := []string{center}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if _, seen := dist[next]; seen {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// graphDistanceWeight turns a hop count into a multiplicative boost: closer
// nodes are weighted higher, unreachable nodes get the floor weight.
func graphDistanceWeight(hops int, reachable bool) float64 {
	if !reachable {
		return 0.5
	}
	return 0.5 + 0.5/(1.0+float64(hops))
}

func reweightByGraphDistanceNode(fused []rankedIndex, candidates []domain.EntityNode, dist map[string]int) []rankedIndex {
	out := make([]rankedIndex, len(fused))
	for i, r := range fused {
		hops, ok := dist[candidates[r.index].UUID]
		out[i] = rankedIndex{index: r.index, score: r.score * graphDistanceWeight(hops, ok)}
	}
	return out
}

func reweightByGraphDistanceEdge(fused []rankedIndex, candidates []domain.EntityEdge, dist map[string]int) []rankedIndex {
	out := make([]rankedIndex, len(fused))
	for i, r := range fused {
		e := candidates[r.index]
		hopsSrc, okSrc := dist[e.SourceUUID]
		hopsDst, okDst := dist[e.TargetUUID]
		hops := hopsSrc
		ok := okSrc
		if okDst && (!okSrc || hopsDst < hopsSrc) {
			hops, ok = hopsDst, true
		}
		out[i] = rankedIndex{index: r.index, score: r.score * graphDistanceWeight(hops, ok)}
	}
	return out
}
