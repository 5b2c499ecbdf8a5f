package index

import (
	"slices"
	"sync"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-registry/internal/database"
)

// hnswGraph wraps the HNSW graph used as a candidate generator.
// Bit-identical vectors share one graph node; its key indexes groups,
// which lists every entry position holding that vector in insertion order.
type hnswGraph struct {
	mu     sync.Mutex
	graph  *hnsw.Graph[int]
	groups [][]int
}

func buildHNSWGraph(entries []Entry) *hnswGraph {
	g := hnsw.NewGraph[int]()
	g.M = database.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(database.HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = database.HNSWEfSearch
	g.Distance = hnsw.CosineDistance

	h := &hnswGraph{graph: g}
	byVector := make(map[string]int, len(entries))
	for i := range entries {
		key := string(database.EncodeVector(entries[i].Vector))
		if group, ok := byVector[key]; ok {
			h.groups[group] = append(h.groups[group], i)
			continue
		}
		byVector[key] = len(h.groups)
		g.Add(hnsw.MakeNode(len(h.groups), entries[i].Vector))
		h.groups = append(h.groups, []int{i})
	}
	return h
}

// candidates returns the entry positions of up to n distinct vectors close
// to query, in ascending order. It reports false when the graph returned
// fewer nodes than it holds and n asked for.
func (h *hnswGraph) candidates(query []float32, n int) ([]int, bool) {
	h.mu.Lock()
	neighbors := h.graph.Search(query, n)
	h.mu.Unlock()

	var positions []int
	for _, node := range neighbors {
		positions = append(positions, h.groups[node.Key]...)
	}
	slices.Sort(positions)
	return positions, len(neighbors) >= min(n, len(h.groups))
}
