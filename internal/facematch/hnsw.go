package facematch

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	"github.com/copwatch-uk/copwatch/internal/database"
)

// HNSWFinder is an approximate-nearest-neighbour NearestFinder backed by an
// in-memory HNSW graph over officer embeddings. The threshold decision stays
// with the Matcher; only the search strategy changes.
type HNSWFinder struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	count int
}

// NewHNSWFinder creates an empty HNSW finder.
func NewHNSWFinder() *HNSWFinder {
	return &HNSWFinder{}
}

func newOfficerGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = database.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(database.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Build populates the index from the officer store, replacing any existing
// graph. Officers without embeddings are skipped.
func (f *HNSWFinder) Build(ctx context.Context, officers database.OfficerReader) error {
	candidates, err := officers.ListEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("listing officer embeddings: %w", err)
	}

	g := newOfficerGraph()
	count := 0
	for _, c := range candidates {
		if len(c.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(c.OfficerID, c.Embedding))
		count++
	}

	f.mu.Lock()
	f.graph = g
	f.count = count
	f.mu.Unlock()
	return nil
}

// Add inserts or replaces one officer embedding. New officers created during
// a processing run must be visible to subsequent matches in the same run.
func (f *HNSWFinder) Add(officerID int64, embedding []float32) {
	if len(embedding) == 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.graph == nil {
		f.graph = newOfficerGraph()
	}
	f.graph.Add(hnsw.MakeNode(officerID, embedding))
	f.count++
}

// Count returns the number of embeddings in the index.
func (f *HNSWFinder) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// FindNearest returns the closest indexed officer by Euclidean distance.
func (f *HNSWFinder) FindNearest(ctx context.Context, embedding []float32) (int64, float64, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.graph == nil || f.count == 0 || len(embedding) == 0 {
		return 0, math.Inf(1), false, nil
	}

	neighbors := f.graph.Search(embedding, database.HNSWSearchK)
	if len(neighbors) == 0 {
		return 0, math.Inf(1), false, nil
	}

	// Recompute the exact distance from the node's own vector; the graph
	// search order is approximate.
	bestID := int64(0)
	bestDistance := math.Inf(1)
	for _, n := range neighbors {
		d := database.EuclideanDistance(embedding, n.Value)
		if d < bestDistance {
			bestDistance = d
			bestID = n.Key
		}
	}
	if math.IsInf(bestDistance, 1) {
		return 0, bestDistance, false, nil
	}
	return bestID, bestDistance, true, nil
}
