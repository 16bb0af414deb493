// Package facematch decides whether a detected face belongs to an
// already-known officer. The nearest-neighbour search strategy sits behind
// the NearestFinder interface so the linear scan can be swapped for an
// HNSW index without changing the threshold semantics.
package facematch

import (
	"context"
	"fmt"
	"math"

	"github.com/copwatch-uk/copwatch/internal/database"
)

// NearestFinder finds the closest stored officer embedding to a query vector.
type NearestFinder interface {
	// FindNearest returns the officer with the minimum Euclidean distance to
	// the query embedding. ok is false when no officer has a usable embedding.
	FindNearest(ctx context.Context, embedding []float32) (officerID int64, distance float64, ok bool, err error)
}

// MatchResult is the outcome of matching one face embedding.
type MatchResult struct {
	Matched   bool    // true when an existing officer is within the threshold
	OfficerID int64   // valid only when Matched
	Distance  float64 // distance to the nearest officer, +Inf when none exist
}

// Matcher applies the distance threshold on top of a NearestFinder.
type Matcher struct {
	finder    NearestFinder
	threshold float64
}

// NewMatcher creates a matcher. A non-positive threshold falls back to the
// package default, which is calibrated for 512-dim face embeddings.
func NewMatcher(finder NearestFinder, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = database.DefaultMatchThreshold
	}
	return &Matcher{finder: finder, threshold: threshold}
}

// Match reports whether the embedding belongs to a known officer. An empty
// embedding never matches: a face that could not be embedded cannot be
// linked and must become a new, unlinked officer.
func (m *Matcher) Match(ctx context.Context, embedding []float32) (*MatchResult, error) {
	if len(embedding) == 0 {
		return &MatchResult{Distance: math.Inf(1)}, nil
	}

	officerID, distance, ok, err := m.finder.FindNearest(ctx, embedding)
	if err != nil {
		return nil, fmt.Errorf("nearest officer lookup: %w", err)
	}
	if !ok {
		return &MatchResult{Distance: math.Inf(1)}, nil
	}

	result := &MatchResult{OfficerID: officerID, Distance: distance}
	result.Matched = distance <= m.threshold
	if !result.Matched {
		result.OfficerID = 0
	}
	return result, nil
}

// LinearFinder is the correctness-baseline NearestFinder: an O(n) scan over
// every stored officer embedding. Acceptable at moderate scale; swap in the
// HNSW finder once the officer count grows large.
type LinearFinder struct {
	officers database.OfficerReader
}

// NewLinearFinder creates a linear-scan finder over the officer store.
func NewLinearFinder(officers database.OfficerReader) *LinearFinder {
	return &LinearFinder{officers: officers}
}

// FindNearest scans all active officer embeddings. Officers with missing or
// malformed embeddings are skipped, not treated as a failure. Ties are broken
// by first-encountered order.
func (f *LinearFinder) FindNearest(ctx context.Context, embedding []float32) (int64, float64, bool, error) {
	candidates, err := f.officers.ListEmbeddings(ctx)
	if err != nil {
		return 0, 0, false, fmt.Errorf("listing officer embeddings: %w", err)
	}

	bestID := int64(0)
	bestDistance := math.Inf(1)
	found := false

	for _, c := range candidates {
		if len(c.Embedding) != len(embedding) {
			continue
		}
		d := database.EuclideanDistance(embedding, c.Embedding)
		if math.IsInf(d, 1) {
			continue
		}
		if d < bestDistance {
			bestDistance = d
			bestID = c.OfficerID
			found = true
		}
	}

	return bestID, bestDistance, found, nil
}
