// Package database defines the officer registry data model, the store
// interfaces implemented by the postgres and mock backends, and the
// vector-distance helpers shared by the matchers.
package database

// Duplicate detection constants
const (
	// DefaultPerceptualThreshold is the maximum Hamming distance (in bits,
	// out of 64) for two perceptual hashes to count as similar.
	DefaultPerceptualThreshold = 10

	// DefaultScanBatchSize is how many perceptual-hash candidates are loaded
	// from the store per batch during a similarity scan.
	DefaultScanBatchSize = 500

	// DefaultScanCap is the hard limit on candidates examined in one scan.
	// Past this point duplicate detection is best-effort and stops.
	DefaultScanCap = 10000
)

// Face matching constants for 512-dim face embeddings
const (
	// DefaultMatchThreshold is the maximum Euclidean distance for a face
	// embedding to be assigned to an existing officer. Derived empirically
	// from the embedding model; tune it when the model changes.
	DefaultMatchThreshold = 0.8

	// DefaultAutoMergeThreshold is the minimum cosine similarity between two
	// officer embeddings for a merge to proceed without operator approval.
	DefaultAutoMergeThreshold = 0.95

	// DefaultMergeReviewThreshold is the minimum cosine similarity for a pair
	// to be proposed as a merge candidate for operator review.
	DefaultMergeReviewThreshold = 0.85
)

// HNSW index parameters for the officer embedding index
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWSearchK is how many neighbours to request per query; the matcher
	// only needs the nearest one but a small margin improves recall.
	HNSWSearchK = 5
)
