package database

// EmbeddingDim is the fixed dimension for face embeddings (512 for buffalo_l/ResNet100)
const EmbeddingDim = 512

// UnitNormTolerance is the allowed deviation of a stored vector's L2 norm from 1.
const UnitNormTolerance = 1e-5

// HNSW parameters for the optional approximate candidate generator.
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so that exact re-scoring still sees the true top-k.
	HNSWSearchMultiplier = 3

	// HNSWTieTolerance is the score gap below which two graph candidates
	// around the k-th place count as tied, forcing an exact scan.
	HNSWTieTolerance = 1e-6
)
