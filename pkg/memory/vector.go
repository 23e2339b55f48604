package memory

import "context"

// VectorStore is the storage half of semantic memory: it holds embedded
// points and answers nearest-neighbor queries. Pairing a store with an
// Embedder yields a VectorMemory.
type VectorStore interface {
	// CreateCollection provisions a collection for vectors of the given
	// width. Implementations may error when the collection already exists;
	// callers treat that as success.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	// Upsert writes points, replacing any with the same ID.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search returns up to limit points nearest to vector, best first,
	// dropping matches that score below scoreThreshold.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
}

// Point is one embedded record. Payload carries the original text and any
// metadata the caller wants back verbatim at search time.
type Point struct {
	ID        string         `json:"id"`
	Vector    []float32      `json:"vector"`
	Payload   map[string]any `json:"payload"`
	Timestamp int64          `json:"timestamp"`
}

// SearchResult is one nearest-neighbor match with its similarity score.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder turns text into a vector in the store's embedding space. Texts
// stored and queried through the same memory must use the same embedder,
// otherwise distances are meaningless.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
