package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/errors"
)

const (
	defaultSearchLimit    = 5
	defaultScoreThreshold = 0.6
)

// VectorMemory implements core.Memory over a vector store and an
// embedder. Entries are embedded on Store and recalled by semantic
// similarity on Retrieve.
type VectorMemory struct {
	store      VectorStore
	embedder   Embedder
	collection string

	searchLimit    int
	scoreThreshold float32
}

// VectorMemoryOption adjusts recall behavior.
type VectorMemoryOption func(*VectorMemory)

// WithSearchLimit caps how many matches Retrieve returns.
func WithSearchLimit(n int) VectorMemoryOption {
	return func(vm *VectorMemory) {
		if n > 0 {
			vm.searchLimit = n
		}
	}
}

// WithScoreThreshold sets the minimum similarity score for a match.
func WithScoreThreshold(threshold float32) VectorMemoryOption {
	return func(vm *VectorMemory) {
		vm.scoreThreshold = threshold
	}
}

// NewVectorMemory creates a vector-backed memory over the given store
// and embedder. Call Initialize before first use to ensure the
// collection exists.
func NewVectorMemory(store VectorStore, embedder Embedder, collection string, opts ...VectorMemoryOption) (*VectorMemory, error) {
	if store == nil {
		return nil, errors.Newf(errors.CodeValidation, "vector store is required")
	}
	if embedder == nil {
		return nil, errors.Newf(errors.CodeValidation, "embedder is required")
	}
	if collection == "" {
		return nil, errors.Newf(errors.CodeValidation, "collection name is required")
	}

	vm := &VectorMemory{
		store:          store,
		embedder:       embedder,
		collection:     collection,
		searchLimit:    defaultSearchLimit,
		scoreThreshold: defaultScoreThreshold,
	}
	for _, opt := range opts {
		opt(vm)
	}
	return vm, nil
}

// Initialize ensures the collection exists, probing the embedder once to
// learn the vector dimension.
func (vm *VectorMemory) Initialize(ctx context.Context) error {
	vec, err := vm.embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return errors.New(errors.CodeMemoryError, "probing embedding dimension", err)
	}

	if err := vm.store.CreateCollection(ctx, vm.collection, uint64(len(vec))); err != nil {
		// Creation fails when the collection already exists; a working
		// search confirms that case.
		if _, searchErr := vm.store.Search(ctx, vm.collection, vec, 1, 0); searchErr == nil {
			return nil
		}
		return errors.New(errors.CodeMemoryError, "creating collection", err).
			WithContext("collection", vm.collection)
	}
	return nil
}

// Store embeds the given text and upserts it into the collection. Only
// string data is supported.
func (vm *VectorMemory) Store(ctx context.Context, data any) error {
	text, ok := data.(string)
	if !ok {
		return errors.Newf(errors.CodeValidation, "vector memory stores strings, got %T", data)
	}

	vector, err := vm.embedder.Embed(ctx, text)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "embedding text", err)
	}

	now := time.Now().Unix()
	point := Point{
		ID:     uuid.New().String(),
		Vector: vector,
		Payload: map[string]interface{}{
			"text":      text,
			"timestamp": now,
		},
		Timestamp: now,
	}

	if err := vm.store.Upsert(ctx, vm.collection, []Point{point}); err != nil {
		return errors.New(errors.CodeMemoryError, "upserting point", err).
			WithContext("collection", vm.collection)
	}
	return nil
}

// Retrieve embeds the query and returns the text payloads of the nearest
// matches as a []string. Only string queries are supported.
func (vm *VectorMemory) Retrieve(ctx context.Context, query any) (any, error) {
	text, ok := query.(string)
	if !ok {
		return nil, errors.Newf(errors.CodeValidation, "vector memory queries are strings, got %T", query)
	}

	vector, err := vm.embedder.Embed(ctx, text)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "embedding query", err)
	}

	results, err := vm.store.Search(ctx, vm.collection, vector, vm.searchLimit, vm.scoreThreshold)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "searching collection", err).
			WithContext("collection", vm.collection)
	}

	var matches []string
	for _, r := range results {
		if val, ok := r.Point.Payload["text"].(string); ok {
			matches = append(matches, val)
		}
	}
	return matches, nil
}
