// Package vectorstore defines the vector index used for question-variant retrieval.
package vectorstore

import (
	"context"
	"errors"
	"math"
)

// Sentinel errors for vector index operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyRecords indicates empty or nil records.
	ErrEmptyRecords = errors.New("empty or nil records")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Embedder generates vector embeddings from text.
//
// Implementations must return L2-normalized vectors of a fixed dimension and be
// deterministic for identical input under a fixed model version.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts.
	// Returns a slice of embeddings (one per input text) or an error.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	// Some models optimize differently for queries vs documents.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Record is one stored vector: a single question variant of a knowledge base entry.
//
// Records are created in bulk at build time and never mutated afterwards.
type Record struct {
	// ID identifies the record inside the index (kb id + variant position).
	ID string

	// KBID is the owning knowledge base entry.
	KBID string

	// Variant is the question text that was embedded.
	Variant string

	// Vector is the embedding of Variant.
	Vector []float32
}

// Hit is a search result. Hit.Record.Vector is not populated.
type Hit struct {
	// Score is the inner product between the query and the stored vector.
	// Vectors are normalized, so this is the cosine similarity.
	Score float32

	Record Record
}

// Index is the interface for vector index operations.
//
// Implementations:
//   - MemoryIndex: exact flat inner-product search in process memory
//   - ChromemIndex: embedded chromem-go, optionally persisted to disk
//   - QdrantIndex: external Qdrant gRPC client
//
// Search must be safe for concurrent use. Add may be called while searches are
// in flight; implementations serialize writers against readers.
type Index interface {
	// Add stores records. Record IDs must be unique.
	Add(ctx context.Context, records []Record) error

	// Search returns up to k hits ranked by descending inner product.
	// k larger than the index is capped; an empty index returns no hits.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Reset removes every record. Rebuilding the knowledge base means
	// resetting and re-adding everything; there is no per-record delete.
	Reset(ctx context.Context) error

	// Close releases resources held by the index.
	Close() error
}

// Dropper is implemented by indexes backed by a named collection in an
// external or persistent store. Each bundle build fills a fresh collection,
// and superseded ones are dropped once nothing serves them.
type Dropper interface {
	// Collection returns the backing collection name.
	Collection() string

	// Drop deletes the backing collection. The index is unusable afterwards.
	Drop(ctx context.Context) error
}

// Normalize returns v scaled to unit L2 length. A zero vector is returned as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Dot returns the inner product of two vectors of equal length.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
