package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var memoryTracer = otel.Tracer("denguex.vectorstore.memory")

// normalizedTolerance is how far from unit length a vector may be before it is
// renormalized on insert.
const normalizedTolerance = 1e-6

// MemoryIndex is an exact flat inner-product index held in process memory.
//
// It scores every stored vector against the query, which is fine for knowledge
// bases in the low hundred thousands of variants.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	records   []Record
	ids       map[string]struct{}
}

// NewMemoryIndex creates an empty index. A dimension of 0 is fixed by the
// first record added.
func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		ids:       make(map[string]struct{}),
	}
}

// Add stores records. Vectors that are not unit length are normalized.
func (m *MemoryIndex) Add(ctx context.Context, records []Record) error {
	_, span := memoryTracer.Start(ctx, "MemoryIndex.Add")
	defer span.End()
	span.SetAttributes(attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dimension
	batch := make([]Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record at index %d has empty id", i)
		}
		if _, dup := m.ids[r.ID]; dup {
			return fmt.Errorf("record %q already exists", r.ID)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("record %q repeated in batch", r.ID)
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return fmt.Errorf("%w: record %q has %d dimensions, index has %d", ErrDimensionMismatch, r.ID, len(r.Vector), dim)
		}
		seen[r.ID] = struct{}{}
		r.Vector = normalizeIfNeeded(r.Vector)
		batch = append(batch, r)
	}

	m.dimension = dim
	for _, r := range batch {
		m.ids[r.ID] = struct{}{}
	}
	m.records = append(m.records, batch...)
	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search scores every record and returns the top k by inner product.
// Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	_, span := memoryTracer.Start(ctx, "MemoryIndex.Search")
	defer span.End()
	span.SetAttributes(attribute.Int("k", k))

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.records) == 0 {
		return []Hit{}, nil
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(vector), m.dimension)
	}

	query := normalizeIfNeeded(vector)
	hits := make([]Hit, len(m.records))
	for i, r := range m.records {
		hits[i] = Hit{
			Score: Dot(query, r.Vector),
			Record: Record{
				ID:      r.ID,
				KBID:    r.KBID,
				Variant: r.Variant,
			},
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k > len(hits) {
		k = len(hits)
	}
	span.SetAttributes(attribute.Int("results_count", k))
	span.SetStatus(codes.Ok, "success")
	return hits[:k], nil
}

// Count returns the number of stored records.
func (m *MemoryIndex) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Reset removes every record. The dimension is kept.
func (m *MemoryIndex) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.ids = make(map[string]struct{})
	return nil
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}

func normalizeIfNeeded(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(sum-1) <= normalizedTolerance {
		return v
	}
	return Normalize(v)
}

// Ensure MemoryIndex implements Index interface.
var _ Index = (*MemoryIndex)(nil)
