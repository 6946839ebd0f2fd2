package vectorstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []vectorstore.Record {
	return []vectorstore.Record{
		{ID: "1#0", KBID: "1", Variant: "how does dengue spread", Vector: []float32{1, 0, 0}},
		{ID: "1#1", KBID: "1", Variant: "is dengue contagious", Vector: []float32{0.8, 0.6, 0}},
		{ID: "2#0", KBID: "2", Variant: "what are the symptoms", Vector: []float32{0, 1, 0}},
	}
}

func TestMemoryIndex_Search(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex(0)
	require.NoError(t, idx.Add(ctx, sampleRecords()))

	hits, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "1#0", hits[0].Record.ID)
	assert.Equal(t, "1", hits[0].Record.KBID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "1#1", hits[1].Record.ID)
	assert.InDelta(t, 0.8, hits[1].Score, 1e-6)
	assert.Nil(t, hits[0].Record.Vector, "hits do not carry vectors")
}

func TestMemoryIndex_SearchCapsK(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex(3)
	require.NoError(t, idx.Add(ctx, sampleRecords()))

	hits, err := idx.Search(ctx, []float32{0, 1, 0}, 15)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
	assert.Equal(t, "2#0", hits[0].Record.ID)
}

func TestMemoryIndex_EmptyIndex(t *testing.T) {
	idx := vectorstore.NewMemoryIndex(3)

	hits, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryIndex_NormalizesOnInsert(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex(0)
	require.NoError(t, idx.Add(ctx, []vectorstore.Record{
		{ID: "a", KBID: "1", Vector: []float32{3, 4}},
	}))

	hits, err := idx.Search(ctx, []float32{3, 4}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
}

func TestMemoryIndex_AddErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		records []vectorstore.Record
		wantErr error
	}{
		{name: "empty", records: nil, wantErr: vectorstore.ErrEmptyRecords},
		{
			name: "dimension mismatch",
			records: []vectorstore.Record{
				{ID: "a", Vector: []float32{1, 0, 0}},
				{ID: "b", Vector: []float32{1, 0}},
			},
			wantErr: vectorstore.ErrDimensionMismatch,
		},
		{
			name:    "empty vector",
			records: []vectorstore.Record{{ID: "a"}},
			wantErr: vectorstore.ErrDimensionMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := vectorstore.NewMemoryIndex(0)
			err := idx.Add(ctx, tt.records)
			require.ErrorIs(t, err, tt.wantErr)

			n, err := idx.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n, "failed batch leaves index untouched")
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		idx := vectorstore.NewMemoryIndex(0)
		require.NoError(t, idx.Add(ctx, sampleRecords()))
		err := idx.Add(ctx, sampleRecords()[:1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})
}

func TestMemoryIndex_QueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex(0)
	require.NoError(t, idx.Add(ctx, sampleRecords()))

	_, err := idx.Search(ctx, []float32{1, 0}, 3)
	require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1, 0, 0}, 0)
	require.Error(t, err)
}

func TestMemoryIndex_Reset(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex(0)
	require.NoError(t, idx.Add(ctx, sampleRecords()))
	require.NoError(t, idx.Reset(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, idx.Add(ctx, sampleRecords()), "ids are free again after reset")
}

func TestMemoryIndex_ConcurrentAddAndSearch(t *testing.T) {
	ctx := context.Background()
	idx := vectorstore.NewMemoryIndex(0)
	require.NoError(t, idx.Add(ctx, sampleRecords()))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = idx.Add(ctx, []vectorstore.Record{
				{ID: fmt.Sprintf("x#%d", i), KBID: "x", Vector: []float32{0, 0, 1}},
			})
		}(i)
		go func() {
			defer wg.Done()
			_, err := idx.Search(ctx, []float32{1, 0, 0}, 5)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}

func TestNormalize(t *testing.T) {
	v := vectorstore.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, vectorstore.Normalize(zero))

	assert.InDelta(t, 0.0, vectorstore.Dot([]float32{1, 0}, []float32{0, 1}), 1e-9)
}
