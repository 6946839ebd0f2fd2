package chatbot_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	"github.com/fyrsmithlabs/denguex/internal/config"
	"github.com/fyrsmithlabs/denguex/internal/knowledge"
	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryStore() config.VectorStoreConfig {
	return config.VectorStoreConfig{Provider: "memory"}
}

func chromemStore() config.VectorStoreConfig {
	return config.VectorStoreConfig{Provider: "chromem", Collection: "dengue_kb"}
}

func TestBundle_RoundTrip(t *testing.T) {
	stores := map[string]config.VectorStoreConfig{
		"memory":  memoryStore(),
		"chromem": chromemStore(),
	}
	for name, vs := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			embedder := newFakeEmbedder()

			m, err := chatbot.BuildBundle(ctx, dir, sampleCatalog(t), embedder, vs, 2, nil)
			require.NoError(t, err)
			assert.Equal(t, "fake-model", m.Model)
			assert.Equal(t, 3, m.Dimension)
			assert.Equal(t, name, m.Provider)
			assert.Equal(t, 3, m.Entries)
			assert.Equal(t, 5, m.Vectors)
			assert.True(t, chatbot.BundleExists(dir))

			b, err := chatbot.OpenBundle(ctx, dir, embedder, vs, nil)
			require.NoError(t, err)
			assert.Equal(t, 3, b.Catalog.Len())

			e, err := chatbot.NewEngine(chatbot.DefaultConfig(), embedder, b.Index, b.Catalog, nil)
			require.NoError(t, err)
			defer e.Close()

			res := e.Answer(ctx, "how does dengue spread")
			assert.Equal(t, "1", res.KBID)
			assert.InDelta(t, 1.8/5, res.Confidence, 1e-5)

			res = e.Answer(ctx, "symptoms of dengue")
			assert.Equal(t, "2", res.KBID)
		})
	}
}

func TestBundle_RebuildReplacesContents(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := newFakeEmbedder()

	_, err := chatbot.BuildBundle(ctx, dir, sampleCatalog(t), embedder, chromemStore(), 0, nil)
	require.NoError(t, err)
	m, err := chatbot.BuildBundle(ctx, dir, sampleCatalog(t), embedder, chromemStore(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, m.Vectors)

	b, err := chatbot.OpenBundle(ctx, dir, embedder, chromemStore(), nil)
	require.NoError(t, err)
	defer b.Index.Close()

	count, err := b.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestOpenBundle_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing manifest", func(t *testing.T) {
		assert.False(t, chatbot.BundleExists(t.TempDir()))
		_, err := chatbot.OpenBundle(ctx, t.TempDir(), newFakeEmbedder(), memoryStore(), nil)
		assert.ErrorIs(t, err, chatbot.ErrConfiguration)
	})

	t.Run("malformed manifest", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, chatbot.ManifestFile), []byte("{not json"), 0o644))
		_, err := chatbot.OpenBundle(ctx, dir, newFakeEmbedder(), memoryStore(), nil)
		assert.ErrorIs(t, err, chatbot.ErrConfiguration)
	})

	t.Run("model mismatch", func(t *testing.T) {
		dir := t.TempDir()
		_, err := chatbot.BuildBundle(ctx, dir, sampleCatalog(t), newFakeEmbedder(), memoryStore(), 0, nil)
		require.NoError(t, err)

		other := newFakeEmbedder()
		other.model = "other-model"
		_, err = chatbot.OpenBundle(ctx, dir, other, memoryStore(), nil)
		assert.ErrorIs(t, err, chatbot.ErrConfiguration)
		assert.Contains(t, err.Error(), "other-model")
	})

	t.Run("provider mismatch", func(t *testing.T) {
		dir := t.TempDir()
		_, err := chatbot.BuildBundle(ctx, dir, sampleCatalog(t), newFakeEmbedder(), memoryStore(), 0, nil)
		require.NoError(t, err)

		_, err = chatbot.OpenBundle(ctx, dir, newFakeEmbedder(), chromemStore(), nil)
		assert.ErrorIs(t, err, chatbot.ErrConfiguration)
	})

	t.Run("vector count mismatch", func(t *testing.T) {
		dir := t.TempDir()
		_, err := chatbot.BuildBundle(ctx, dir, sampleCatalog(t), newFakeEmbedder(), memoryStore(), 0, nil)
		require.NoError(t, err)

		m, err := chatbot.ReadManifest(dir)
		require.NoError(t, err)
		m.Vectors = 99
		data, err := json.Marshal(m)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, chatbot.ManifestFile), data, 0o644))

		_, err = chatbot.OpenBundle(ctx, dir, newFakeEmbedder(), memoryStore(), nil)
		assert.ErrorIs(t, err, chatbot.ErrConfiguration)
	})

	t.Run("missing catalog", func(t *testing.T) {
		dir := t.TempDir()
		_, err := chatbot.BuildBundle(ctx, dir, sampleCatalog(t), newFakeEmbedder(), memoryStore(), 0, nil)
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(dir, chatbot.CatalogFile)))

		_, err = chatbot.OpenBundle(ctx, dir, newFakeEmbedder(), memoryStore(), nil)
		assert.ErrorIs(t, err, chatbot.ErrConfiguration)
	})
}

func TestBundle_RebuildLeavesServedCollectionIntact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	embedder := newFakeEmbedder()
	vectorsDir := filepath.Join(dir, chatbot.VectorsDir)

	first, err := chatbot.BuildBundle(ctx, dir, sampleCatalog(t), embedder, chromemStore(), 0, nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Collection, "dengue_kb_"), first.Collection)
	assert.Empty(t, first.PreviousCollection)

	served, err := chatbot.OpenBundle(ctx, dir, embedder, chromemStore(), nil)
	require.NoError(t, err)
	defer served.Index.Close()

	larger := append(sampleEntries(), knowledge.Entry{
		ID:               "4",
		CanonicalAnswer:  "Use repellent and remove standing water.",
		QuestionVariants: []string{"how do I prevent dengue"},
	})
	catalog, err := knowledge.NewCatalog(larger)
	require.NoError(t, err)

	second, err := chatbot.BuildBundle(ctx, dir, catalog, embedder, chromemStore(), 0, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.Collection, second.Collection)
	assert.Equal(t, first.Collection, second.PreviousCollection)
	assert.Equal(t, 6, second.Vectors)

	// The collection the running engine answers from is untouched on disk.
	assert.Equal(t, 5, chromemCount(t, vectorsDir, first.Collection))
	res := mustEngine(t, served).Answer(ctx, "how does dengue spread")
	assert.Equal(t, "1", res.KBID)

	// The manifest, not the configured base name, picks the collection.
	other := chromemStore()
	other.Collection = "something_else"
	reopened, err := chatbot.OpenBundle(ctx, dir, embedder, other, nil)
	require.NoError(t, err)
	defer reopened.Index.Close()
	n, err := reopened.Index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	// A third build drops the first collection and keeps the two newest.
	third, err := chatbot.BuildBundle(ctx, dir, catalog, embedder, chromemStore(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, second.Collection, third.PreviousCollection)
	assert.Zero(t, chromemCount(t, vectorsDir, first.Collection))
	assert.Equal(t, 6, chromemCount(t, vectorsDir, second.Collection))
}

func TestBundle_MemoryHasNoCollection(t *testing.T) {
	m, err := chatbot.BuildBundle(context.Background(), t.TempDir(), sampleCatalog(t), newFakeEmbedder(), memoryStore(), 0, nil)
	require.NoError(t, err)
	assert.Empty(t, m.Collection)
	assert.Empty(t, m.PreviousCollection)
}

// chromemCount opens a fresh handle on the persisted collection.
func chromemCount(t *testing.T, dir, collection string) int {
	t.Helper()
	idx, err := vectorstore.NewChromemIndex(vectorstore.ChromemConfig{Path: dir, Collection: collection}, nil)
	require.NoError(t, err)
	defer idx.Close()
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	return n
}

func mustEngine(t *testing.T, b *chatbot.Bundle) *chatbot.Engine {
	t.Helper()
	e, err := chatbot.NewEngine(chatbot.DefaultConfig(), newFakeEmbedder(), b.Index, b.Catalog, nil)
	require.NoError(t, err)
	return e
}
