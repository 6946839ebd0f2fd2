package chatbot_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	"github.com/fyrsmithlabs/denguex/internal/knowledge"
	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps known texts to fixed vectors. Unknown texts embed to
// fallback.
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	model    string
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: map[string][]float32{
			"how does dengue spread":   {1, 0, 0},
			"is dengue contagious":     {0.8, 0.6, 0},
			"what are the symptoms":    {0, 1, 0},
			"symptoms of dengue":       {0, 0.8, 0.6},
			"what is the weather like": {0, 0, 1},
		},
		fallback: []float32{0.6, 0, 0.8},
		model:    "fake-model",
	}
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.lookup(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.lookup(text), nil
}

func (f *fakeEmbedder) lookup(text string) []float32 {
	v, ok := f.vectors[text]
	if !ok {
		v = f.fallback
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

func (f *fakeEmbedder) Model() string  { return f.model }
func (f *fakeEmbedder) Dimension() int { return 3 }

// mockEmbedder is used where embedding must fail.
type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if v := args.Get(0); v != nil {
		return v.([][]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

// fixedIndex returns the same hits for every search.
type fixedIndex struct {
	mu       sync.Mutex
	hits     []vectorstore.Hit
	err      error
	searches int
	closed   bool
}

func (f *fixedIndex) Add(context.Context, []vectorstore.Record) error { return nil }

func (f *fixedIndex) Search(_ context.Context, _ []float32, k int) ([]vectorstore.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.err != nil {
		return nil, f.err
	}
	n := min(k, len(f.hits))
	out := make([]vectorstore.Hit, n)
	copy(out, f.hits[:n])
	return out, nil
}

func (f *fixedIndex) Count(context.Context) (int, error) { return len(f.hits), nil }
func (f *fixedIndex) Reset(context.Context) error        { return nil }

func (f *fixedIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fixedIndex) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func hit(kbID string, score float32) vectorstore.Hit {
	return vectorstore.Hit{Score: score, Record: vectorstore.Record{ID: kbID + "#0", KBID: kbID}}
}

func sampleEntries() []knowledge.Entry {
	return []knowledge.Entry{
		{
			ID:               "1",
			CanonicalAnswer:  "Dengue spreads via Aedes mosquito bites.",
			QuestionVariants: []string{"how does dengue spread", "is dengue contagious"},
			Sources:          []string{"WHO", "CDC"},
		},
		{
			ID:               "2",
			CanonicalAnswer:  "Common symptoms are high fever, headache and rash.",
			QuestionVariants: []string{"what are the symptoms", "symptoms of dengue"},
			Sources:          []string{"WHO"},
			Urgency:          knowledge.UrgencyNonUrgent,
		},
		{
			ID:               "oos",
			CanonicalAnswer:  "I can only answer dengue questions.",
			QuestionVariants: []string{"what is the weather like"},
			Tags:             []string{knowledge.TagOutOfScope},
		},
	}
}

func sampleCatalog(t *testing.T) *knowledge.Catalog {
	t.Helper()
	catalog, err := knowledge.NewCatalog(sampleEntries())
	require.NoError(t, err)
	return catalog
}

// fixedConfig disables typo correction so each Answer issues one search.
func fixedConfig(threshold float64) chatbot.Config {
	cfg := chatbot.DefaultConfig()
	cfg.TypoCorrection = false
	cfg.SimilarityThreshold = threshold
	return cfg
}

func newFixedEngine(t *testing.T, threshold float64, hits ...vectorstore.Hit) *chatbot.Engine {
	t.Helper()
	e, err := chatbot.NewEngine(fixedConfig(threshold), newFakeEmbedder(), &fixedIndex{hits: hits}, sampleCatalog(t), nil)
	require.NoError(t, err)
	return e
}

// newMemoryEngine builds a real in-memory index over the sample entries.
func newMemoryEngine(t *testing.T, cfg chatbot.Config) *chatbot.Engine {
	t.Helper()
	ctx := context.Background()
	embedder := newFakeEmbedder()
	catalog := sampleCatalog(t)
	index := vectorstore.NewMemoryIndex(3)
	_, err := chatbot.BuildIndex(ctx, embedder, index, catalog.Entries(), 0, nil)
	require.NoError(t, err)
	e, err := chatbot.NewEngine(cfg, embedder, index, catalog, nil)
	require.NoError(t, err)
	return e
}

// collectionIndex is a fixedIndex backed by a named collection.
type collectionIndex struct {
	*fixedIndex
	name    string
	dropped atomic.Bool
}

func (c *collectionIndex) Collection() string { return c.name }

func (c *collectionIndex) Drop(context.Context) error {
	c.dropped.Store(true)
	return nil
}
