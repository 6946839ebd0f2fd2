package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("github.com/fyrsmithlabs/denguex/internal/vectorstore/chromem")

const metaKBID = "kb_id"

// errTextQuery is what chromem gets if it ever asks to embed text itself.
// Every vector reaching the store is computed by our own Embedder.
var errTextQuery = errors.New("chromem text embedding is disabled; query by vector")

// ChromemConfig configures the embedded chromem-go database.
type ChromemConfig struct {
	Path       string // on-disk directory; empty keeps everything in memory
	Compress   bool   // gzip persisted documents
	Collection string // DefaultCollection
}

func (c *ChromemConfig) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
}

func (c *ChromemConfig) Validate() error {
	return ValidateCollectionName(c.Collection)
}

// ChromemIndex stores variants in chromem-go. Search is exhaustive cosine,
// which on normalized vectors ranks exactly like the inner product.
type ChromemIndex struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	mu         sync.RWMutex // guards collection, swapped by Reset
	collection *chromem.Collection
}

// NewChromemIndex opens the database at config.Path, or an in-memory one,
// and its collection.
func NewChromemIndex(config ChromemConfig, logger *zap.Logger) (*ChromemIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := openChromem(&config)
	if err != nil {
		return nil, err
	}
	// A nil embedding func would make chromem default to OpenAI.
	collection, err := db.GetOrCreateCollection(config.Collection, nil, refuseTextEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening chromem collection %s: %w", config.Collection, err)
	}

	logger.Info("chromem index opened",
		zap.String("path", config.Path),
		zap.String("collection", config.Collection),
		zap.Int("records", collection.Count()),
	)
	return &ChromemIndex{db: db, config: config, logger: logger, collection: collection}, nil
}

// openChromem resolves config.Path in place and opens the database there.
func openChromem(config *ChromemConfig) (*chromem.DB, error) {
	if config.Path == "" {
		return chromem.NewDB(), nil
	}
	dir, err := homeRelative(config.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving chromem path: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	db, err := chromem.NewPersistentDB(dir, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem at %s: %w", dir, err)
	}
	config.Path = dir
	return db, nil
}

func refuseTextEmbedding(context.Context, string) ([]float32, error) {
	return nil, errTextQuery
}

// homeRelative replaces a leading "~" with the user's home directory.
func homeRelative(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, rest), nil
}

func (s *ChromemIndex) current() *chromem.Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection
}

// Add stores records with their precomputed vectors.
func (s *ChromemIndex) Add(ctx context.Context, records []Record) (err error) {
	ctx, span := chromemTracer.Start(ctx, "chromem.add", trace.WithAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("records", len(records)),
	))
	defer func() { endSpan(span, err) }()

	if len(records) == 0 {
		return ErrEmptyRecords
	}
	docs := make([]chromem.Document, 0, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record %d: empty id", i)
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   r.Variant,
			Metadata:  map[string]string{metaKBID: r.KBID},
			Embedding: r.Vector,
		})
	}
	if err = s.current().AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem add: %w", err)
	}
	s.logger.Debug("chromem records added", zap.Int("count", len(docs)))
	return nil
}

// Search returns up to k nearest variants. chromem rejects k above the
// document count, so k is capped first.
func (s *ChromemIndex) Search(ctx context.Context, vector []float32, k int) (hits []Hit, err error) {
	ctx, span := chromemTracer.Start(ctx, "chromem.search", trace.WithAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	))
	defer func() {
		span.SetAttributes(attribute.Int("hits", len(hits)))
		endSpan(span, err)
	}()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(vector) == 0 {
		return nil, errors.New("empty query vector")
	}
	collection := s.current()
	n := collection.Count()
	if n == 0 {
		return []Hit{}, nil
	}
	results, err := collection.QueryEmbedding(ctx, vector, min(k, n), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits = make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			Score:  r.Similarity,
			Record: Record{ID: r.ID, KBID: r.Metadata[metaKBID], Variant: r.Content},
		}
	}
	return hits, nil
}

func (s *ChromemIndex) Count(context.Context) (int, error) {
	return s.current().Count(), nil
}

// Reset swaps in a fresh empty collection under the same name.
func (s *ChromemIndex) Reset(ctx context.Context) (err error) {
	_, span := chromemTracer.Start(ctx, "chromem.reset")
	defer func() { endSpan(span, err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err = s.db.DeleteCollection(s.config.Collection); err != nil {
		return fmt.Errorf("dropping chromem collection: %w", err)
	}
	fresh, err := s.db.CreateCollection(s.config.Collection, nil, refuseTextEmbedding)
	if err != nil {
		return fmt.Errorf("recreating chromem collection: %w", err)
	}
	s.collection = fresh
	s.logger.Info("chromem collection reset", zap.String("collection", s.config.Collection))
	return nil
}

func (s *ChromemIndex) Collection() string { return s.config.Collection }

// Drop deletes the collection and, for a persistent database, its files.
func (s *ChromemIndex) Drop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteCollection(s.config.Collection); err != nil {
		return fmt.Errorf("dropping chromem collection %s: %w", s.config.Collection, err)
	}
	s.logger.Info("chromem collection dropped", zap.String("collection", s.config.Collection))
	return nil
}

// Close is a no-op; persistent databases write through on every change.
func (s *ChromemIndex) Close() error { return nil }

var (
	_ Index   = (*ChromemIndex)(nil)
	_ Dropper = (*ChromemIndex)(nil)
)
