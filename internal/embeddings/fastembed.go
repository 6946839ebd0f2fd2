//go:build cgo

package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	fastembed "github.com/anush008/fastembed-go"
	"go.uber.org/zap"
)

// FastEmbedConfig configures the local ONNX provider. Zero values take the
// defaults noted per field.
type FastEmbedConfig struct {
	Model        string // DefaultModel
	CacheDir     string // ./local_cache
	MaxLength    int    // 256 tokens; question variants are short
	BatchSize    int    // 64
	ShowProgress bool
}

// fastembedModels maps hub and FastEmbed model names onto fastembed-go
// constants. Dimensions come from knownDimensions.
var fastembedModels = map[string]fastembed.EmbeddingModel{
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
	"fast-all-MiniLM-L6-v2":                  fastembed.AllMiniLML6V2,
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"fast-bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"fast-bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"fast-bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"fast-bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"fast-bge-small-zh-v1.5":                 fastembed.BGESmallZH,
}

// FastEmbedProvider embeds with a local ONNX model.
//
// Queries and question variants go through the same symmetric encoder
// without "query:"/"passage:" prefixes, so identical text always maps to the
// identical vector.
type FastEmbedProvider struct {
	mu        sync.RWMutex
	model     *fastembed.FlagEmbedding // nil after Close
	name      string
	dimension int
	batchSize int
	metrics   *Metrics
}

// NewFastEmbedProvider loads the model, downloading it into CacheDir on
// first use.
func NewFastEmbedProvider(cfg FastEmbedConfig, logger *zap.Logger) (*FastEmbedProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	model, ok := fastembedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("%w: fastembed does not ship model %q", ErrInvalidConfig, cfg.Model)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(".", "local_cache")
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 256
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	start := time.Now()
	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &cfg.ShowProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("loading fastembed model %s: %w", cfg.Model, err)
	}

	dim, _ := ModelDimension(cfg.Model)
	logger.Info("fastembed model loaded",
		zap.String("model", cfg.Model),
		zap.Int("dimension", dim),
		zap.String("cache_dir", cfg.CacheDir),
		zap.Duration("load_time", time.Since(start)),
	)
	return &FastEmbedProvider{
		model:     flag,
		name:      cfg.Model,
		dimension: dim,
		batchSize: cfg.BatchSize,
		metrics:   NewMetrics(logger),
	}, nil
}

// EmbedDocuments embeds texts in batches of the configured size.
func (p *FastEmbedProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embed(ctx, "embed_documents", texts, p.batchSize)
}

// EmbedQuery embeds one question.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query text", ErrEmptyInput)
	}
	vectors, err := p.embed(ctx, "embed_query", []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *FastEmbedProvider) embed(ctx context.Context, op string, texts []string, batch int) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.name, op, time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.model == nil {
		return nil, fmt.Errorf("%w: provider closed", ErrEmbeddingFailed)
	}
	vectors, err = p.model.Embed(texts, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return normalizeAll(vectors), nil
}

func (p *FastEmbedProvider) Dimension() int { return p.dimension }
func (p *FastEmbedProvider) Model() string  { return p.name }

// Close releases the ONNX session. Later calls fail with ErrEmbeddingFailed.
func (p *FastEmbedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Destroy()
	p.model = nil
	return err
}
