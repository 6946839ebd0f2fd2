package embeddings

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"go.uber.org/zap"
)

var (
	ErrEmptyInput      = errors.New("nothing to embed")
	ErrInvalidConfig   = errors.New("invalid embeddings configuration")
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrFastEmbedNotAvailable is returned by binaries built with
	// CGO_ENABLED=0. The "tei" provider works in those builds.
	ErrFastEmbedNotAvailable = errors.New("fastembed requires a cgo build; use the tei provider")
)

// Provider is an Embedder that also reports the model it runs, which index
// bundles record so a bundle is never queried with a different model.
type Provider interface {
	vectorstore.Embedder
	Dimension() int
	Model() string
	Close() error
}

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Provider     string // "fastembed" (default) or "tei"
	Model        string // DefaultModel when empty
	BaseURL      string // tei only
	CacheDir     string // fastembed only
	BatchSize    int
	ShowProgress bool
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	switch cfg.Provider {
	case "", "fastembed":
		p, err := NewFastEmbedProvider(FastEmbedConfig{
			Model:        cfg.Model,
			CacheDir:     cfg.CacheDir,
			BatchSize:    cfg.BatchSize,
			ShowProgress: cfg.ShowProgress,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "tei":
		s, err := NewService(Config{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: detectDimensionFromModel(cfg.Model),
		}, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
}

// normalizeAll scales each vector to unit length in place.
func normalizeAll(vectors [][]float32) [][]float32 {
	for i := range vectors {
		vectors[i] = vectorstore.Normalize(vectors[i])
	}
	return vectors
}
