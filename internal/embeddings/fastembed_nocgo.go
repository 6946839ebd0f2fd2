//go:build !cgo

package embeddings

import (
	"context"

	"go.uber.org/zap"
)

// FastEmbedConfig mirrors the cgo build so configuration code compiles
// either way.
type FastEmbedConfig struct {
	Model        string
	CacheDir     string
	MaxLength    int
	BatchSize    int
	ShowProgress bool
}

// FastEmbedProvider is unavailable without cgo; use the "tei" provider.
type FastEmbedProvider struct{}

// NewFastEmbedProvider always fails with ErrFastEmbedNotAvailable.
func NewFastEmbedProvider(FastEmbedConfig, *zap.Logger) (*FastEmbedProvider, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (*FastEmbedProvider) EmbedDocuments(context.Context, []string) ([][]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (*FastEmbedProvider) EmbedQuery(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedNotAvailable
}

func (*FastEmbedProvider) Dimension() int { return 0 }
func (*FastEmbedProvider) Model() string  { return "" }
func (*FastEmbedProvider) Close() error   { return nil }
