package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/denguex/internal/config"
	"go.uber.org/zap"
)

// NewIndex creates an Index based on the configuration.
//
// This factory examines VectorStoreConfig.Provider:
//   - "memory" (default): exact in-process index, filled by the caller at startup
//   - "chromem": embedded chromem-go database persisted under dir
//   - "qdrant": external Qdrant server over gRPC
//
// dir is only used by chromem; an empty dir keeps chromem in memory.
// dimension is the embedder output size and must be positive for qdrant.
// The collection name is passed through CollectionName.
func NewIndex(ctx context.Context, cfg config.VectorStoreConfig, dir string, dimension int, logger *zap.Logger) (Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Provider {
	case "memory", "":
		return NewMemoryIndex(dimension), nil

	case "chromem":
		return NewChromemIndex(ChromemConfig{
			Path:       dir,
			Compress:   cfg.Compress,
			Collection: CollectionName(cfg.Collection),
		}, logger)

	case "qdrant":
		if dimension <= 0 {
			return nil, fmt.Errorf("%w: qdrant requires a positive vector size", ErrInvalidConfig)
		}
		return NewQdrantIndex(ctx, QdrantConfig{
			Host:           cfg.QdrantHost,
			Port:           cfg.QdrantPort,
			CollectionName: CollectionName(cfg.Collection),
			VectorSize:     uint64(dimension),
			UseTLS:         cfg.UseTLS,
		}, logger)

	default:
		return nil, fmt.Errorf("%w: unsupported vectorstore provider: %s (supported: memory, chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
