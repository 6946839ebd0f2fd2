// Package config provides configuration loading for denguex.
//
// Configuration comes from an optional YAML file overridden by DENGUEX_*
// environment variables, on top of the defaults returned by Default.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete denguex configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Knowledge   KnowledgeConfig   `koanf:"knowledge"`
	Engine      EngineConfig      `koanf:"engine"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
}

// LoggingConfig holds logger configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure     bool    `koanf:"insecure"`
	ServiceName  string  `koanf:"service_name"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	Provider  string `koanf:"provider"` // fastembed or tei
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	CacheDir  string `koanf:"cache_dir"`
	BatchSize int    `koanf:"batch_size"`
}

// VectorStoreConfig selects and configures the vector index.
type VectorStoreConfig struct {
	Provider   string `koanf:"provider"` // memory, chromem or qdrant
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
	QdrantHost string `koanf:"qdrant_host"`
	QdrantPort int    `koanf:"qdrant_port"`
	UseTLS     bool   `koanf:"use_tls"`
}

// KnowledgeConfig locates the knowledge base and the built index bundle.
type KnowledgeConfig struct {
	// Path is the knowledge base file (.jsonl or .xlsx).
	Path string `koanf:"path"`
	// IndexDir is the bundle directory written by "denguex build".
	IndexDir string `koanf:"index_dir"`
}

// EngineConfig holds answering engine tunables.
type EngineConfig struct {
	TopK                int     `koanf:"top_k"`
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	TypoCorrection      bool    `koanf:"typo_correction"`
	// Watch reloads the engine when the bundle manifest is rewritten.
	Watch bool `koanf:"watch"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Endpoint:     "localhost:4317",
			Protocol:     "grpc",
			Insecure:     true,
			ServiceName:  "denguex",
			SamplingRate: 1.0,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "fastembed",
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			BaseURL:   "http://localhost:8081",
			BatchSize: 64,
		},
		VectorStore: VectorStoreConfig{
			Provider:   "memory",
			Compress:   true,
			Collection: "dengue_kb",
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Knowledge: KnowledgeConfig{
			Path:     "data/dengue_kb.jsonl",
			IndexDir: "data/index",
		},
		Engine: EngineConfig{
			TopK:                5,
			SimilarityThreshold: 0.65,
			TypoCorrection:      true,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("rate limit must be non-negative")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q (must be json or console)", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return errors.New("service name required when telemetry is enabled")
		}
		if c.Telemetry.Endpoint == "" {
			return errors.New("endpoint required when telemetry is enabled")
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http/protobuf":
		default:
			return fmt.Errorf("invalid telemetry protocol: %q (must be grpc or http/protobuf)", c.Telemetry.Protocol)
		}
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be in [0,1], got %v", c.Telemetry.SamplingRate)
	}

	switch c.Embeddings.Provider {
	case "fastembed", "tei":
	default:
		return fmt.Errorf("unsupported embeddings provider: %q (supported: fastembed, tei)", c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "tei" && c.Embeddings.BaseURL == "" {
		return errors.New("embeddings base_url required for tei provider")
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("embeddings batch size must be positive, got %d", c.Embeddings.BatchSize)
	}

	switch c.VectorStore.Provider {
	case "memory", "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %q (supported: memory, chromem, qdrant)", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" && (c.VectorStore.QdrantPort < 1 || c.VectorStore.QdrantPort > 65535) {
		return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.QdrantPort)
	}

	if c.Engine.TopK <= 0 {
		return fmt.Errorf("engine top_k must be positive, got %d", c.Engine.TopK)
	}
	if c.Engine.SimilarityThreshold < 0 || c.Engine.SimilarityThreshold > 1 {
		return fmt.Errorf("engine similarity_threshold must be in [0,1], got %v", c.Engine.SimilarityThreshold)
	}

	return nil
}
