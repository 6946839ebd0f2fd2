// Denguex answers dengue questions from a curated knowledge base.
//
// Usage:
//
//	# Embed the knowledge base into an index bundle
//	denguex build --kb data/dengue_kb.jsonl --out data/index
//
//	# Serve the HTTP API
//	denguex serve
//
//	# One-shot and interactive use
//	denguex ask "how does dengue spread"
//	denguex chat
//
// Configuration comes from --config (or ~/.config/denguex/config.yaml) and
// DENGUEX_* environment variables. Logs go to stderr.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	"github.com/fyrsmithlabs/denguex/internal/config"
	"github.com/fyrsmithlabs/denguex/internal/embeddings"
	"github.com/fyrsmithlabs/denguex/internal/knowledge"
	"github.com/fyrsmithlabs/denguex/internal/logging"
	"github.com/fyrsmithlabs/denguex/internal/telemetry"
	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var (
	// configPath is the optional YAML configuration file.
	configPath string

	// newEmbedder is replaced in tests.
	newEmbedder = func(cfg config.EmbeddingsConfig, logger *zap.Logger) (embeddings.Provider, error) {
		return embeddings.NewProvider(embeddings.ProviderConfig{
			Provider:  cfg.Provider,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			CacheDir:  cfg.CacheDir,
			BatchSize: cfg.BatchSize,
		}, logger)
	}
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "denguex",
		Short: "Dengue question answering over a curated knowledge base",
		Long: `denguex answers dengue questions by retrieving the closest entries of a
curated knowledge base. Messages with warning signs get an urgent-care reply
before any retrieval happens.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/denguex/config.yaml)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newChatCmd())
	root.AddCommand(newBuildCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "denguex by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// app holds what every command needs: configuration, logging, telemetry and
// the embedding provider.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	logger   *zap.Logger
	tel      *telemetry.Telemetry
	embedder embeddings.Provider
}

// setup loads configuration and initializes logging, telemetry and the
// embedding provider, in that order.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Telemetry needs a logger and the logger needs telemetry's provider,
	// so start telemetry against a bootstrap logger.
	bootCfg, err := logging.FromConfig(cfg.Logging, false)
	if err != nil {
		return nil, fmt.Errorf("failed to configure logger: %w", err)
	}
	boot, err := logging.NewLogger(bootCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version), boot.Underlying())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	log := boot
	if tel.IsEnabled() {
		logCfg, err := logging.FromConfig(cfg.Logging, true)
		if err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("failed to configure logger: %w", err)
		}
		if log, err = logging.NewLogger(logCfg, tel.LoggerProvider()); err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	logger := log.Underlying()
	reportTelemetry(logger, tel, cfg.Telemetry.Endpoint)

	embedder, err := newEmbedder(cfg.Embeddings, logger)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}

	return &app{cfg: cfg, log: log, logger: logger, tel: tel, embedder: embedder}, nil
}

type telemetryState interface {
	IsEnabled() bool
	Degraded() bool
}

// reportTelemetry warns when telemetry started with some exporters missing.
func reportTelemetry(logger *zap.Logger, tel telemetryState, endpoint string) {
	if tel.IsEnabled() && tel.Degraded() {
		logger.Warn("telemetry degraded, some exporters failed to start",
			zap.String("endpoint", endpoint),
		)
	}
}

// close releases the embedder, flushes telemetry and syncs the logger.
func (a *app) close() {
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn("closing embedder", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn("shutting down telemetry", zap.Error(err))
	}
	_ = a.log.Sync()
}

// engineConfig maps the engine section onto chatbot defaults.
func (a *app) engineConfig() chatbot.Config {
	ec := chatbot.DefaultConfig()
	ec.TopK = a.cfg.Engine.TopK
	ec.SimilarityThreshold = a.cfg.Engine.SimilarityThreshold
	ec.TypoCorrection = a.cfg.Engine.TypoCorrection
	return ec
}

// loadEngine opens the configured index bundle. Without a bundle, the memory
// provider embeds the knowledge base at startup; persistent providers
// require "denguex build" first.
func (a *app) loadEngine(ctx context.Context, opts ...chatbot.Option) (*chatbot.Engine, error) {
	dir := a.cfg.Knowledge.IndexDir
	if chatbot.BundleExists(dir) {
		b, err := chatbot.OpenBundle(ctx, dir, a.embedder, a.cfg.VectorStore, a.logger)
		if err != nil {
			return nil, err
		}
		e, err := chatbot.NewEngine(a.engineConfig(), a.embedder, b.Index, b.Catalog, a.logger, opts...)
		if err != nil {
			b.Index.Close()
			return nil, err
		}
		return e, nil
	}

	if a.cfg.VectorStore.Provider != "memory" {
		return nil, fmt.Errorf("%w: no index bundle in %s; run \"denguex build\" first", chatbot.ErrConfiguration, dir)
	}

	a.logger.Info("no index bundle, embedding knowledge base at startup",
		zap.String("kb", a.cfg.Knowledge.Path))
	catalog, err := knowledge.LoadFile(a.cfg.Knowledge.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chatbot.ErrConfiguration, err)
	}
	index := vectorstore.NewMemoryIndex(a.embedder.Dimension())
	if _, err := chatbot.BuildIndex(ctx, a.embedder, index, catalog.Entries(), a.cfg.Embeddings.BatchSize, a.logger); err != nil {
		index.Close()
		return nil, err
	}
	e, err := chatbot.NewEngine(a.engineConfig(), a.embedder, index, catalog, a.logger, opts...)
	if err != nil {
		index.Close()
		return nil, err
	}
	return e, nil
}
