package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	httpserver "github.com/fyrsmithlabs/denguex/internal/http"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd() *cobra.Command {
	var (
		host  string
		port  int
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the answering API over HTTP",
		Long: `Serve the answering API over HTTP.

Endpoints:
  POST /api/v1/answer   {"text": "..."} -> reply
  GET  /health          liveness and knowledge base size
  GET  /metrics         Prometheus metrics

With --watch the engine is rebuilt whenever "denguex build" rewrites the
bundle manifest; requests in flight finish on the previous engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, serveOptions{
				host:     host,
				port:     port,
				watch:    watch,
				watchSet: cmd.Flags().Changed("watch"),
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen address")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.http_port)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload when the index bundle changes (overrides engine.watch)")
	return cmd
}

type serveOptions struct {
	host     string
	port     int
	watch    bool
	watchSet bool
}

// runServe starts the HTTP server and blocks until ctx is cancelled, then
// shuts down within the configured timeout.
func runServe(ctx context.Context, opts serveOptions) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	port := a.cfg.Server.Port
	if opts.port > 0 {
		port = opts.port
	}
	watch := a.cfg.Engine.Watch
	if opts.watchSet {
		watch = opts.watch
	}

	metrics := chatbot.NewMetrics(a.logger)
	engine, err := a.loadEngine(ctx, chatbot.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to load engine: %w", err)
	}
	holder := chatbot.NewHolder(engine, a.logger)
	holder.SetDrainDelay(a.cfg.Server.ShutdownTimeout)
	defer func() {
		if err := holder.Engine().Close(); err != nil {
			a.logger.Warn("closing engine", zap.Error(err))
		}
	}()

	a.logger.Info("starting denguex",
		zap.String("version", version),
		zap.Int("entries", holder.Len()),
		zap.String("vectorstore", a.cfg.VectorStore.Provider),
		zap.String("model", a.embedder.Model()),
		zap.Bool("watch", watch),
	)

	if watch {
		reload := func(ctx context.Context) (*chatbot.Engine, error) {
			return a.loadEngine(ctx, chatbot.WithMetrics(metrics))
		}
		go func() {
			if err := holder.Watch(ctx, a.cfg.Knowledge.IndexDir, reload); err != nil {
				a.logger.Error("bundle watcher stopped", zap.Error(err))
			}
		}()
	}

	srv, err := httpserver.NewServer(holder, a.logger, &httpserver.Config{
		Host:      opts.host,
		Port:      port,
		RateLimit: a.cfg.Server.RateLimit,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	fmt.Fprintln(os.Stderr, "server shutdown complete")
	return nil
}
