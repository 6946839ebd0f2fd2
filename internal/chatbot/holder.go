package chatbot

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"go.uber.org/zap"
)

// DefaultDrainDelay is how long a replaced engine stays open so answers
// already running against it can finish.
const DefaultDrainDelay = 30 * time.Second

// ReloadFunc builds a fresh engine, typically from a rebuilt bundle.
type ReloadFunc func(ctx context.Context) (*Engine, error)

// Holder serves answers from an engine that can be replaced atomically.
//
// Engines are immutable once built; refreshing the knowledge base means
// building a new engine offline and swapping it in. A failed rebuild leaves
// the current engine serving.
type Holder struct {
	current    atomic.Pointer[Engine]
	logger     *zap.Logger
	metrics    *Metrics
	drainDelay time.Duration
}

// NewHolder wraps an initial engine.
func NewHolder(e *Engine, logger *zap.Logger) *Holder {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Holder{
		logger:     logger,
		metrics:    e.metrics,
		drainDelay: DefaultDrainDelay,
	}
	h.current.Store(e)
	return h
}

// SetDrainDelay sets how long replaced engines stay open.
func (h *Holder) SetDrainDelay(d time.Duration) {
	h.drainDelay = d
}

// Engine returns the engine currently serving.
func (h *Holder) Engine() *Engine {
	return h.current.Load()
}

// Len returns the entry count of the current engine.
func (h *Holder) Len() int {
	return h.current.Load().Len()
}

// Variants returns the question variant count of the current engine.
func (h *Holder) Variants() int {
	return h.current.Load().Variants()
}

// Answer answers with the current engine.
func (h *Holder) Answer(ctx context.Context, text string) QueryResult {
	return h.current.Load().Answer(ctx, text)
}

// Swap installs e and retires the previous engine after the drain delay.
func (h *Holder) Swap(e *Engine) {
	old := h.current.Swap(e)
	if old == nil || old == e {
		return
	}
	time.AfterFunc(h.drainDelay, func() { h.retire(old, e) })
}

// retire closes a replaced engine. When it served a collection the new
// engine does not use, that collection is dropped first.
func (h *Holder) retire(old, current *Engine) {
	if d, ok := old.index.(vectorstore.Dropper); ok && !servesCollection(current, d.Collection()) {
		dropQuietly(context.Background(), d, h.logger)
	}
	if err := old.Close(); err != nil {
		h.logger.Warn("closing replaced engine", zap.Error(err))
	}
}

func servesCollection(e *Engine, name string) bool {
	d, ok := e.index.(vectorstore.Dropper)
	return ok && d.Collection() == name
}

// Reload builds a new engine and swaps it in. On failure the current engine
// keeps serving and the error is returned.
func (h *Holder) Reload(ctx context.Context, build ReloadFunc) error {
	e, err := build(ctx)
	h.metrics.RecordReload(ctx, err)
	if err != nil {
		h.logger.Error("engine reload failed, keeping current engine", zap.Error(err))
		return err
	}
	h.Swap(e)
	h.logger.Info("engine reloaded", zap.Int("entries", e.Len()))
	return nil
}

// Watch reloads whenever the bundle manifest in dir is written or replaced.
// It blocks until ctx is done.
func (h *Holder) Watch(ctx context.Context, dir string, build ReloadFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: the manifest is replaced by rename, which would
	// drop a watch on the file itself.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	h.logger.Info("watching index bundle", zap.String("dir", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != ManifestFile {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			h.logger.Info("index bundle changed", zap.String("file", event.Name))
			_ = h.Reload(ctx, build)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn("bundle watcher error", zap.Error(err))
		}
	}
}
