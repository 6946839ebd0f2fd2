package chatbot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fyrsmithlabs/denguex/internal/knowledge"
	"github.com/fyrsmithlabs/denguex/internal/logging"
	"github.com/fyrsmithlabs/denguex/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("denguex.chatbot")

var (
	// ErrConfiguration indicates missing or malformed engine inputs at
	// startup. It is fatal: the process must not serve.
	ErrConfiguration = errors.New("engine configuration error")

	// ErrRetrievalUnavailable indicates an embedding or index failure during
	// a query. Answer recovers from it with the no-results decline.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
)

// Config holds engine tunables.
type Config struct {
	// TopK is the number of entries the engine aims to consider; each query
	// variant fetches TopK*3 vectors so several variants of one entry can
	// contribute.
	TopK int

	// SimilarityThreshold gates acceptance on the selected entry's best hit.
	// Inclusive.
	SimilarityThreshold float64

	// TypoCorrection adds a spelling-corrected query variant.
	TypoCorrection bool

	// FuzzyCutoff is the minimum ratio for fuzzy keyword replacement.
	FuzzyCutoff float64

	WarningSigns []string
	Corrections  map[string]string
	Keywords     []string
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		TopK:                5,
		SimilarityThreshold: 0.65,
		TypoCorrection:      true,
		FuzzyCutoff:         DefaultFuzzyCutoff,
		WarningSigns:        DefaultWarningSigns,
		Corrections:         DefaultCorrections,
		Keywords:            DefaultKeywords,
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrConfiguration, c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be in [0,1], got %v", ErrConfiguration, c.SimilarityThreshold)
	}
	return nil
}

// Engine answers questions from a fixed knowledge base.
//
// Answer may be called concurrently. AddEntry takes the write lock, so it is
// serialized against in-flight answers.
type Engine struct {
	cfg       Config
	embedder  vectorstore.Embedder
	index     vectorstore.Index
	catalog   *knowledge.Catalog
	corrector *Corrector
	logger    *zap.Logger
	metrics   *Metrics

	mu sync.RWMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics shares a Metrics instance between engines, e.g. across reloads.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine creates an engine over an already-populated index.
func NewEngine(cfg Config, embedder vectorstore.Embedder, index vectorstore.Index, catalog *knowledge.Catalog, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrConfiguration)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: index is required", ErrConfiguration)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", ErrConfiguration)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WarningSigns == nil {
		cfg.WarningSigns = DefaultWarningSigns
	}
	if cfg.Corrections == nil {
		cfg.Corrections = DefaultCorrections
	}
	if cfg.Keywords == nil {
		cfg.Keywords = DefaultKeywords
	}
	warning := make([]string, len(cfg.WarningSigns))
	for i, w := range cfg.WarningSigns {
		warning[i] = strings.ToLower(w)
	}
	cfg.WarningSigns = warning

	e := &Engine{
		cfg:       cfg,
		embedder:  embedder,
		index:     index,
		catalog:   catalog,
		corrector: NewCorrector(cfg.Corrections, cfg.Keywords, cfg.FuzzyCutoff),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(logger)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Len returns the number of knowledge base entries.
func (e *Engine) Len() int {
	return e.catalog.Len()
}

// Variants returns the number of question variants, one vector each.
func (e *Engine) Variants() int {
	return e.catalog.VariantCount()
}

// Close releases the index.
func (e *Engine) Close() error {
	return e.index.Close()
}

// Answer produces exactly one reply for text. It never returns an error and
// never panics; every failure maps to a decline.
func (e *Engine) Answer(ctx context.Context, text string) (res QueryResult) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Engine.Answer")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("answer panicked", zap.Any("panic", r))
			span.SetStatus(codes.Error, "panic")
			res = noResultsResult()
		}
		res.Intent = PredictIntent(text)
		span.SetAttributes(
			attribute.String("outcome", string(res.Outcome)),
			attribute.String("kb_id", res.KBID),
			attribute.Float64("confidence", res.Confidence),
		)
		e.metrics.RecordAnswer(ctx, res, time.Since(start))
		logging.Ctx(ctx, e.logger).Debug("answered",
			zap.String("text", text),
			zap.String("outcome", string(res.Outcome)),
			zap.String("kb_id", res.KBID),
			zap.Float64("confidence", res.Confidence),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return e.answer(ctx, text)
}

func (e *Engine) answer(ctx context.Context, text string) QueryResult {
	if matches := DetectWarningSigns(text, e.cfg.WarningSigns); len(matches) > 0 {
		return urgentResult(matches)
	}

	queries := e.queries(text)
	if len(queries) == 0 {
		return noResultsResult()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	hits, err := e.retrieve(ctx, queries)
	if err != nil {
		e.metrics.RecordRetrievalFailure(ctx)
		logging.Ctx(ctx, e.logger).Warn("retrieval failed, declining", zap.Error(err))
		return noResultsResult()
	}
	if len(hits) == 0 {
		return noResultsResult()
	}

	return e.decide(Aggregate(hits), len(hits))
}

// queries returns the trimmed original text and, when enabled, its corrected
// form, dropping empties and duplicates.
func (e *Engine) queries(text string) []string {
	candidates := []string{strings.TrimSpace(text)}
	if e.cfg.TypoCorrection && candidates[0] != "" {
		candidates = append(candidates, strings.TrimSpace(e.corrector.Correct(text)))
	}
	out := make([]string, 0, len(candidates))
	for _, q := range candidates {
		if q == "" || (len(out) > 0 && out[0] == q) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// retrieve embeds each query and concatenates the hit lists. Any failure
// fails the whole retrieval. Hits for entries missing from the catalog are
// dropped. Callers hold e.mu.
func (e *Engine) retrieve(ctx context.Context, queries []string) ([]vectorstore.Hit, error) {
	k := e.cfg.TopK * 3
	var all []vectorstore.Hit
	for i, q := range queries {
		vec, err := e.embedder.EmbedQuery(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("%w: embedding query: %v", ErrRetrievalUnavailable, err)
		}
		hits, err := e.index.Search(ctx, vec, k)
		if err != nil {
			return nil, fmt.Errorf("%w: searching index: %v", ErrRetrievalUnavailable, err)
		}
		if ce := e.logger.Check(logging.TraceLevel, "retrieved"); ce != nil {
			ce.Write(zap.Int("query", i), zap.Int("hits", len(hits)), zap.Strings("top", topHits(hits, 3)))
		}
		for _, h := range hits {
			if _, ok := e.catalog.Get(h.Record.KBID); !ok {
				e.logger.Warn("dropping hit for unknown entry",
					zap.String("kb_id", h.Record.KBID),
					zap.String("record_id", h.Record.ID),
				)
				continue
			}
			all = append(all, h)
		}
	}
	return all, nil
}

// topHits summarizes the first n hits as "record_id=score".
func topHits(hits []vectorstore.Hit, n int) []string {
	if len(hits) < n {
		n = len(hits)
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s=%.3f", hits[i].Record.ID, hits[i].Score)
	}
	return out
}

// decide applies the below-threshold and accepted states to non-empty groups.
func (e *Engine) decide(groups []Group, totalHits int) QueryResult {
	top := groups[0]

	// Scores originate as float32; compare at that precision so a hit equal
	// to the configured threshold is accepted.
	if float32(top.MaxScore) < float32(e.cfg.SimilarityThreshold) {
		for _, g := range groups {
			entry, ok := e.catalog.Get(g.KBID)
			if ok && entry.HasTag(knowledge.TagOutOfScope) {
				return outOfScopeResult(entry, g.MaxScore)
			}
		}
		return notConfidentResult(top.MaxScore)
	}

	entry, ok := e.catalog.Get(top.KBID)
	if !ok {
		return noResultsResult()
	}
	return acceptedResult(entry, top.ScoreSum/float64(totalHits))
}
