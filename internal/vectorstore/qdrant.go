package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("github.com/fyrsmithlabs/denguex/internal/vectorstore/qdrant")

var validCollection = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Point payload keys. The vector itself is never read back.
const (
	payloadRecordID = "record_id"
	payloadKBID     = "kb_id"
	payloadVariant  = "variant"
)

// QdrantConfig configures the gRPC client. Port is the gRPC port (6334),
// not the REST one.
type QdrantConfig struct {
	Host           string // localhost
	Port           int    // 6334
	CollectionName string // DefaultCollection
	VectorSize     uint64 // must equal the embedder dimension
	UseTLS         bool

	// Transient gRPC failures are retried MaxRetries times, sleeping
	// RetryBackoff and doubling it between attempts.
	MaxRetries   int           // 3
	RetryBackoff time.Duration // 500ms

	MaxMessageSize int // 16 MiB
}

// ApplyDefaults fills unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	set := func(cond bool, apply func()) {
		if cond {
			apply()
		}
	}
	set(c.Host == "", func() { c.Host = "localhost" })
	set(c.Port == 0, func() { c.Port = 6334 })
	set(c.CollectionName == "", func() { c.CollectionName = DefaultCollection })
	set(c.MaxRetries == 0, func() { c.MaxRetries = 3 })
	set(c.RetryBackoff == 0, func() { c.RetryBackoff = 500 * time.Millisecond })
	set(c.MaxMessageSize == 0, func() { c.MaxMessageSize = 16 << 20 })
}

func (c QdrantConfig) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: qdrant host is empty", ErrInvalidConfig)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: qdrant port %d out of range", ErrInvalidConfig, c.Port)
	case c.VectorSize == 0:
		return fmt.Errorf("%w: qdrant vector size is zero", ErrInvalidConfig)
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: negative retry count %d", ErrInvalidConfig, c.MaxRetries)
	}
	return ValidateCollectionName(c.CollectionName)
}

// ValidateCollectionName accepts 1 to 64 lowercase letters, digits and
// underscores. CollectionName produces names that always pass.
func ValidateCollectionName(name string) error {
	if !validCollection.MatchString(name) {
		return fmt.Errorf("%w: %q is not of the form [a-z0-9_]{1,64}", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError reports whether err is a gRPC status worth retrying.
func IsTransientError(err error) bool {
	st, ok := status.FromError(err)
	if err == nil || !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	}
	return false
}

// PointID derives the UUID Qdrant needs from a record id. Rebuilding the
// same knowledge base therefore overwrites points rather than adding more.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(recordID)).String()
}

// QdrantIndex keeps question variants in a Qdrant collection with dot
// distance. Vectors are normalized on the way in, so scores are cosines.
type QdrantIndex struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantIndex dials Qdrant, pings it, and creates the collection if it
// does not exist yet.
func NewQdrantIndex(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	addr := zap.String("addr", fmt.Sprintf("%s:%d", config.Host, config.Port))
	if !config.UseTLS {
		logger.Warn("qdrant connection is not encrypted", addr)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(config.MaxMessageSize),
		)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	idx := &QdrantIndex{client: client, config: config, logger: logger}

	if err := idx.open(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("qdrant index opened", addr, zap.String("collection", config.CollectionName))
	return idx, nil
}

func (s *QdrantIndex) open(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.HealthCheck(pingCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	var exists bool
	err := s.retry(ctx, "collection exists", func() (err error) {
		exists, err = s.client.CollectionExists(ctx, s.config.CollectionName)
		return err
	})
	if err != nil {
		return fmt.Errorf("looking up collection %s: %w", s.config.CollectionName, err)
	}
	if exists {
		return nil
	}
	return s.createCollection(ctx)
}

// HealthCheck pings the server.
func (s *QdrantIndex) HealthCheck(ctx context.Context) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.health")
	defer func() { endSpan(span, err) }()

	if _, err = s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check: %w", err)
	}
	return nil
}

func (s *QdrantIndex) createCollection(ctx context.Context) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Dot,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
	}
	s.logger.Info("qdrant collection created",
		zap.String("collection", s.config.CollectionName),
		zap.Uint64("dimension", s.config.VectorSize),
	)
	return nil
}

// retry calls op until it succeeds, fails permanently, runs out of
// attempts, or ctx ends.
func (s *QdrantIndex) retry(ctx context.Context, what string, op func() error) error {
	wait := s.config.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := op()
		switch {
		case err == nil:
			return nil
		case !IsTransientError(err):
			return fmt.Errorf("qdrant %s: %w", what, err)
		case attempt > s.config.MaxRetries:
			return fmt.Errorf("qdrant %s: giving up after %d attempts: %w", what, attempt, err)
		}
		s.logger.Debug("qdrant call failed, retrying",
			zap.String("call", what),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("qdrant %s: %w", what, ctx.Err())
		case <-t.C:
		}
		wait *= 2
	}
}

// Add upserts one point per record and waits for the write to apply.
func (s *QdrantIndex) Add(ctx context.Context, records []Record) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.add", trace.WithAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("records", len(records)),
	))
	defer func() { endSpan(span, err) }()

	if len(records) == 0 {
		return ErrEmptyRecords
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record %d: empty id", i)
		}
		if uint64(len(r.Vector)) != s.config.VectorSize {
			return fmt.Errorf("%w: record %q has %d dimensions, collection has %d",
				ErrDimensionMismatch, r.ID, len(r.Vector), s.config.VectorSize)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(normalizeIfNeeded(r.Vector)...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadRecordID: r.ID,
				payloadKBID:     r.KBID,
				payloadVariant:  r.Variant,
			}),
		})
	}

	return s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.CollectionName,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
}

// Search returns the k nearest variants with their payload.
func (s *QdrantIndex) Search(ctx context.Context, vector []float32, k int) (hits []Hit, err error) {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.search", trace.WithAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("k", k),
	))
	defer func() {
		span.SetAttributes(attribute.Int("hits", len(hits)))
		endSpan(span, err)
	}()

	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if uint64(len(vector)) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	var points []*qdrant.ScoredPoint
	err = s.retry(ctx, "query", func() (err error) {
		points, err = s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.CollectionName,
			Query:          qdrant.NewQuery(normalizeIfNeeded(vector)...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	hits = make([]Hit, len(points))
	for i, p := range points {
		pl := p.GetPayload()
		hits[i] = Hit{
			Score: p.GetScore(),
			Record: Record{
				ID:      pl[payloadRecordID].GetStringValue(),
				KBID:    pl[payloadKBID].GetStringValue(),
				Variant: pl[payloadVariant].GetStringValue(),
			},
		}
	}
	return hits, nil
}

// Count returns the exact point count.
func (s *QdrantIndex) Count(ctx context.Context) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.CollectionName,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(n), nil
}

// Reset drops the collection and creates it empty.
func (s *QdrantIndex) Reset(ctx context.Context) (err error) {
	ctx, span := qdrantTracer.Start(ctx, "qdrant.reset")
	defer func() { endSpan(span, err) }()

	if err = s.client.DeleteCollection(ctx, s.config.CollectionName); err != nil {
		return fmt.Errorf("dropping collection %s: %w", s.config.CollectionName, err)
	}
	return s.createCollection(ctx)
}

func (s *QdrantIndex) Collection() string { return s.config.CollectionName }

// Drop deletes the collection.
func (s *QdrantIndex) Drop(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.config.CollectionName); err != nil {
		return fmt.Errorf("dropping collection %s: %w", s.config.CollectionName, err)
	}
	s.logger.Info("qdrant collection dropped", zap.String("collection", s.config.CollectionName))
	return nil
}

func (s *QdrantIndex) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

var (
	_ Index   = (*QdrantIndex)(nil)
	_ Dropper = (*QdrantIndex)(nil)
)
