package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxErrorBody bounds how much of a failed response is quoted in errors.
const maxErrorBody = 4 << 10

// Config points the TEI client at a text-embeddings-inference server.
type Config struct {
	BaseURL string
	Model   string // recorded in bundles; the server decides what it runs

	// Dimension rejects responses of any other size. Zero accepts any.
	Dimension int

	// Timeout bounds one /embed call. Defaults to 30s.
	Timeout time.Duration
}

// Validate checks that BaseURL is an absolute http(s) URL.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base URL must be http(s): %q", ErrInvalidConfig, c.BaseURL)
	}
	return nil
}

// Service embeds through a remote TEI server. It is safe for concurrent use.
type Service struct {
	config   Config
	endpoint string
	client   *http.Client
	metrics  *Metrics
}

// NewService validates config and returns a client for it. No request is
// made until the first embed call.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Service{
		config:   config,
		endpoint: config.BaseURL + "/embed",
		client:   &http.Client{Timeout: config.Timeout},
		metrics:  NewMetrics(logger),
	}, nil
}

// embedRequest is TEI's /embed body. The server normalizes, and vectors
// are normalized again locally in case it was started without that.
type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Truncate  bool     `json:"truncate"`
	Normalize bool     `json:"normalize"`
}

func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return s.call(ctx, "embed_documents", texts)
}

func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: query text", ErrEmptyInput)
	}
	vectors, err := s.call(ctx, "embed_query", []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// call posts texts and checks the response shape, recording one
// generation sample either way.
func (s *Service) call(ctx context.Context, op string, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		s.metrics.RecordGeneration(ctx, s.config.Model, op, time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	vectors, err = s.post(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	if want := s.config.Dimension; want > 0 {
		for i, v := range vectors {
			if len(v) != want {
				return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrEmbeddingFailed, i, len(v), want)
			}
		}
	}
	return normalizeAll(vectors), nil
}

func (s *Service) post(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts, Truncate: true, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("encoding embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: TEI returned %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding TEI response: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

func (s *Service) Dimension() int { return s.config.Dimension }
func (s *Service) Model() string  { return s.config.Model }

// Close drops idle keep-alive connections.
func (s *Service) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

var _ Provider = (*Service)(nil)
