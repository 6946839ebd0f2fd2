package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTEI answers /embed with a vector of [len(text), 0, 0, 1] per input.
func fakeTEI(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		if status != http.StatusOK {
			http.Error(w, "model overloaded", status)
			return
		}

		var req struct {
			Inputs    []string `json:"inputs"`
			Normalize bool     `json:"normalize"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.True(t, req.Normalize)

		out := make([][]float32, len(req.Inputs))
		for i, in := range req.Inputs {
			out[i] = []float32{float32(len(in)), 0, 0, 1}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestNewService(t *testing.T) {
	tests := []struct {
		name       string
		baseURL    string
		wantErr    bool
		errMessage string
	}{
		{name: "valid", baseURL: "http://localhost:8081"},
		{name: "trailing slash", baseURL: "http://localhost:8081/"},
		{name: "empty base URL", baseURL: "", wantErr: true, errMessage: "base URL required"},
		{name: "not http", baseURL: "localhost:8081", wantErr: true, errMessage: "http(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(Config{BaseURL: tt.baseURL, Model: DefaultModel}, nil)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				assert.Contains(t, err.Error(), tt.errMessage)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "http://localhost:8081", svc.config.BaseURL)
		})
	}
}

func TestService_EmbedDocuments(t *testing.T) {
	srv := fakeTEI(t, http.StatusOK)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: DefaultModel, Dimension: 4}, nil)
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(context.Background(), []string{"dengue", "fever"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for _, v := range vectors {
		require.Len(t, v, 4)
		var sum float32
		for _, x := range v {
			sum += x * x
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "vectors are unit length")
	}
}

func TestService_EmbedQuery(t *testing.T) {
	srv := fakeTEI(t, http.StatusOK)
	defer srv.Close()

	svc, err := NewService(Config{BaseURL: srv.URL, Model: DefaultModel}, nil)
	require.NoError(t, err)

	a, err := svc.EmbedQuery(context.Background(), "how does dengue spread")
	require.NoError(t, err)
	b, err := svc.EmbedQuery(context.Background(), "how does dengue spread")
	require.NoError(t, err)
	assert.Equal(t, a, b, "deterministic for identical input")

	_, err = svc.EmbedQuery(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestService_Errors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := fakeTEI(t, http.StatusServiceUnavailable)
		defer srv.Close()

		svc, err := NewService(Config{BaseURL: srv.URL}, nil)
		require.NoError(t, err)

		_, err = svc.EmbedQuery(context.Background(), "dengue")
		require.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		srv := fakeTEI(t, http.StatusOK)
		defer srv.Close()

		svc, err := NewService(Config{BaseURL: srv.URL, Dimension: 384}, nil)
		require.NoError(t, err)

		_, err = svc.EmbedDocuments(context.Background(), []string{"dengue"})
		require.ErrorIs(t, err, ErrEmbeddingFailed)
	})

	t.Run("empty batch", func(t *testing.T) {
		svc, err := NewService(Config{BaseURL: "http://localhost:1"}, nil)
		require.NoError(t, err)
		_, err = svc.EmbedDocuments(context.Background(), nil)
		require.ErrorIs(t, err, ErrEmptyInput)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := fakeTEI(t, http.StatusOK)
		url := srv.URL
		srv.Close()

		svc, err := NewService(Config{BaseURL: url}, nil)
		require.NoError(t, err)
		_, err = svc.EmbedQuery(context.Background(), "dengue")
		require.ErrorIs(t, err, ErrEmbeddingFailed)
	})
}
