package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
)

// fakeOllama serves /api/tags and /api/embed with 3-dimensional vectors.
func fakeOllama(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(OllamaModelListResponse{
				Models: []OllamaModelInfo{{Name: "nomic-embed-text:latest"}},
			})
		case "/api/embed":
			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte("boom"))
				return
			}
			var req OllamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			n := 1
			if list, ok := req.Input.([]any); ok {
				n = len(list)
			}
			resp := OllamaEmbedResponse{Model: req.Model}
			for i := 0; i < n; i++ {
				resp.Embeddings = append(resp.Embeddings, []float64{3, 4, float64(i)})
			}
			_ = json.NewEncoder(w).Encode(resp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_DetectsModelAndDimensions(t *testing.T) {
	// Given: an Ollama server with the model installed under a tag
	srv := fakeOllama(t, http.StatusOK)

	// When: the embedder starts with health checks on
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "nomic-embed-text"})
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: the installed name and vector size are adopted
	assert.Equal(t, "nomic-embed-text:latest", e.ModelName())
	assert.Equal(t, 3, e.Dimensions())
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_EmbedBatchNormalizesAndKeepsOrder(t *testing.T) {
	srv := fakeOllama(t, http.StatusOK)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3, SkipHealthCheck: true})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "  ", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.InDelta(t, 1.0, vectorMagnitude(vecs[0]), 1e-6)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.Equal(t, make([]float32, 3), vecs[1], "blank text is a zero vector")
	assert.NotEqual(t, vecs[0], vecs[2])
}

func TestOllamaEmbedder_ServerErrorIsRetryable(t *testing.T) {
	srv := fakeOllama(t, http.StatusServiceUnavailable)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3, SkipHealthCheck: true})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, bankerrors.IsRetryable(err))
}

func TestOllamaEmbedder_MissingModel(t *testing.T) {
	srv := fakeOllama(t, http.StatusOK)
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Model: "other-model"})
	require.Error(t, err)
	assert.ErrorIs(t, err, bankerrors.ErrUpstream)
}

func TestOllamaEmbedder_ClosedFails(t *testing.T) {
	srv := fakeOllama(t, http.StatusOK)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3, SkipHealthCheck: true})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "text")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
