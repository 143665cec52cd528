package embed

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// fakeEmbedder is a test double with injectable failures.
type fakeEmbedder struct {
	mu         sync.Mutex
	dims       int
	batchCalls int
	batchSizes []int

	// failBatches fails every call with more than one text.
	failBatches bool
	// failAll fails every call.
	failAll bool
	// poison fails any call containing a text with this substring.
	poison string
	// wrongDims returns vectors of the wrong length.
	wrongDims bool
}

func newFakeEmbedder(dims int) *fakeEmbedder {
	return &fakeEmbedder{dims: dims}
}

func (f *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dims)
	v[len(text)%f.dims] = 1
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.batchSizes = append(f.batchSizes, len(texts))
	f.mu.Unlock()

	if f.failAll {
		return nil, bankerrors.UpstreamFailure("upstream down", nil)
	}
	if f.failBatches && len(texts) > 1 {
		return nil, bankerrors.UpstreamFailure("batch rejected", nil)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.poison != "" && strings.Contains(t, f.poison) {
			return nil, errors.New("poison text")
		}
		if f.wrongDims {
			out[i] = make([]float32, f.dims+1)
			continue
		}
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls
}

func (f *fakeEmbedder) Dimensions() int                  { return f.dims }
func (f *fakeEmbedder) ModelName() string                { return "fake" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                     { return nil }

// fastGateway returns gateway settings with millisecond backoff.
func fastGateway() GatewayConfig {
	cfg := DefaultGatewayConfig()
	cfg.InterBatchDelay = 0
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	cfg.Retry.Jitter = false
	cfg.Retry.MaxRetries = 1
	cfg.BreakerFailures = 1000
	return cfg
}
