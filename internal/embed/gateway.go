package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/kbank/internal/config"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
)

// GatewayConfig bounds how the gateway drives a provider.
type GatewayConfig struct {
	// BatchSize is the number of texts per provider call.
	BatchSize int

	// InterBatchDelay is the minimum spacing between batch starts.
	InterBatchDelay time.Duration

	// MaxParallel bounds batches in flight.
	MaxParallel int

	// Retry governs both batch-level and per-item retries.
	Retry bankerrors.RetryConfig

	// BreakerFailures consecutive failures open the circuit for
	// BreakerReset.
	BreakerFailures int
	BreakerReset    time.Duration
}

// DefaultGatewayConfig returns the default gateway settings.
func DefaultGatewayConfig() GatewayConfig {
	retry := bankerrors.DefaultRetryConfig()
	retry.MaxRetries = DefaultMaxRetries
	retry.InitialDelay = 200 * time.Millisecond
	retry.MaxDelay = 5 * time.Second
	retry.Jitter = true
	return GatewayConfig{
		BatchSize:       DefaultBatchSize,
		InterBatchDelay: DefaultInterBatchDelay,
		MaxParallel:     DefaultMaxParallel,
		Retry:           retry,
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}

// GatewayConfigFrom maps the embeddings config section onto gateway
// settings.
func GatewayConfigFrom(cfg config.EmbeddingsConfig) GatewayConfig {
	gc := DefaultGatewayConfig()
	if cfg.BatchSize > 0 {
		gc.BatchSize = cfg.BatchSize
	}
	gc.InterBatchDelay = cfg.InterBatchDelayDuration()
	if cfg.MaxParallel > 0 {
		gc.MaxParallel = cfg.MaxParallel
	}
	if cfg.MaxRetries >= 0 {
		gc.Retry.MaxRetries = cfg.MaxRetries
	}
	return gc
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	d := DefaultGatewayConfig()
	if c.BatchSize < MinBatchSize {
		c.BatchSize = d.BatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.InterBatchDelay < 0 {
		c.InterBatchDelay = 0
	}
	if c.InterBatchDelay > MaxInterBatchDelay {
		c.InterBatchDelay = MaxInterBatchDelay
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = d.MaxParallel
	}
	if c.Retry.Multiplier <= 0 {
		c.Retry.Multiplier = d.Retry.Multiplier
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = d.BreakerFailures
	}
	if c.BreakerReset <= 0 {
		c.BreakerReset = d.BreakerReset
	}
	// an open circuit will not close within a retry loop
	next := c.Retry.ShouldRetry
	c.Retry.ShouldRetry = func(err error) bool {
		if errors.Is(err, bankerrors.ErrCircuitOpen) || bankerrors.IsFatal(err) {
			return false
		}
		return next == nil || next(err)
	}
	return c
}

// BatchResult holds one vector per input text, in input order. A nil
// vector marks an item that failed after every retry.
type BatchResult struct {
	Vectors [][]float32
	Failed  int
}

// Gateway embeds texts through a provider with batching, pacing, retry and
// per-item fallback. It is safe for concurrent use.
type Gateway struct {
	embedder Embedder
	cfg      GatewayConfig
	limiter  *rate.Limiter
	breaker  *bankerrors.CircuitBreaker
	logger   *slog.Logger
}

// NewGateway wraps embedder.
func NewGateway(embedder Embedder, cfg GatewayConfig, logger *slog.Logger) *Gateway {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.InterBatchDelay > 0 {
		limit = rate.Every(cfg.InterBatchDelay)
	}
	return &Gateway{
		embedder: embedder,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		breaker: bankerrors.NewCircuitBreaker(embedder.ModelName(),
			bankerrors.WithMaxFailures(cfg.BreakerFailures),
			bankerrors.WithResetTimeout(cfg.BreakerReset),
			bankerrors.WithLogger(logger)),
		logger: logger,
	}
}

// Embedder returns the wrapped provider.
func (g *Gateway) Embedder() Embedder { return g.embedder }

// Dimensions returns the provider's vector dimension.
func (g *Gateway) Dimensions() int { return g.embedder.Dimensions() }

// ModelName returns the provider's model name.
func (g *Gateway) ModelName() string { return g.embedder.ModelName() }

// BreakerState reports the upstream circuit state.
func (g *Gateway) BreakerState() bankerrors.State { return g.breaker.State() }

// EmbedOne embeds a single text, returning nil when it fails after retries.
func (g *Gateway) EmbedOne(ctx context.Context, text string) []float32 {
	vec, err := g.embedItem(ctx, text)
	if err != nil {
		g.logger.Warn("embedding_failed", bankerrors.LogAttr(err))
		return nil
	}
	return vec
}

// EmbedBatch embeds texts. Item failures are reported through nil vectors
// and Failed; the only error is cancellation of ctx.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) (BatchResult, error) {
	res := BatchResult{Vectors: make([][]float32, len(texts))}
	if len(texts) == 0 {
		return res, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.MaxParallel)

	for start := 0; start < len(texts); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(texts))
		if err := g.limiter.Wait(egCtx); err != nil {
			break
		}
		eg.Go(func() error {
			g.embedRange(egCtx, texts[start:end], res.Vectors[start:end])
			return egCtx.Err()
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	for _, v := range res.Vectors {
		if v == nil {
			res.Failed++
		}
	}
	if res.Failed > 0 {
		err := bankerrors.PartialUpstreamFailure(res.Failed, len(texts))
		g.logger.Warn("embedding_batch_partial",
			slog.Int("failed", res.Failed),
			slog.Int("total", len(texts)),
			bankerrors.LogAttr(err))
	}
	return res, nil
}

// embedRange fills out for one batch: whole-batch call with retry first,
// then one call per item.
func (g *Gateway) embedRange(ctx context.Context, texts []string, out [][]float32) {
	vecs, err := bankerrors.RetryWithResult(ctx, g.cfg.Retry, func() ([][]float32, error) {
		return g.call(ctx, texts)
	})
	if err == nil {
		copy(out, vecs)
		return
	}
	if ctx.Err() != nil {
		return
	}

	g.logger.Warn("embedding_batch_failed",
		slog.Int("size", len(texts)),
		bankerrors.LogAttr(err))

	for i, text := range texts {
		vec, err := g.embedItem(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Debug("embedding_item_failed",
				slog.Int("item", i),
				bankerrors.LogAttr(err))
			continue
		}
		out[i] = vec
	}
}

func (g *Gateway) embedItem(ctx context.Context, text string) ([]float32, error) {
	vecs, err := bankerrors.RetryWithResult(ctx, g.cfg.Retry, func() ([][]float32, error) {
		return g.call(ctx, []string{text})
	})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// call makes one provider request through the circuit breaker and checks
// the shape of the answer.
func (g *Gateway) call(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := g.breaker.Execute(func() error {
		var err error
		vecs, err = g.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		return g.check(vecs, len(texts))
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

func (g *Gateway) check(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return bankerrors.UpstreamFailure(fmt.Sprintf("provider returned %d vectors for %d texts", len(vecs), want), nil)
	}
	dims := g.embedder.Dimensions()
	for i, v := range vecs {
		if len(v) == 0 {
			return bankerrors.UpstreamFailure(fmt.Sprintf("provider returned empty vector at %d", i), nil)
		}
		if dims > 0 && len(v) != dims {
			return bankerrors.New(bankerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector %d has %d dimensions, want %d", i, len(v), dims), nil)
		}
	}
	return nil
}
