// Package pipeline turns a stored document into searchable chunks.
//
// Process chunks the text, embeds every chunk through the gateway, and then
// swaps the document's chunk rows and vector entries under the knowledge
// base write lock. Embedding runs outside the lock so searches keep going
// while the upstream is slow.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/kbank/internal/chunk"
	"github.com/Aman-CERP/kbank/internal/embed"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/scope"
	"github.com/Aman-CERP/kbank/internal/store"
	"github.com/Aman-CERP/kbank/internal/vector"
)

// Store is the part of the durable store the pipeline writes to.
type Store interface {
	SetStatus(ctx context.Context, id string, status store.Status, errMsg string) error
	ReplaceChunks(ctx context.Context, docID string, chunks []store.Chunk) error
}

// Embedder produces one vector (or nil) per text.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) (embed.BatchResult, error)
}

// ChunkIndex is the dense index the pipeline keeps in step with the store.
type ChunkIndex interface {
	ReplaceLocked(ctx context.Context, kb, docID string, entries []vector.Entry) error
	DeleteDocumentLocked(kb, docID string) int
}

// Result reports one processed document.
type Result struct {
	DocumentID string
	Status     store.Status
	Chunks     int
	Embedded   int
	// Failed counts chunks whose embedding failed. They are stored
	// without a vector and never match a chunk search.
	Failed   int
	Duration time.Duration
}

// Pipeline processes documents. It is safe for concurrent use; writes to
// one knowledge base are serialized by its scope lock.
type Pipeline struct {
	chunker  *chunk.Chunker
	embedder Embedder
	store    Store
	index    ChunkIndex
	locks    *scope.Registry
	logger   *slog.Logger
}

// Config holds the pipeline's collaborators.
type Config struct {
	Chunker  *chunk.Chunker
	Embedder Embedder
	Store    Store
	Index    ChunkIndex
	Locks    *scope.Registry
	Logger   *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		chunker:  cfg.Chunker,
		embedder: cfg.Embedder,
		store:    cfg.Store,
		index:    cfg.Index,
		locks:    cfg.Locks,
		logger:   cfg.Logger,
	}
	if p.chunker == nil {
		p.chunker = chunk.New(chunk.DefaultOptions())
	}
	if p.locks == nil {
		p.locks = scope.NewRegistry()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Chunker returns the chunker in use.
func (p *Pipeline) Chunker() *chunk.Chunker { return p.chunker }

// Process runs doc through pending -> processing -> completed|failed.
//
// A document whose chunks partly failed to embed still completes, with
// Result.Failed > 0. When every chunk fails, or any other step fails, the
// document is marked failed and the error is returned. Reprocessing a
// failed document reruns everything from scratch.
func (p *Pipeline) Process(ctx context.Context, doc *store.Document) (*Result, error) {
	start := time.Now()
	res := &Result{DocumentID: doc.ID, Status: store.StatusProcessing}

	if err := p.store.SetStatus(ctx, doc.ID, store.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("marking %s processing: %w", doc.ID, err)
	}

	if err := p.run(ctx, doc, res); err != nil {
		res.Status = store.StatusFailed
		res.Duration = time.Since(start)
		// The failure must be recorded even when ctx was cancelled.
		if serr := p.store.SetStatus(context.WithoutCancel(ctx), doc.ID, store.StatusFailed, err.Error()); serr != nil {
			p.logger.Error("status_update_failed",
				slog.String("document_id", doc.ID),
				bankerrors.LogAttr(serr))
		}
		p.logger.Warn("document_failed",
			slog.String("kb", doc.KnowledgeBaseID),
			slog.String("document_id", doc.ID),
			bankerrors.LogAttr(err))
		return res, err
	}

	if err := p.store.SetStatus(ctx, doc.ID, store.StatusCompleted, ""); err != nil {
		return res, fmt.Errorf("marking %s completed: %w", doc.ID, err)
	}
	res.Status = store.StatusCompleted
	res.Duration = time.Since(start)

	p.logger.Info("document_processed",
		slog.String("kb", doc.KnowledgeBaseID),
		slog.String("document_id", doc.ID),
		slog.Int("chunks", res.Chunks),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, doc *store.Document, res *Result) error {
	chunks := p.chunker.Chunk(doc.Content)
	res.Chunks = len(chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	var vectors [][]float32
	if len(texts) > 0 {
		batch, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if batch.Failed == len(texts) {
			return bankerrors.UpstreamFailure(
				fmt.Sprintf("embedding failed for all %d chunks", len(texts)), nil)
		}
		vectors = batch.Vectors
		res.Failed = batch.Failed
		res.Embedded = len(texts) - batch.Failed
	}

	rows := make([]store.Chunk, len(chunks))
	entries := make([]vector.Entry, 0, len(chunks))
	for i, c := range chunks {
		id := store.ChunkID(doc.ID, c.Index)
		rows[i] = store.Chunk{
			ID:              id,
			DocumentID:      doc.ID,
			KnowledgeBaseID: doc.KnowledgeBaseID,
			Index:           c.Index,
			Content:         c.Content,
			StartToken:      c.StartToken,
			EndToken:        c.EndToken,
			TokenCount:      c.TokenCount,
			SectionTitle:    c.SectionTitle,
			IsCodeBlock:     c.IsCodeBlock,
			Embedding:       vectors[i],
		}
		if vectors[i] == nil {
			continue
		}
		entries = append(entries, vector.Entry{
			ChunkID:         id,
			DocumentID:      doc.ID,
			KnowledgeBaseID: doc.KnowledgeBaseID,
			ChunkIndex:      c.Index,
			Vector:          vectors[i],
			TokenCount:      c.TokenCount,
			Content:         c.Content,
		})
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	lock := p.locks.For(doc.KnowledgeBaseID)
	return lock.WithLock(func() error {
		// The index validates before it mutates, so it goes first: a
		// rejected set leaves both sides untouched.
		if err := p.index.ReplaceLocked(ctx, doc.KnowledgeBaseID, doc.ID, entries); err != nil {
			return fmt.Errorf("replacing chunk vectors: %w", err)
		}
		if err := p.store.ReplaceChunks(ctx, doc.ID, rows); err != nil {
			// The store kept the old rows; the document is about to be
			// marked failed, so it must not match searches either.
			p.index.DeleteDocumentLocked(doc.KnowledgeBaseID, doc.ID)
			return fmt.Errorf("replacing chunk rows: %w", err)
		}
		return nil
	})
}
