// Package bank wires the retrieval core into one handle per knowledge base.
//
// A Manager owns the shared pieces: the durable store, the embedding
// gateway, the chunk index and the per-knowledge-base locks. Open returns
// the Bank for a knowledge base, building its lexical index from the store
// the first time it is opened. The in-memory indexes are a derived cache;
// Rebuild reloads them from the store whenever they are suspect.
package bank

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/kbank/internal/chunk"
	"github.com/Aman-CERP/kbank/internal/config"
	"github.com/Aman-CERP/kbank/internal/dedup"
	"github.com/Aman-CERP/kbank/internal/embed"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/graph"
	"github.com/Aman-CERP/kbank/internal/lexical"
	"github.com/Aman-CERP/kbank/internal/pipeline"
	"github.com/Aman-CERP/kbank/internal/scope"
	"github.com/Aman-CERP/kbank/internal/store"
	"github.com/Aman-CERP/kbank/internal/vector"
)

// Source is the durable store behind every knowledge base.
type Source interface {
	pipeline.Store

	SaveDocument(ctx context.Context, doc *store.Document) error
	GetDocument(ctx context.Context, id string) (*store.Document, error)
	ListDocuments(ctx context.Context, kb string) ([]store.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListChunks(ctx context.Context, docID string) ([]store.Chunk, error)
	ListChunkVectors(ctx context.Context, kb string) ([]store.Chunk, error)
	SaveMetadata(ctx context.Context, m store.Metadata) error
	GetMetadata(ctx context.Context, docID string) (*store.Metadata, error)
	ListMetadata(ctx context.Context, kb string) ([]store.Metadata, error)
	ListKnowledgeBases(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, kb string) (*store.KBStats, error)
}

// lexicalIndex is the lexical index surface a Bank drives.
type lexicalIndex interface {
	dedup.Neighbors
	Has(docID string) bool
	Len() int
	AddLocked(ctx context.Context, content, requestedID string) (string, error)
	ReplaceLocked(ctx context.Context, docID, content string) error
	RemoveLocked(docID string) bool
	LoadLocked(ctx context.Context, docs []lexical.Document) error
	Search(ctx context.Context, query string, topK int, allowed map[string]struct{}) ([]lexical.Result, error)
}

// Manager hands out Banks. Construct one per process and pass it around.
type Manager struct {
	cfg      *config.Config
	source   Source
	gateway  *embed.Gateway
	locks    *scope.Registry
	vectors  *vector.Index
	analyzer *lexical.Analyzer
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	mu    sync.Mutex
	banks map[string]*Bank
}

// NewManager creates a Manager over source, embedding through embedder.
func NewManager(cfg *config.Config, source Source, embedder embed.Embedder, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	analyzer, err := lexical.NewAnalyzer()
	if err != nil {
		return nil, fmt.Errorf("creating analyzer: %w", err)
	}

	locks := scope.NewRegistry()
	vectors := vector.New(locks, vector.Options{ANNMinVectors: cfg.Search.ANNMinVectors}, logger)
	gateway := embed.NewGateway(embedder, embed.GatewayConfigFrom(cfg.Embeddings), logger)

	return &Manager{
		cfg:      cfg,
		source:   source,
		gateway:  gateway,
		locks:    locks,
		vectors:  vectors,
		analyzer: analyzer,
		pipeline: pipeline.New(pipeline.Config{
			Chunker:  chunk.FromConfig(cfg.Chunking, logger),
			Embedder: gateway,
			Store:    source,
			Index:    vectors,
			Locks:    locks,
			Logger:   logger,
		}),
		logger: logger,
		banks:  make(map[string]*Bank),
	}, nil
}

// Config returns the configuration in use.
func (m *Manager) Config() *config.Config { return m.cfg }

// Gateway returns the embedding gateway.
func (m *Manager) Gateway() *embed.Gateway { return m.gateway }

// KnowledgeBases lists the knowledge bases that have documents.
func (m *Manager) KnowledgeBases(ctx context.Context) ([]string, error) {
	return m.source.ListKnowledgeBases(ctx)
}

// Open returns the Bank for kb, loading its indexes from the store on the
// first call. Later calls return the same handle.
func (m *Manager) Open(ctx context.Context, kb string) (*Bank, error) {
	if kb == "" {
		return nil, bankerrors.InputError("knowledge base name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.banks[kb]; ok {
		return b, nil
	}

	lock := m.locks.For(kb)
	b := &Bank{
		kb:      kb,
		m:       m,
		lock:    lock,
		lexical: lexical.New(lock, m.analyzer, m.logger),
	}
	b.dedup = dedup.NewFromConfig(b.lexical, m.cfg.Duplicates, m.logger)
	b.graphs = graph.NewBuilder(metadataProvider{m.source}, graph.OptionsFrom(m.cfg.Graph), m.logger)

	if _, err := b.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("opening %s: %w", kb, err)
	}
	m.banks[kb] = b
	return b, nil
}

// Close releases the embedding provider. The store is owned by the caller.
func (m *Manager) Close() error {
	return m.gateway.Embedder().Close()
}

// Bank is the handle of one knowledge base. It is safe for concurrent use.
type Bank struct {
	kb      string
	m       *Manager
	lock    *scope.Lock
	lexical lexicalIndex
	dedup   *dedup.Detector
	graphs  *graph.Builder

	// generation counts mutations that can change the graph.
	generation atomic.Uint64

	graphMu  sync.Mutex
	graph    *graph.Graph
	graphGen uint64
}

// Name returns the knowledge base name.
func (b *Bank) Name() string { return b.kb }

// RebuildResult reports a rebuild from the store.
type RebuildResult struct {
	Documents   int
	Chunks      int
	Reprocessed int
	Failed      int
}

// Rebuild reloads the lexical index and the chunk index of this knowledge
// base from the store. It is the recovery path for a suspect index. The
// write lock is held from the first read of the store until both indexes
// are loaded, so no ingest or delete can fall between snapshot and load.
func (b *Bank) Rebuild(ctx context.Context) (*RebuildResult, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	docs, err := b.m.source.ListDocuments(ctx, b.kb)
	if err != nil {
		return nil, err
	}
	entries := make([]lexical.Document, len(docs))
	for i, d := range docs {
		entries[i] = lexical.Document{ID: d.ID, Content: d.Content}
	}
	if err := b.lexical.LoadLocked(ctx, entries); err != nil {
		return nil, fmt.Errorf("loading lexical index: %w", err)
	}

	rows, err := b.m.source.ListChunkVectors(ctx, b.kb)
	if err != nil {
		return nil, err
	}
	vecs := make([]vector.Entry, len(rows))
	for i, r := range rows {
		vecs[i] = vector.Entry{
			ChunkID:         r.ID,
			DocumentID:      r.DocumentID,
			KnowledgeBaseID: b.kb,
			ChunkIndex:      r.Index,
			Vector:          r.Embedding,
			TokenCount:      r.TokenCount,
			Content:         r.Content,
		}
	}
	if err := b.m.vectors.LoadLocked(ctx, b.kb, vecs); err != nil {
		return nil, fmt.Errorf("loading chunk index: %w", err)
	}
	b.touch()

	b.m.logger.Info("kb_loaded",
		slog.String("kb", b.kb),
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(vecs)))
	return &RebuildResult{Documents: len(docs), Chunks: len(vecs)}, nil
}

// Reembed reruns the pipeline for every document, or only for documents
// that are not completed when onlyIncomplete is set. Use it after changing
// the embedding model or to retry failed documents.
func (b *Bank) Reembed(ctx context.Context, onlyIncomplete bool) (*RebuildResult, error) {
	docs, err := b.m.source.ListDocuments(ctx, b.kb)
	if err != nil {
		return nil, err
	}
	res := &RebuildResult{Documents: len(docs)}
	for i := range docs {
		doc := &docs[i]
		if onlyIncomplete && doc.Status == store.StatusCompleted {
			continue
		}
		pr, err := b.m.pipeline.Process(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			continue
		}
		res.Reprocessed++
		res.Chunks += pr.Embedded
	}
	return res, nil
}

func (b *Bank) touch() { b.generation.Add(1) }
