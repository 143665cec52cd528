package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/pipeline"
	"github.com/Aman-CERP/kbank/internal/store"
)

// IngestRequest describes a document to add or replace.
type IngestRequest struct {
	// ID is optional. An existing id replaces that document.
	ID         string
	Title      string
	SourceType string
	Content    string
	// Metadata, when set, is stored alongside the document. Its
	// DocumentID is filled in.
	Metadata *Metadata
}

// IngestResult reports an ingested document.
type IngestResult struct {
	DocumentID string
	Replaced   bool
	Status     store.Status
	Chunks     int
	Embedded   int
	Failed     int
}

// Ingest stores a document, registers it in the lexical index under the
// store's id, and runs the chunking pipeline. A pipeline failure leaves
// the document stored with status failed and is returned with the result.
func (b *Bank) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	doc := &store.Document{
		ID:              req.ID,
		KnowledgeBaseID: b.kb,
		Title:           req.Title,
		SourceType:      req.SourceType,
		Content:         req.Content,
		Status:          store.StatusPending,
	}

	replaced := false
	if req.ID != "" {
		existing, err := b.m.source.GetDocument(ctx, req.ID)
		switch {
		case err == nil:
			if existing.KnowledgeBaseID != b.kb {
				return nil, bankerrors.InputError(fmt.Sprintf(
					"document %s belongs to knowledge base %s", req.ID, existing.KnowledgeBaseID))
			}
			doc.CreatedAt = existing.CreatedAt
			replaced = true
		case !errors.Is(err, bankerrors.ErrDocumentNotFound):
			return nil, err
		}
	}

	if err := b.m.source.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}

	if err := b.register(ctx, doc); err != nil {
		_ = b.m.source.SetStatus(context.WithoutCancel(ctx), doc.ID, store.StatusFailed, err.Error())
		return nil, err
	}

	if req.Metadata != nil {
		meta := *req.Metadata
		meta.DocumentID = doc.ID
		if meta.SourceType == "" {
			meta.SourceType = req.SourceType
		}
		if err := b.m.source.SaveMetadata(ctx, toStore(meta)); err != nil {
			return nil, err
		}
	}
	b.touch()

	pr, err := b.m.pipeline.Process(ctx, doc)
	res := &IngestResult{DocumentID: doc.ID, Replaced: replaced}
	fill(res, pr)
	return res, err
}

// register puts doc into the lexical index under exactly the store's id.
func (b *Bank) register(ctx context.Context, doc *store.Document) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.lexical.Has(doc.ID) {
		return b.lexical.ReplaceLocked(ctx, doc.ID, doc.Content)
	}
	id, err := b.lexical.AddLocked(ctx, doc.Content, doc.ID)
	if err != nil {
		return err
	}
	if id != doc.ID {
		// Searches would return ids the store has never heard of.
		b.lexical.RemoveLocked(id)
		err := bankerrors.ConsistencyError(doc.ID, id)
		b.m.logger.Error("lexical_id_mismatch",
			slog.String("kb", b.kb),
			slog.String("store_id", doc.ID),
			slog.String("index_id", id))
		return err
	}
	return nil
}

func fill(res *IngestResult, pr *pipeline.Result) {
	if pr == nil {
		res.Status = store.StatusFailed
		return
	}
	res.Status = pr.Status
	res.Chunks = pr.Chunks
	res.Embedded = pr.Embedded
	res.Failed = pr.Failed
}

// Reprocess reruns the chunking pipeline for a stored document.
func (b *Bank) Reprocess(ctx context.Context, docID string) (*IngestResult, error) {
	doc, err := b.document(ctx, docID)
	if err != nil {
		return nil, err
	}
	pr, err := b.m.pipeline.Process(ctx, doc)
	res := &IngestResult{DocumentID: doc.ID, Replaced: true}
	fill(res, pr)
	return res, err
}

// Delete removes a document from the store and both indexes.
func (b *Bank) Delete(ctx context.Context, docID string) error {
	if _, err := b.document(ctx, docID); err != nil {
		return err
	}

	b.lock.Lock()
	defer b.lock.Unlock()
	if err := b.m.source.DeleteDocument(ctx, docID); err != nil {
		return err
	}
	b.lexical.RemoveLocked(docID)
	chunks := b.m.vectors.DeleteDocumentLocked(b.kb, docID)
	b.touch()

	b.m.logger.Info("document_deleted",
		slog.String("kb", b.kb),
		slog.String("document_id", docID),
		slog.Int("chunks", chunks))
	return nil
}

// Document returns a stored document of this knowledge base.
func (b *Bank) Document(ctx context.Context, docID string) (*store.Document, error) {
	return b.document(ctx, docID)
}

func (b *Bank) document(ctx context.Context, docID string) (*store.Document, error) {
	doc, err := b.m.source.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.KnowledgeBaseID != b.kb {
		return nil, bankerrors.NotFound(docID)
	}
	return doc, nil
}

// Documents lists the stored documents of this knowledge base.
func (b *Bank) Documents(ctx context.Context) ([]store.Document, error) {
	return b.m.source.ListDocuments(ctx, b.kb)
}

// Chunks returns the stored chunks of a document in order.
func (b *Bank) Chunks(ctx context.Context, docID string) ([]store.Chunk, error) {
	if _, err := b.document(ctx, docID); err != nil {
		return nil, err
	}
	return b.m.source.ListChunks(ctx, docID)
}

// SetMetadata stores the metadata of a document and invalidates the graph.
func (b *Bank) SetMetadata(ctx context.Context, m Metadata) error {
	if strings.TrimSpace(m.DocumentID) == "" {
		return bankerrors.InputError("metadata needs a document id")
	}
	if _, err := b.document(ctx, m.DocumentID); err != nil {
		return err
	}
	if err := b.m.source.SaveMetadata(ctx, toStore(m)); err != nil {
		return err
	}
	b.touch()
	return nil
}

// Metadata returns the stored metadata of a document.
func (b *Bank) Metadata(ctx context.Context, docID string) (*Metadata, error) {
	if _, err := b.document(ctx, docID); err != nil {
		return nil, err
	}
	m, err := b.m.source.GetMetadata(ctx, docID)
	if err != nil {
		return nil, err
	}
	out := fromStore(*m)
	return &out, nil
}
