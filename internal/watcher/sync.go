package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Aman-CERP/kbank/internal/bank"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/store"
)

// SourceType marks documents that mirror a watched file.
const SourceType = "file"

// namespace scopes file document ids.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("kbank:file"))

// DocumentID returns the stable document id for a path relative to the
// watched root.
func DocumentID(rel string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.ToSlash(rel))).String()
}

// Target is the knowledge base a Syncer writes to. *bank.Bank satisfies it.
type Target interface {
	Ingest(ctx context.Context, req bank.IngestRequest) (*bank.IngestResult, error)
	Delete(ctx context.Context, docID string) error
	Document(ctx context.Context, docID string) (*store.Document, error)
	Documents(ctx context.Context) ([]store.Document, error)
}

// SyncResult summarizes applied changes.
type SyncResult struct {
	Ingested  int
	Unchanged int
	Deleted   int
	Failed    int
}

// Syncer applies file changes under a root to a knowledge base.
type Syncer struct {
	target Target
	root   string
	opts   Options
	logger *slog.Logger
}

// NewSyncer creates a Syncer for files under root.
func NewSyncer(target Target, root string, opts Options, logger *slog.Logger) (*Syncer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute path: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{target: target, root: abs, opts: opts, logger: logger}, nil
}

// Sync reconciles the whole tree: every watched file is ingested unless
// its stored content is already current, and file documents whose file is
// gone are deleted.
func (s *Syncer) Sync(ctx context.Context) (*SyncResult, error) {
	res := &SyncResult{}
	seen := make(map[string]bool)

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if hidden(rel) || !s.opts.Matches(rel) {
			return nil
		}
		seen[DocumentID(rel)] = true
		s.apply(ctx, FileEvent{Path: rel, Operation: OpModify}, res)
		return nil
	})
	if err != nil {
		return res, err
	}

	docs, err := s.target.Documents(ctx)
	if err != nil {
		return res, err
	}
	for _, doc := range docs {
		if doc.SourceType != SourceType || seen[doc.ID] || DocumentID(doc.Title) != doc.ID {
			continue
		}
		s.apply(ctx, FileEvent{Path: doc.Title, Operation: OpDelete}, res)
	}

	s.logger.Info("watch_synced",
		slog.String("root", s.root),
		slog.Int("ingested", res.Ingested),
		slog.Int("unchanged", res.Unchanged),
		slog.Int("deleted", res.Deleted),
		slog.Int("failed", res.Failed))
	return res, nil
}

// Apply handles one debounced batch.
func (s *Syncer) Apply(ctx context.Context, events []FileEvent) *SyncResult {
	res := &SyncResult{}
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		s.apply(ctx, ev, res)
	}
	return res
}

// Run applies batches from w until its Events channel closes or ctx ends.
// Watch errors are logged.
func (s *Syncer) Run(ctx context.Context, w *Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			s.Apply(ctx, batch)
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			s.logger.Warn("watch_error", bankerrors.LogAttr(err))
		}
	}
}

func (s *Syncer) apply(ctx context.Context, ev FileEvent, res *SyncResult) {
	id := DocumentID(ev.Path)
	if ev.Operation.Removes() {
		err := s.target.Delete(ctx, id)
		switch {
		case err == nil:
			res.Deleted++
			s.logger.Info("file_removed", slog.String("path", ev.Path), slog.String("doc_id", id))
		case errors.Is(err, bankerrors.ErrDocumentNotFound):
		default:
			res.Failed++
			s.logger.Warn("file_remove_failed",
				slog.String("path", ev.Path),
				bankerrors.LogAttr(err))
		}
		return
	}

	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ev.Path)))
	if err != nil {
		// Gone again before the batch was applied.
		if errors.Is(err, fs.ErrNotExist) {
			s.apply(ctx, FileEvent{Path: ev.Path, Operation: OpDelete}, res)
			return
		}
		res.Failed++
		s.logger.Warn("file_read_failed",
			slog.String("path", ev.Path),
			bankerrors.LogAttr(err))
		return
	}
	content := string(data)

	if existing, err := s.target.Document(ctx, id); err == nil &&
		existing.Content == content && existing.Status == store.StatusCompleted {
		res.Unchanged++
		return
	}

	r, err := s.target.Ingest(ctx, bank.IngestRequest{
		ID:         id,
		Title:      ev.Path,
		SourceType: SourceType,
		Content:    content,
	})
	if err != nil {
		res.Failed++
		s.logger.Warn("file_ingest_failed",
			slog.String("path", ev.Path),
			bankerrors.LogAttr(err))
		return
	}
	res.Ingested++
	s.logger.Info("file_ingested",
		slog.String("path", ev.Path),
		slog.String("doc_id", r.DocumentID),
		slog.Int("chunks", r.Chunks))
}
