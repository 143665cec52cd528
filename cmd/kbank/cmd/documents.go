package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbank/internal/bank"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/output"
	"github.com/Aman-CERP/kbank/internal/watcher"
)

type ingestOptions struct {
	id         string
	title      string
	sourceType string
	concepts   []string
	tech       []string
	skill      string
	cluster    string
	jsonOutput bool
}

func (o ingestOptions) metadata() (*bank.Metadata, error) {
	if len(o.concepts) == 0 && len(o.tech) == 0 && o.skill == "" && o.cluster == "" {
		return nil, nil
	}
	concepts, err := parseConcepts(o.concepts)
	if err != nil {
		return nil, err
	}
	return &bank.Metadata{
		SourceType: o.sourceType,
		Concepts:   concepts,
		TechStack:  o.tech,
		SkillLevel: o.skill,
		ClusterID:  o.cluster,
	}, nil
}

// parseConcepts reads "name" or "name:confidence" values.
func parseConcepts(values []string) ([]bank.Concept, error) {
	out := make([]bank.Concept, 0, len(values))
	for _, v := range values {
		name, conf := v, 1.0
		if i := strings.LastIndexByte(v, ':'); i > 0 {
			f, err := strconv.ParseFloat(v[i+1:], 64)
			if err != nil || f < 0 || f > 1 {
				return nil, bankerrors.InputError(fmt.Sprintf("concept %q: confidence must be a number in [0,1]", v))
			}
			name, conf = v[:i], f
		}
		if strings.TrimSpace(name) == "" {
			return nil, bankerrors.InputError(fmt.Sprintf("concept %q has no name", v))
		}
		out = append(out, bank.Concept{Name: name, Confidence: conf})
	}
	return out, nil
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file|dir|->",
		Short: "Add or replace a document",
		Long: `Add a document to the knowledge base, chunk and embed it.

A file becomes one document. A directory is synced: every watched file is
ingested under an id derived from its relative path and file documents
whose file is gone are deleted. "-" reads the document from stdin.

Ingesting with an existing --id replaces that document.`,
		Example: `  kbank ingest notes/raft.md --concept consensus --concept "leader election:0.8"
  kbank ingest ./notes --kb research
  echo "text" | kbank ingest - --title scratch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			path := args[0]

			if path != "-" {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					s, err := watcher.NewSyncer(a.bank, path, watcher.OptionsFrom(a.cfg.Watch), root.logger)
					if err != nil {
						return err
					}
					res, err := s.Sync(cmd.Context())
					if err != nil {
						return err
					}
					if opts.jsonOutput {
						return writeJSON(cmd.OutOrStdout(), res)
					}
					out.Successf("synced %s: %d ingested, %d unchanged, %d deleted", path, res.Ingested, res.Unchanged, res.Deleted)
					if res.Failed > 0 {
						out.Warningf("%d files failed; see kbank logs", res.Failed)
					}
					return nil
				}
			}

			content, title, err := readInput(cmd.InOrStdin(), path)
			if err != nil {
				return err
			}
			if opts.title != "" {
				title = opts.title
			}
			meta, err := opts.metadata()
			if err != nil {
				return err
			}

			res, err := a.bank.Ingest(cmd.Context(), bank.IngestRequest{
				ID:         opts.id,
				Title:      title,
				SourceType: opts.sourceType,
				Content:    content,
				Metadata:   meta,
			})
			if res != nil && opts.jsonOutput {
				if jerr := writeJSON(cmd.OutOrStdout(), res); jerr != nil {
					return jerr
				}
			}
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return nil
			}

			verb := "added"
			if res.Replaced {
				verb = "replaced"
			}
			out.Successf("%s %s", verb, res.DocumentID)
			out.KeyValue(
				[2]string{"status", string(res.Status)},
				[2]string{"chunks", strconv.Itoa(res.Chunks)},
				[2]string{"embedded", strconv.Itoa(res.Embedded)},
			)
			if res.Failed > 0 {
				out.Warningf("%d chunks could not be embedded; run kbank reembed later", res.Failed)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.id, "id", "", "Document id (existing id replaces)")
	f.StringVar(&opts.title, "title", "", "Document title (default: file name)")
	f.StringVar(&opts.sourceType, "source-type", "note", "Source type recorded with the document")
	f.StringArrayVar(&opts.concepts, "concept", nil, "Concept, optionally name:confidence (repeatable)")
	f.StringSliceVar(&opts.tech, "tech", nil, "Technology tags (comma separated)")
	f.StringVar(&opts.skill, "skill", "", "Skill level")
	f.StringVar(&opts.cluster, "cluster", "", "Cluster id")
	f.BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func readInput(stdin io.Reader, path string) (content, title string, err error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), "stdin", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), filepath.Base(path), nil
}

func newListCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents in the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			docs, err := a.bank.Documents(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), docs)
			}

			out := output.New(cmd.OutOrStdout())
			if len(docs) == 0 {
				out.Status("", "no documents in "+root.kb)
				return nil
			}
			rows := make([][]string, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, []string{d.ID, output.Truncate(d.Title, 40), d.SourceType, string(d.Status), d.UpdatedAt.Local().Format(time.DateTime)})
			}
			out.Table([]string{"ID", "TITLE", "SOURCE", "STATUS", "UPDATED"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newShowCmd(root *rootOptions) *cobra.Command {
	var chunks bool

	cmd := &cobra.Command{
		Use:   "show <doc-id>",
		Short: "Show a document, its metadata and optionally its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			doc, err := a.bank.Document(ctx, args[0])
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Heading(doc.Title)
			pairs := [][2]string{
				{"id", doc.ID},
				{"source", doc.SourceType},
				{"status", string(doc.Status)},
			}
			if doc.Error != "" {
				pairs = append(pairs, [2]string{"error", doc.Error})
			}
			if meta, err := a.bank.Metadata(ctx, doc.ID); err == nil {
				names := make([]string, 0, len(meta.Concepts))
				for _, c := range meta.Concepts {
					names = append(names, c.Name)
				}
				pairs = append(pairs,
					[2]string{"concepts", strings.Join(names, ", ")},
					[2]string{"tech", strings.Join(meta.TechStack, ", ")},
					[2]string{"skill", meta.SkillLevel},
					[2]string{"cluster", meta.ClusterID})
			}
			out.KeyValue(pairs...)

			if !chunks {
				out.Code(doc.Content)
				return nil
			}
			list, err := a.bank.Chunks(ctx, doc.ID)
			if err != nil {
				return err
			}
			for _, c := range list {
				out.Newline()
				out.Statusf("#", "chunk %d (%d tokens) %s", c.Index, c.TokenCount, c.SectionTitle)
				out.Code(c.Content)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&chunks, "chunks", false, "Print stored chunks instead of the content")
	return cmd
}

func newDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <doc-id>",
		Short: "Delete a document from the store and every index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.bank.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("deleted %s", args[0])
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
