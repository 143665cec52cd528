package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbank/internal/output"
)

type searchOptions struct {
	limit         int
	chunks        bool
	minSimilarity float64
	docs          []string
	jsonOutput    bool
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents by keyword relevance, or chunks by similarity",
		Long: `Search the knowledge base.

By default documents are ranked by TF-IDF cosine relevance of their raw
text. With --chunks the query is embedded and the closest chunks are
returned instead.`,
		Example: `  kbank search "leader election"
  kbank search "how do followers catch up" --chunks --min-similarity 0.3
  kbank search raft --doc 1f0c... --doc 77aa...`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			if opts.chunks {
				results, err := a.bank.SearchChunksText(cmd.Context(), query, opts.limit, opts.minSimilarity)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return writeJSON(cmd.OutOrStdout(), results)
				}
				if len(results) == 0 {
					out.Status("", "no matching chunks")
					return nil
				}
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					rows = append(rows, []string{
						fmt.Sprintf("%.3f", r.Similarity),
						r.DocumentID,
						strconv.Itoa(r.ChunkIndex),
						output.Truncate(r.Content, 60),
					})
				}
				out.Table([]string{"SIMILARITY", "DOCUMENT", "CHUNK", "CONTENT"}, rows)
				return nil
			}

			results, err := a.bank.Search(cmd.Context(), query, opts.limit, opts.docs)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			if len(results) == 0 {
				out.Status("", "no matching documents")
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{fmt.Sprintf("%.3f", r.Score), r.DocID, output.Truncate(r.Snippet, 60)})
			}
			out.Table([]string{"SCORE", "DOCUMENT", "SNIPPET"}, rows)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from configuration)")
	f.BoolVar(&opts.chunks, "chunks", false, "Search chunks by embedding similarity")
	f.Float64Var(&opts.minSimilarity, "min-similarity", 0, "Minimum chunk similarity with --chunks")
	f.StringSliceVar(&opts.docs, "doc", nil, "Restrict document search to these ids")
	f.BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")
	return cmd
}
