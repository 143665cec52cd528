package cmd

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbank/internal/output"
	"github.com/Aman-CERP/kbank/internal/store"
)

func newStatusCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show counts for the knowledge base and its indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st, err := a.bank.Stats(cmd.Context())
			if err != nil {
				return err
			}
			kbs, err := a.manager.KnowledgeBases(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"stats":           st,
					"breaker":         st.Breaker.String(),
					"knowledge_bases": kbs,
				})
			}

			out := output.New(cmd.OutOrStdout())
			out.Heading("Knowledge base " + st.KnowledgeBase)
			statuses := make([]string, 0, 4)
			for _, s := range []store.Status{store.StatusCompleted, store.StatusFailed, store.StatusProcessing, store.StatusPending} {
				if n := st.ByStatus[s]; n > 0 {
					statuses = append(statuses, string(s)+" "+strconv.Itoa(n))
				}
			}
			out.KeyValue(
				[2]string{"documents", strconv.Itoa(st.Documents) + "  (" + strings.Join(statuses, ", ") + ")"},
				[2]string{"chunks", strconv.Itoa(st.Chunks) + " stored, " + strconv.Itoa(st.Embedded) + " embedded"},
				[2]string{"lexical", strconv.Itoa(st.LexicalDocs) + " documents"},
				[2]string{"chunk index", strconv.Itoa(st.IndexedChunks) + " vectors, " + strconv.Itoa(st.Dimensions) + " dims"},
				[2]string{"model", st.Model},
				[2]string{"embedder", st.Breaker.String()},
				[2]string{"data dir", a.cfg.DataDir},
			)
			if len(kbs) > 1 {
				out.Dim("knowledge bases: " + strings.Join(kbs, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	var fix bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the indexes against the store",
		Long: `Compare the lexical index and the chunk index with the store, which is
the source of truth. With --fix the indexes are rebuilt when they diverge.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			res, err := a.bank.Check(cmd.Context())
			if err != nil {
				return err
			}
			if res.Consistent() {
				out.Successf("%d documents consistent (%s)", res.Checked, res.Duration.Round(time.Millisecond))
				return nil
			}
			for _, inc := range res.Inconsistencies {
				out.Warningf("%s %s: %s", inc.Type, inc.DocumentID, inc.Details)
			}
			if !fix {
				out.Status("", "run kbank check --fix or kbank rebuild")
				return nil
			}
			rb, err := a.bank.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			out.Successf("rebuilt %d documents, %d vectors", rb.Documents, rb.Chunks)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fix, "fix", false, "Rebuild the indexes when inconsistent")
	return cmd
}

func newRebuildCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Reload the in-memory indexes from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.bank.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("rebuilt %d documents, %d vectors", res.Documents, res.Chunks)
			return nil
		},
	}
}

func newReembedCmd(root *rootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Rerun chunking and embedding for stored documents",
		Long: `Rerun the chunking pipeline. By default only documents that are not
completed are retried; --all reprocesses everything, which is needed after
changing the embedding model.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.bank.Reembed(cmd.Context(), !all)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			out.Successf("reprocessed %d of %d documents, %d chunks embedded", res.Reprocessed, res.Documents, res.Chunks)
			if res.Failed > 0 {
				out.Warningf("%d documents failed", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Reprocess completed documents too")
	return cmd
}
