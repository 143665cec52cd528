package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/graph"
	"github.com/Aman-CERP/kbank/internal/output"
)

func newRelatedCmd(root *rootOptions) *cobra.Command {
	var (
		kind        string
		minStrength float64
		limit       int
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "related <doc-id>",
		Short: "List documents related through shared concepts, tech or cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, ok := graph.ParseKind(kind)
			if !ok {
				return bankerrors.InputError(fmt.Sprintf("unknown edge kind %q", kind))
			}
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rels, err := a.bank.RelatedDocuments(cmd.Context(), args[0], k, minStrength, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rels)
			}

			out := output.New(cmd.OutOrStdout())
			if len(rels) == 0 {
				out.Status("", "no related documents")
				return nil
			}
			rows := make([][]string, 0, len(rels))
			for _, r := range rels {
				rows = append(rows, []string{r.DocID, string(r.Kind), fmt.Sprintf("%.3f", r.Strength), strings.Join(r.Shared, ", ")})
			}
			out.Table([]string{"DOCUMENT", "KIND", "STRENGTH", "SHARED"}, rows)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&kind, "kind", "", "Edge kind: shared_concept, shared_tech, same_cluster (default any)")
	f.Float64Var(&minStrength, "min-strength", 0, "Minimum edge strength")
	f.IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	f.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newPathCmd(root *rootOptions) *cobra.Command {
	var (
		maxSteps   int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "path <start-concept> <end-concept>",
		Short: "Find a learning path of documents between two concepts",
		Long: `Find the shortest chain of documents leading from a document about the
start concept to one about the end concept, following shared-concept edges.
--max-steps bounds the number of documents on the path.`,
		Example: `  kbank path "http basics" "load balancing" --max-steps 4`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			hops, err := a.bank.LearningPath(cmd.Context(), args[0], args[1], maxSteps)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), hops)
			}

			out := output.New(cmd.OutOrStdout())
			if len(hops) == 0 {
				out.Warningf("no path from %q to %q within %d documents", args[0], args[1], maxSteps)
				return nil
			}
			for i, h := range hops {
				if i == 0 {
					out.Statusf(strconv.Itoa(i+1)+".", "%s", h.DocID)
					continue
				}
				out.Statusf(strconv.Itoa(i+1)+".", "%s  via %s (%s)", h.DocID, h.Kind, strings.Join(h.Shared, ", "))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxSteps, "max-steps", graph.DefaultMaxSteps, "Maximum documents on the path")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConceptsCmd(root *rootOptions) *cobra.Command {
	var (
		limit      int
		concept    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "concepts",
		Short: "Show the concept cloud, or the documents about one concept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			if concept != "" {
				ids, err := a.bank.DocumentsWithConcept(cmd.Context(), concept)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), ids)
				}
				for _, id := range ids {
					out.Status("", id)
				}
				return nil
			}

			cloud, err := a.bank.ConceptCloud(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cloud)
			}
			rows := make([][]string, 0, len(cloud))
			for _, c := range cloud {
				rows = append(rows, []string{c.Name, strconv.Itoa(c.Documents)})
			}
			out.Table([]string{"CONCEPT", "DOCUMENTS"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum concepts to show")
	cmd.Flags().StringVar(&concept, "concept", "", "List documents carrying this concept")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newDuplicatesCmd(root *rootOptions) *cobra.Command {
	var (
		threshold  float64
		limit      int
		docs       []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Group near-duplicate documents",
		Long: `Group documents whose lexical similarity to a group's primary document
is at least the threshold. Each document appears in at most one group.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			groups, err := a.bank.FindDuplicates(cmd.Context(), docs, threshold, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), groups)
			}

			out := output.New(cmd.OutOrStdout())
			if len(groups) == 0 {
				out.Success("no duplicates found")
				return nil
			}
			for _, g := range groups {
				out.Heading(fmt.Sprintf("%s (%d documents)", g.Primary, g.Size))
				for _, m := range g.Members {
					out.Statusf("", "%s  %.3f", m.DocID, m.Similarity)
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&threshold, "threshold", 0, "Minimum similarity (default from configuration)")
	f.IntVarP(&limit, "limit", "n", 0, "Maximum groups, -1 for all (default from configuration)")
	f.StringSliceVar(&docs, "doc", nil, "Only consider these document ids")
	f.BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
