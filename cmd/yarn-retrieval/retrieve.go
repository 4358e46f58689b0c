package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/feamando/yarn-retrieval/internal/retriever"
)

func newRetrieveCmd(flags *rootFlags) *cobra.Command {
	cfg := retriever.DefaultConfig()
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "retrieve <query>",
		Short: "Run a hybrid retrieval query and print the assembled context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, _, err := newEngine(flags)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			query := strings.Join(args, " ")
			assembly, err := eng.RetrieveContext(cmd.Context(), query, cfg)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(assembly)
			}

			if assembly.ContextText == "" {
				fmt.Println("No results.")
				return nil
			}
			fmt.Println(assembly.ContextText)
			fmt.Fprintf(os.Stderr, "\n%d documents, %d chars", len(assembly.SourceDocuments), assembly.TotalLength)
			if assembly.Truncated {
				fmt.Fprint(os.Stderr, " (truncated)")
			}
			fmt.Fprintln(os.Stderr)
			return nil
		},
	}

	cmd.Flags().IntVar(&cfg.MaxCandidates, "max-candidates", cfg.MaxCandidates, "lexical pre-filter size")
	cmd.Flags().IntVar(&cfg.MaxResults, "max-results", cfg.MaxResults, "final result count")
	cmd.Flags().Float64Var(&cfg.SimilarityThreshold, "similarity-threshold", cfg.SimilarityThreshold, "minimum cosine similarity")
	cmd.Flags().Float64Var(&cfg.LexicalWeight, "lexical-weight", cfg.LexicalWeight, "lexical score weight")
	cmd.Flags().Float64Var(&cfg.VectorWeight, "vector-weight", cfg.VectorWeight, "vector score weight")
	cmd.Flags().IntVar(&cfg.MaxContextLength, "max-context-length", cfg.MaxContextLength, "context character budget")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full assembly as JSON")
	return cmd
}
