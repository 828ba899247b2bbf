package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retreva/retreva/internal/output"
	"github.com/retreva/retreva/internal/search"
)

type searchOptions struct {
	limit      int
	candidates int
	threshold  float64
	format     string
	path       string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search runs the two-stage retrieval pipeline: a lexical pass selects
candidates, then semantic reranking orders them by embedding similarity.
When the embedding provider is unavailable, lexical-only results are
returned and marked degraded.

Examples:
  retreva search "authentication middleware"
  retreva search "parse config file" -n 3
  retreva search "error handling" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.candidates, "candidates", 0, "Lexical candidate pool size")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", -1, "Minimum similarity score in [0, 1]")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVarP(&opts.path, "path", "p", ".", "Project root")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	root, err := resolveRoot([]string{opts.path})
	if err != nil {
		return err
	}

	updater, embedder, cfg, err := newProjectUpdater(ctx, root)
	if err != nil {
		return err
	}
	defer func() { _ = updater.Close() }()
	defer func() { _ = embedder.Close() }()

	if err := updater.Load(ctx); err != nil {
		return err
	}

	searchCfg := search.Config{
		TopN:                cfg.Search.TopN,
		CandidateMultiplier: cfg.Search.CandidateMultiplier,
		SimilarityThreshold: cfg.Search.SimilarityThreshold,
	}
	if opts.threshold >= 0 {
		searchCfg.SimilarityThreshold = opts.threshold
	}
	if opts.limit > 0 {
		searchCfg.TopN = opts.limit
	}

	retriever := search.NewRetriever(updater, embedder, searchCfg, slog.Default())
	resp, err := retriever.FetchContext(ctx, query, searchCfg.TopN, opts.candidates)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if resp.Degraded {
		out.Warning("embedding provider unavailable, showing lexical-only results")
	}
	if len(resp.Results) == 0 {
		out.Printf("no results for %q", query)
		return nil
	}

	out.Printf("found %d results for %q:", len(resp.Results), query)
	out.Newline()
	for i, r := range resp.Results {
		location := fmt.Sprintf("%s:%d-%d", r.FilePath, r.StartLine, r.EndLine)
		out.Result(i+1, location, r.Score, r.Text, 3)
		out.Newline()
	}
	return nil
}
