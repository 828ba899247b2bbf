package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/retreva/retreva/internal/output"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build the retrieval index from scratch",
		Long: `Index scans the project, chunks every indexable file, embeds the
chunks, and publishes a fresh index generation. An existing index is
replaced atomically; searches against the old generation keep working
until the new one is published.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())

			updater, embedder, _, err := newProjectUpdater(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer func() { _ = updater.Close() }()
			defer func() { _ = embedder.Close() }()

			out.Printf("indexing %s", root)
			stats, err := updater.IndexCodebase(cmd.Context())
			if err != nil {
				return err
			}

			out.Successf("indexed %d files into %d chunks in %s",
				stats.Files, stats.Chunks, stats.Elapsed.Round(time.Millisecond))
			out.Field("generation", stats.Generation)
			return nil
		},
	}
	return cmd
}
