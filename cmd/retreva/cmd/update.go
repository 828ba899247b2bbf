package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/retreva/retreva/internal/output"
)

func newUpdateCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "update <file>...",
		Short: "Reindex specific files incrementally",
		Long: `Update reindexes the named files against the current generation.
Unchanged files are skipped, deleted files are retired from the index,
and each change publishes a new generation atomically.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot([]string{path})
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

			if err := updater.Load(cmd.Context()); err != nil {
				return err
			}

			for _, arg := range args {
				relPath := arg
				if filepath.IsAbs(arg) {
					if relPath, err = filepath.Rel(root, arg); err != nil {
						return err
					}
				}
				if err := updater.UpdateFile(cmd.Context(), relPath); err != nil {
					return err
				}
				out.Successf("updated %s", filepath.ToSlash(relPath))
			}
			out.Field("generation", updater.Generation())
			return nil
		},
	}

	cmd.Flags().StringVarP(&path, "path", "p", ".", "Project root")
	return cmd
}
