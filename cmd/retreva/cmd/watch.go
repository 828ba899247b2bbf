package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/retreva/retreva/internal/index"
	"github.com/retreva/retreva/internal/output"
	"github.com/retreva/retreva/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [path]",
		Short: "Watch the project and keep the index current",
		Long: `Watch observes the project tree and reindexes changed files as they
are saved. Rapid event bursts are debounced so one save triggers one
update. An index must exist; run 'retreva index' first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())

			updater, embedder, cfg, err := newProjectUpdater(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer func() { _ = updater.Close() }()
			defer func() { _ = embedder.Close() }()

			if err := updater.Load(cmd.Context()); err != nil {
				return err
			}

			w, err := watcher.New(watcher.Options{
				DebounceWindow:  debounce,
				ExcludePatterns: cfg.Paths.Exclude,
			}, slog.Default())
			if err != nil {
				return err
			}
			defer func() { _ = w.Stop() }()

			go consumeEvents(cmd.Context(), updater, w, out)

			out.Printf("watching %s", root)
			err = w.Start(cmd.Context(), root)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watcher.DefaultDebounceWindow,
		"How long to coalesce file events before reindexing")
	return cmd
}

// consumeEvents applies debounced watcher batches to the index. Update
// failures are reported and watching continues; the previous generation
// stays published.
func consumeEvents(ctx context.Context, updater *index.Updater, w *watcher.Watcher, out *output.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			for _, ev := range batch {
				if ev.IsDir {
					continue
				}
				if err := updater.UpdateFile(ctx, ev.Path); err != nil {
					out.Errorf("update %s: %v", ev.Path, err)
					continue
				}
				out.Printf("%s %s", ev.Operation, ev.Path)
			}
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			out.Warningf("watch error: %v", err)
		}
	}
}
