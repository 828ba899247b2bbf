// Package cmd provides the CLI commands for retreva.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/retreva/retreva/internal/config"
	"github.com/retreva/retreva/internal/embed"
	"github.com/retreva/retreva/internal/index"
	"github.com/retreva/retreva/internal/logging"
	"github.com/retreva/retreva/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the retreva CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retreva",
		Short: "Hybrid code retrieval for local codebases",
		Long: `Retreva indexes a codebase into a lexical and a semantic index and
answers natural-language queries with ranked code chunks.

Run 'retreva init' once, 'retreva index' to build, then 'retreva search'.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("retreva version {{.Version}}\n")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newUpdateCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg.Level = "debug"
		cfg.WriteToStderr = true
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	return nil
}

// resolveRoot turns an optional positional path argument into an
// absolute project root.
func resolveRoot(args []string) (string, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	return filepath.Abs(root)
}

// loadProject loads the project config from the root directory.
func loadProject(root string) (*config.Config, error) {
	return config.Load(filepath.Join(root, config.DefaultFileName))
}

// newProjectEmbedder builds the configured embedding provider.
func newProjectEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	opts := embed.Options{
		Provider: embed.ParseProvider(cfg.Embeddings.Provider),
		HTTP: embed.HTTPConfig{
			Endpoint:   cfg.Embeddings.Endpoint,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
			Timeout:    cfg.Embeddings.Timeout,
		},
		CacheSize: cfg.Embeddings.CacheSize,
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = -1
	}
	return embed.NewEmbedder(ctx, opts)
}

// newProjectUpdater wires config, embedder, and updater for a root.
// The caller owns closing both returned components.
func newProjectUpdater(ctx context.Context, root string) (*index.Updater, embed.Embedder, *config.Config, error) {
	cfg, err := loadProject(root)
	if err != nil {
		return nil, nil, nil, err
	}

	embedder, err := newProjectEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	updater, err := index.NewUpdater(root, cfg, embedder, slog.Default())
	if err != nil {
		_ = embedder.Close()
		return nil, nil, nil, err
	}
	return updater, embedder, cfg, nil
}
