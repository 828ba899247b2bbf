package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/retreva/retreva/internal/config"
	"github.com/retreva/retreva/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			cfgPath := filepath.Join(root, config.DefaultFileName)

			if _, err := os.Stat(cfgPath); err == nil && !force {
				out.Warningf("%s already exists, use --force to overwrite", config.DefaultFileName)
				return nil
			}

			if err := config.Default().Save(cfgPath); err != nil {
				return err
			}
			out.Successf("wrote %s", cfgPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	return cmd
}
