package cmd

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	rerrors "github.com/retreva/retreva/internal/errors"
	"github.com/retreva/retreva/internal/output"
)

type statusReport struct {
	State      string `json:"state"`
	Generation string `json:"generation,omitempty"`
	Files      int    `json:"files"`
	Chunks     int    `json:"chunks"`
	LastError  string `json:"last_error,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index state and counts",
		Args:  cobra.MaximumNArgs(1),
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

			if err := updater.Load(cmd.Context()); err != nil {
				if rerrors.GetCode(err) != rerrors.ErrCodeIndexNotReady {
					return err
				}
			}

			st := updater.Status(cmd.Context())
			report := statusReport{
				State:      string(st.State),
				Generation: st.Generation,
				Files:      st.FileCount,
				Chunks:     st.ChunkCount,
				LastError:  st.LastError,
			}

			if format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			out.Header("retreva index status")
			out.Field("state", report.State)
			if report.Generation == "" {
				out.Field("index", "not built, run 'retreva index'")
				return nil
			}
			out.Field("generation", report.Generation)
			out.Field("files", strconv.Itoa(report.Files))
			out.Field("chunks", strconv.Itoa(report.Chunks))
			if report.LastError != "" {
				out.Field("last error", report.LastError)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
