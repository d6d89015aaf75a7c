package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that yt-dlp can be run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			version, err := state.runner().Probe(cmd.Context())
			if err != nil {
				return fmt.Errorf("yt-dlp at %q: %w", state.cfg.Ytdlp.Path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "yt-dlp %s (%s)\n", version, state.cfg.Ytdlp.Path)
			return nil
		},
	}
}
