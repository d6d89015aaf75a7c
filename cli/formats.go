package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"ytaddon/internal/ytdlp"
	"ytaddon/stream"
)

func newFormatsCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formats <video-id>",
		Short: "List the formats the add-on would offer for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := args[0]
			if !ytdlp.ValidVideoID(videoID) {
				return fmt.Errorf("%w: %q", stream.ErrInvalidVideoID, videoID)
			}

			resolver := stream.NewResolver(state.runner(), state.cfg.Ytdlp.ResolveTimeout, state.logger, nil)
			info, err := resolver.Resolve(cmd.Context(), videoID)
			if err != nil {
				return err
			}

			formats := info.Formats
			if !lo.Must(cmd.Flags().GetBool("all")) {
				formats = stream.Rank(formats, stream.RankOptions{
					MinHeight: state.cfg.Streams.MinHeight,
					MaxCount:  state.cfg.Streams.MaxFormats,
				})
			}
			printFormats(cmd, info.Title, formats)
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "List every format, not just the ranked playable ones")
	return cmd
}

func printFormats(cmd *cobra.Command, title string, formats []stream.Format) {
	out := cmd.OutOrStdout()
	if title != "" {
		fmt.Fprintf(out, "%s\n\n", title)
	}
	if len(formats) == 0 {
		fmt.Fprintln(out, "No playable formats.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FORMAT\tEXT\tQUALITY\tRESOLUTION\tVCODEC\tACODEC\tSIZE")
	for _, f := range formats {
		size := ""
		if n := f.Size(); n > 0 {
			size = fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.Ext, f.Quality(), f.Resolution(), f.VideoCodec, f.AudioCodec, size)
	}
	w.Flush()
}
