package main

import (
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ytaddon"
)

func newServeCmd(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the add-on HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := state.cfg
			app, err := ytaddon.New(cfg, ytaddon.Options{Logger: state.logger})
			if err != nil {
				return err
			}

			if version, err := app.Runner.Probe(cmd.Context()); err != nil {
				state.logger.WithError(err).Warn("yt-dlp is not usable; streams will fail until it is installed")
			} else {
				state.logger.WithField("version", version).Info("yt-dlp found")
			}

			state.logger.WithFields(logrus.Fields{
				"addr":       cfg.ListenAddr,
				"public_url": cfg.PublicURL,
				"settings":   app.Store.Path(),
			}).Info("starting add-on")

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return app.ListenAndServe(ctx)
		},
	}

	f := cmd.Flags()
	f.String("listen", "", "Listen address, e.g. :3100")
	f.String("public-url", "", "Externally visible base URL")
	f.String("data-dir", "", "Directory holding config.json")
	f.Int("max-processes", 0, "Cap on concurrent yt-dlp processes (0 = unlimited)")
	lo.Must0(state.v.BindPFlag("listen_addr", f.Lookup("listen")))
	lo.Must0(state.v.BindPFlag("public_url", f.Lookup("public-url")))
	lo.Must0(state.v.BindPFlag("data_dir", f.Lookup("data-dir")))
	lo.Must0(state.v.BindPFlag("ytdlp.max_processes", f.Lookup("max-processes")))
	return cmd
}
