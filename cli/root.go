package main

import (
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ytaddon/config"
	"ytaddon/internal/log"
	"ytaddon/internal/ytdlp"
)

// cliState carries what PersistentPreRunE loaded to the subcommands.
type cliState struct {
	v      *viper.Viper
	cfg    *config.Config
	logger *logrus.Logger
}

// runner builds an extractor runner from the loaded configuration.
func (s *cliState) runner() *ytdlp.Runner {
	r := ytdlp.New(s.cfg.Ytdlp.Path)
	r.ExtraArgs = s.cfg.Ytdlp.ExtraArgs
	r.ProbeTimeout = s.cfg.Ytdlp.ProbeTimeout
	r.KillGrace = s.cfg.Ytdlp.KillGrace
	return r
}

func newRootCmd() *cobra.Command {
	state := &cliState{v: config.NewViper(nil)}

	root := &cobra.Command{
		Use:           "ytaddon",
		Short:         "Stremio add-on for YouTube backed by yt-dlp",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if file := lo.Must(cmd.Flags().GetString("config")); file != "" {
				state.v.SetConfigFile(file)
			}
			cfg, err := config.Load(state.v)
			if err != nil {
				return err
			}
			state.cfg = cfg
			state.logger = log.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (default ./ytaddon.yaml or ~/.config/ytaddon/ytaddon.yaml)")
	pf.String("ytdlp", "", "Path to the yt-dlp executable")
	lo.Must0(state.v.BindPFlag("ytdlp.path", pf.Lookup("ytdlp")))
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	lo.Must0(state.v.BindPFlag("log.level", pf.Lookup("log-level")))
	pf.String("log-format", "", "Log format: text or json")
	lo.Must0(state.v.BindPFlag("log.format", pf.Lookup("log-format")))

	serve := newServeCmd(state)
	root.AddCommand(serve, newProbeCmd(state), newFormatsCmd(state), newVersionCmd())

	// Running the binary without a subcommand serves.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())
	return root
}
