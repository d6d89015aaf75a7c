package ytaddon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"ytaddon/addon"
	"ytaddon/config"
	ythttp "ytaddon/http"
	"ytaddon/internal/ytdlp"
	"ytaddon/storage"
	"ytaddon/stream"
	"ytaddon/youtube"
)

// ShutdownTimeout bounds a graceful stop once live relays were killed.
const ShutdownTimeout = 10 * time.Second

// Options are the process level dependencies of an App.
type Options struct {
	// Fs holds the settings document. Nil means the OS filesystem.
	Fs afero.Fs
	// Registry receives the metrics. Nil creates a private registry with
	// the Go and process collectors.
	Registry *prometheus.Registry
	Logger   logrus.FieldLogger
}

// App is a fully wired add-on service.
type App struct {
	Config   *config.Config
	Runner   *ytdlp.Runner
	Resolver *stream.Resolver
	Relay    *stream.Relay
	Store    *storage.JSONStore
	Server   *addon.Server

	logger logrus.FieldLogger
}

// New wires every component from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("ytaddon: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	runner := ytdlp.New(cfg.Ytdlp.Path)
	runner.ExtraArgs = cfg.Ytdlp.ExtraArgs
	runner.ProbeTimeout = cfg.Ytdlp.ProbeTimeout
	runner.KillGrace = cfg.Ytdlp.KillGrace
	runner.LimitProcesses(int64(cfg.Ytdlp.MaxProcesses))

	metrics := stream.NewMetrics(reg)
	resolver := stream.NewResolver(runner, cfg.Ytdlp.ResolveTimeout, logger.WithField("component", "resolver"), metrics)
	relay := stream.NewRelay(runner, logger.WithField("component", "relay"), metrics)

	httpCfg := ythttp.DefaultClientConfig()
	httpCfg.Timeout = cfg.YouTube.Timeout
	httpCfg.RateLimiter.DataAPIRPS = cfg.YouTube.RequestsPerSecond

	api := youtube.DefaultAPIOptions()
	api.RegionCode = cfg.YouTube.Region
	api.Language = cfg.YouTube.Language

	sources := &addon.Sources{
		HTTPClient: ythttp.NewClient(httpCfg),
		Runner:     runner,
		API:        api,
		Timeout:    cfg.Ytdlp.ResolveTimeout,
		Logger:     logger.WithField("component", "search"),
	}

	store := storage.NewJSONStore(fsys, cfg.SettingsPath(storage.FileName))

	server := addon.New(addon.Options{
		Store:    store,
		Relay:    relay,
		Resolver: resolver,
		Prober:   runner,
		Sources:  sources,
		Rank: stream.RankOptions{
			MinHeight: cfg.Streams.MinHeight,
			MaxCount:  cfg.Streams.MaxFormats,
		},
		PinThroughRelay: cfg.Streams.PinThroughRelay,
		PublicURL:       cfg.PublicURL,
		ProbeTimeout:    cfg.Ytdlp.ProbeTimeout,
		Gatherer:        reg,
		Logger:          logger,
	})

	return &App{
		Config:   cfg,
		Runner:   runner,
		Resolver: resolver,
		Relay:    relay,
		Store:    store,
		Server:   server,
		logger:   logger,
	}, nil
}

// Handler returns the routed add-on handler.
func (a *App) Handler() http.Handler {
	return a.Server.Handler()
}

// HTTPServer returns the server for Config.ListenAddr. There is no write
// timeout: relays last as long as the video does.
func (a *App) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// Serve accepts connections on ln until ctx is done. It then closes the
// relay, waits for its extractors to exit and shuts the server down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := a.HTTPServer()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.WithField("addr", ln.Addr().String()).Info("listening")
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		stopped, err := a.Relay.Shutdown(shutdownCtx)
		log := a.logger.WithField("sessions", stopped)
		if err != nil {
			log.WithError(err).Warn("relays still running at shutdown")
		} else {
			log.Info("shutting down")
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ListenAndServe listens on Config.ListenAddr and calls Serve.
func (a *App) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.ListenAddr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}
