// Package addon serves the Stremio add-on: manifest, catalogs, stream
// lists, the relay endpoints and a small admin surface.
package addon

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"ytaddon/storage"
	"ytaddon/stream"
	"ytaddon/youtube"
)

// Prober reports whether the extractor can be run.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

// SearcherSource picks metadata searchers for the current settings.
type SearcherSource interface {
	Searcher(settings *storage.Settings) youtube.Searcher
	ChannelInfo(ctx context.Context, apiKey, ref string) (*youtube.Channel, error)
}

// Options wires a Server.
type Options struct {
	Store    storage.Store
	Relay    *stream.Relay
	Resolver stream.FormatResolver
	Prober   Prober
	Sources  SearcherSource

	// Rank shapes the advanced stream list.
	Rank stream.RankOptions
	// PinThroughRelay sends advanced-mode formats through the relay.
	PinThroughRelay bool
	// PublicURL overrides the base URL derived from each request.
	PublicURL string
	// ProbeTimeout bounds /health.
	ProbeTimeout time.Duration

	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

// Server implements the add-on HTTP surface.
type Server struct {
	opts   Options
	logger logrus.FieldLogger
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	return &Server{opts: opts, logger: opts.Logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors)
	r.Use(s.loadSettings)

	r.Get("/", s.handleAdmin)
	r.Get("/manifest.json", s.handleManifest)
	r.Get("/manifest", s.handleManifest)

	r.Get("/catalog/{type}/*", s.handleCatalog)

	r.Get("/stream/{type}/{file}", s.handleStreams)
	r.Get("/stream/{id}", s.handleStreams)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.MethodFunc(http.MethodGet, "/proxy/{id}", s.handleProxyBest)
		r.MethodFunc(http.MethodHead, "/proxy/{id}", s.handleProxyBest)
		r.MethodFunc(http.MethodGet, "/proxy-best/{id}", s.handleProxyBest)
		r.MethodFunc(http.MethodHead, "/proxy-best/{id}", s.handleProxyBest)
		r.MethodFunc(http.MethodGet, "/proxy-format/{id}/{formatID}", s.handleProxyFormat)
		r.MethodFunc(http.MethodHead, "/proxy-format/{id}/{formatID}", s.handleProxyFormat)
		r.MethodFunc(http.MethodGet, "/proxy-{quality}/{id}", s.handleProxyQuality)
		r.MethodFunc(http.MethodHead, "/proxy-{quality}/{id}", s.handleProxyQuality)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/config", s.handleGetConfig)
		r.Post("/config", s.handlePostConfig)
		r.Get("/channels", s.handleChannels)
		r.Get("/sessions", s.handleSessions)
	})

	r.Get("/health", s.handleHealth)
	if s.opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// baseURL is the origin clients should use to reach this server.
func (s *Server) baseURL(r *http.Request) string {
	if s.opts.PublicURL != "" {
		return s.opts.PublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

// videoIDFromParam strips the catalog prefix and an optional .json suffix.
func videoIDFromParam(raw string) string {
	id := strings.TrimSuffix(raw, ".json")
	if len(id) >= len(idPrefix) && strings.EqualFold(id[:len(idPrefix)], idPrefix) {
		id = id[len(idPrefix):]
	}
	return id
}
