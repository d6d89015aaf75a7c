package addon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"ytaddon/storage"
	"ytaddon/youtube"
)

// Sources builds metadata searchers for the current settings. The Data
// API client for the most recently used key is kept; a different key
// replaces it.
type Sources struct {
	// HTTPClient is shared by the Data API and feed clients.
	HTTPClient *http.Client
	// Runner backs the yt-dlp searcher. Nil disables it.
	Runner youtube.Runner
	// API holds the region, language and retry settings for Data API calls.
	API youtube.APIOptions
	// Timeout bounds a yt-dlp listing.
	Timeout time.Duration
	Logger  logrus.FieldLogger

	mu     sync.Mutex
	apiKey string
	api    *youtube.APISearcher
}

// APISearcher returns the Data API client for key, reusing the cached one
// when key has not changed.
func (s *Sources) APISearcher(key string) (*youtube.APISearcher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.api != nil && s.apiKey == key {
		return s.api, nil
	}
	opts := s.API
	opts.HTTPClient = s.HTTPClient
	a, err := youtube.NewAPISearcher(key, opts)
	if err != nil {
		return nil, err
	}
	s.apiKey, s.api = key, a
	return a, nil
}

// Searcher returns the source chain for settings. The preferred source
// comes first; the others are fallbacks.
func (s *Sources) Searcher(settings *storage.Settings) youtube.Searcher {
	var api *youtube.APISearcher
	if settings.APIKey != "" {
		if a, err := s.APISearcher(settings.APIKey); err == nil {
			api = a
		}
	}

	var ytdlp youtube.Searcher
	if s.Runner != nil {
		ytdlp = youtube.NewYtdlpSearcher(s.Runner, s.Timeout)
	}

	rss := youtube.NewRSSSearcher(s.HTTPClient)
	if api != nil {
		rss.ResolveID = api.ResolveChannelID
	}

	chain := youtube.NewFallbackSearcher(s.Logger)
	if settings.SearchMode == storage.SearchModeYtdlp {
		chain.Add("ytdlp", ytdlp).Add("rss", rss)
		if api != nil {
			chain.Add("api", api)
		}
		return chain
	}
	if api != nil {
		chain.Add("api", api)
	}
	return chain.Add("ytdlp", ytdlp).Add("rss", rss)
}

// ChannelInfo looks a channel reference up with the Data API.
func (s *Sources) ChannelInfo(ctx context.Context, key, ref string) (*youtube.Channel, error) {
	a, err := s.APISearcher(key)
	if err != nil {
		return nil, err
	}
	return a.ChannelInfo(ctx, ref)
}
