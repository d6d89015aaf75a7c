// Package youtube finds videos for the add-on catalogs: keyword search and
// the latest uploads of followed channels. Several sources implement
// Searcher (Data API v3, yt-dlp, RSS) and FallbackSearcher chains them.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for metadata lookups.
var (
	// ErrQuotaExceeded indicates the Data API daily quota is used up.
	ErrQuotaExceeded = errors.New("youtube: api quota exceeded")

	// ErrInvalidKey indicates the configured API key was rejected.
	ErrInvalidKey = errors.New("youtube: invalid api key")

	// ErrNoAPIKey indicates the API source is selected but no key is configured.
	ErrNoAPIKey = errors.New("youtube: api key not configured")

	// ErrNetwork indicates the source could not be reached.
	ErrNetwork = errors.New("youtube: network error")

	// ErrChannelNotFound indicates a channel reference did not resolve.
	ErrChannelNotFound = errors.New("youtube: channel not found")

	// ErrInvalidURL indicates a channel reference could not be parsed.
	ErrInvalidURL = errors.New("youtube: invalid channel reference")

	// ErrRateLimited indicates the source asked us to slow down.
	ErrRateLimited = errors.New("youtube: rate limited")

	// ErrUnsupported indicates the source cannot serve this kind of lookup.
	ErrUnsupported = errors.New("youtube: not supported by this source")
)

// SearchError wraps a failure with the source and query that produced it.
type SearchError struct {
	Source string // "api", "ytdlp" or "rss"
	Query  string
	Err    error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("%s search %q: %v", e.Source, e.Query, e.Err)
}

func (e *SearchError) Unwrap() error {
	return e.Err
}

// Video is catalog metadata for one video.
type Video struct {
	ID               string
	Title            string
	Description      string
	ThumbnailURL     string
	ChannelID        string
	ChannelTitle     string
	ChannelThumbnail string
	PublishedAt      time.Time
}

// Channel is the identity of a followed channel.
type Channel struct {
	ID           string
	Title        string
	ThumbnailURL string
}

// Searcher looks videos up.
type Searcher interface {
	// SearchByKeyword returns up to limit videos matching query.
	SearchByKeyword(ctx context.Context, query string, limit int) ([]Video, error)
	// SearchByChannel returns up to limit of the newest uploads of the
	// channel identified by ref (URL, @handle or channel ID).
	SearchByChannel(ctx context.Context, ref string, limit int) ([]Video, error)
}

// DefaultThumbnail is the still YouTube serves for every video.
func DefaultThumbnail(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 25
	case limit > 50:
		return 50
	default:
		return limit
	}
}
