package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ytaddon/internal/retry"
)

const rssFeedURL = "https://www.youtube.com/feeds/videos.xml"

// RSSSearcher implements the channel half of Searcher using YouTube's Atom
// feeds. Feeds carry only the 15 newest uploads and need no API key.
// Keyword search is not available.
type RSSSearcher struct {
	client *http.Client
	// FeedURL overrides the feed endpoint, mainly for tests.
	FeedURL string
	// ResolveID turns handles and legacy names into channel IDs. Without
	// it only references that carry a channel ID work.
	ResolveID   func(ctx context.Context, ref string) (string, error)
	RetryConfig retry.Config
}

// NewRSSSearcher creates a feed searcher. A nil client uses http.DefaultClient.
func NewRSSSearcher(client *http.Client) *RSSSearcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &RSSSearcher{
		client:      client,
		FeedURL:     rssFeedURL,
		RetryConfig: retry.DefaultConfig(),
	}
}

// SearchByKeyword implements Searcher. Feeds cannot be searched.
func (r *RSSSearcher) SearchByKeyword(_ context.Context, query string, _ int) ([]Video, error) {
	return nil, &SearchError{Source: "rss", Query: query, Err: ErrUnsupported}
}

// SearchByChannel implements Searcher.
func (r *RSSSearcher) SearchByChannel(ctx context.Context, ref string, limit int) ([]Video, error) {
	channelID, err := r.channelID(ctx, ref)
	if err != nil {
		return nil, &SearchError{Source: "rss", Query: ref, Err: err}
	}

	var feed *atomFeed
	err = retry.Do(ctx, r.RetryConfig, nil, func(ctx context.Context) error {
		f, err := r.fetch(ctx, channelID)
		if err != nil {
			return err
		}
		feed = f
		return nil
	})
	if err != nil {
		return nil, &SearchError{Source: "rss", Query: ref, Err: err}
	}

	videos := feedToVideos(feed, channelID)
	if limit = clampLimit(limit); len(videos) > limit {
		videos = videos[:limit]
	}
	return videos, nil
}

func (r *RSSSearcher) channelID(ctx context.Context, ref string) (string, error) {
	parsed, err := ParseChannelRef(ref)
	if err != nil {
		return "", err
	}
	if parsed.Kind == RefChannelID {
		return parsed.Value, nil
	}
	if r.ResolveID == nil {
		return "", fmt.Errorf("%w: %q needs a channel id", ErrUnsupported, ref)
	}
	return r.ResolveID(ctx, ref)
}

func (r *RSSSearcher) fetch(ctx context.Context, channelID string) (*atomFeed, error) {
	feedURL := r.FeedURL + "?channel_id=" + url.QueryEscape(channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(ErrChannelNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	feed, err := parseAtomFeed(body)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return feed, nil
}

type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Author  atomAuthor  `xml:"author"`
	Entries []atomEntry `xml:"entry"`
}

type atomAuthor struct {
	Name string `xml:"name"`
	URI  string `xml:"uri"`
}

type atomEntry struct {
	VideoID     string        `xml:"http://www.youtube.com/xml/schemas/2015 videoId"`
	ChannelID   string        `xml:"http://www.youtube.com/xml/schemas/2015 channelId"`
	Title       string        `xml:"title"`
	Published   time.Time     `xml:"published"`
	Description string        `xml:"group>description"`
	Thumbnail   atomThumbnail `xml:"group>thumbnail"`
}

type atomThumbnail struct {
	URL string `xml:"url,attr"`
}

func parseAtomFeed(data []byte) (*atomFeed, error) {
	var feed atomFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("parse atom feed: %w", err)
	}
	return &feed, nil
}

func feedToVideos(feed *atomFeed, channelID string) []Video {
	videos := make([]Video, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		if entry.VideoID == "" {
			continue
		}
		v := Video{
			ID:           entry.VideoID,
			Title:        entry.Title,
			Description:  entry.Description,
			ThumbnailURL: entry.Thumbnail.URL,
			ChannelID:    channelID,
			ChannelTitle: feed.Author.Name,
			PublishedAt:  entry.Published,
		}
		if v.ThumbnailURL == "" {
			v.ThumbnailURL = DefaultThumbnail(v.ID)
		}
		videos = append(videos, v)
	}
	return videos
}
