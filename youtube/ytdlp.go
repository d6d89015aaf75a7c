package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ytaddon/internal/ytdlp"
)

// Runner runs yt-dlp to completion. *ytdlp.Runner implements it.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, args ...string) (*ytdlp.Result, error)
}

// YtdlpSearcher implements Searcher by scraping with yt-dlp. It needs no
// API key but is slower than the Data API.
type YtdlpSearcher struct {
	runner  Runner
	timeout time.Duration
}

// NewYtdlpSearcher creates a searcher. A zero timeout means 40s.
func NewYtdlpSearcher(runner Runner, timeout time.Duration) *YtdlpSearcher {
	if timeout <= 0 {
		timeout = 40 * time.Second
	}
	return &YtdlpSearcher{runner: runner, timeout: timeout}
}

// SearchByKeyword implements Searcher.
func (y *YtdlpSearcher) SearchByKeyword(ctx context.Context, query string, limit int) ([]Video, error) {
	target := "ytsearch" + strconv.Itoa(clampLimit(limit)) + ":" + query
	videos, _, err := y.list(ctx, target, limit)
	if err != nil {
		return nil, &SearchError{Source: "ytdlp", Query: query, Err: err}
	}
	return videos, nil
}

// SearchByChannel implements Searcher. The channel's videos tab is newest first.
func (y *YtdlpSearcher) SearchByChannel(ctx context.Context, ref string, limit int) ([]Video, error) {
	parsed, err := ParseChannelRef(ref)
	if err != nil {
		return nil, &SearchError{Source: "ytdlp", Query: ref, Err: err}
	}
	videos, pl, err := y.list(ctx, parsed.URL()+"/videos", limit)
	if err != nil {
		return nil, &SearchError{Source: "ytdlp", Query: ref, Err: err}
	}
	for i := range videos {
		if videos[i].ChannelID == "" {
			videos[i].ChannelID = pl.ChannelID
		}
		if videos[i].ChannelTitle == "" {
			videos[i].ChannelTitle = pl.Channel
		}
	}
	return videos, nil
}

func (y *YtdlpSearcher) list(ctx context.Context, target string, limit int) ([]Video, *flatPlaylist, error) {
	res, err := y.runner.Run(ctx, y.timeout,
		"--flat-playlist", "-J", "--no-warnings",
		"--playlist-end", strconv.Itoa(clampLimit(limit)),
		"--", target)
	if err != nil {
		var exitErr *ytdlp.ExitError
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, nil, err
		case errors.As(err, &exitErr):
			return nil, nil, fmt.Errorf("%w: %v", ErrChannelNotFound, exitErr)
		default:
			return nil, nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}

	var pl flatPlaylist
	if err := json.Unmarshal(res.Stdout, &pl); err != nil {
		return nil, nil, fmt.Errorf("parse yt-dlp playlist: %w", err)
	}
	videos := pl.videos()
	if limit = clampLimit(limit); len(videos) > limit {
		videos = videos[:limit]
	}
	return videos, &pl, nil
}

// flatPlaylist is the subset of yt-dlp --flat-playlist -J output we read.
type flatPlaylist struct {
	Channel   string      `json:"channel"`
	ChannelID string      `json:"channel_id"`
	Entries   []flatEntry `json:"entries"`
}

type flatEntry struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Channel     string  `json:"channel"`
	ChannelID   string  `json:"channel_id"`
	Timestamp   float64 `json:"timestamp"`
	UploadDate  string  `json:"upload_date"`
	Thumbnails  []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

func (p *flatPlaylist) videos() []Video {
	out := make([]Video, 0, len(p.Entries))
	for _, e := range p.Entries {
		if !ytdlp.ValidVideoID(e.ID) {
			continue
		}
		v := Video{
			ID:           e.ID,
			Title:        e.Title,
			Description:  e.Description,
			ChannelID:    e.ChannelID,
			ChannelTitle: e.Channel,
			ThumbnailURL: DefaultThumbnail(e.ID),
		}
		// Thumbnails are listed smallest first.
		if n := len(e.Thumbnails); n > 0 && e.Thumbnails[n-1].URL != "" {
			v.ThumbnailURL = e.Thumbnails[n-1].URL
		}
		switch {
		case e.Timestamp > 0:
			v.PublishedAt = time.Unix(int64(e.Timestamp), 0).UTC()
		case e.UploadDate != "":
			if t, err := time.Parse("20060102", e.UploadDate); err == nil {
				v.PublishedAt = t
			}
		}
		out = append(out, v)
	}
	return out
}
