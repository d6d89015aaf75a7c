package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ytaddon/internal/retry"
)

// probeChannelID is queried by CheckKey; channels.list costs one quota unit.
const probeChannelID = "UC_x5XG1OV2P6uZZ5FSM9Ttw"

// APIOptions tunes APISearcher.
type APIOptions struct {
	// HTTPClient carries rate limiting and circuit breaking. Nil uses
	// http.DefaultClient.
	HTTPClient *http.Client
	// Endpoint overrides the API base URL, mainly for tests.
	Endpoint string
	// RegionCode and Language bias keyword search results.
	RegionCode string
	Language   string
	// Retry controls retries of transient failures.
	Retry retry.Config
}

// DefaultAPIOptions returns the defaults.
func DefaultAPIOptions() APIOptions {
	return APIOptions{
		RegionCode: "IT",
		Language:   "it",
		Retry:      retry.DefaultConfig(),
	}
}

// APISearcher implements Searcher using YouTube Data API v3.
type APISearcher struct {
	service *youtube.Service
	apiKey  string
	opts    APIOptions
}

// NewAPISearcher creates a Data API searcher authenticated by apiKey.
func NewAPISearcher(apiKey string, opts APIOptions) (*APISearcher, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	// WithHTTPClient disables WithAPIKey, so the key is sent per call.
	clientOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	service, err := youtube.NewService(context.Background(), clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &APISearcher{service: service, apiKey: apiKey, opts: opts}, nil
}

func (a *APISearcher) key() googleapi.CallOption {
	return googleapi.QueryParameter("key", a.apiKey)
}

// SearchByKeyword implements Searcher.
func (a *APISearcher) SearchByKeyword(ctx context.Context, query string, limit int) ([]Video, error) {
	var videos []Video
	err := a.do(ctx, func(ctx context.Context) error {
		call := a.service.Search.List([]string{"snippet"}).
			Q(query).
			Type("video").
			MaxResults(int64(clampLimit(limit))).
			SafeSearch("none").
			Context(ctx)
		if a.opts.RegionCode != "" {
			call = call.RegionCode(a.opts.RegionCode)
		}
		if a.opts.Language != "" {
			call = call.RelevanceLanguage(a.opts.Language)
		}
		resp, err := call.Do(a.key())
		if err != nil {
			return err
		}
		videos = searchResultsToVideos(resp.Items)
		return nil
	})
	if err != nil {
		return nil, &SearchError{Source: "api", Query: query, Err: err}
	}
	return videos, nil
}

// SearchByChannel implements Searcher. Results are newest first.
func (a *APISearcher) SearchByChannel(ctx context.Context, ref string, limit int) ([]Video, error) {
	channel, err := a.ChannelInfo(ctx, ref)
	if err != nil {
		return nil, &SearchError{Source: "api", Query: ref, Err: err}
	}

	var videos []Video
	err = a.do(ctx, func(ctx context.Context) error {
		resp, err := a.service.Search.List([]string{"snippet"}).
			ChannelId(channel.ID).
			Order("date").
			Type("video").
			MaxResults(int64(clampLimit(limit))).
			Context(ctx).
			Do(a.key())
		if err != nil {
			return err
		}
		videos = searchResultsToVideos(resp.Items)
		return nil
	})
	if err != nil {
		return nil, &SearchError{Source: "api", Query: ref, Err: err}
	}
	for i := range videos {
		videos[i].ChannelThumbnail = channel.ThumbnailURL
		if videos[i].ChannelTitle == "" {
			videos[i].ChannelTitle = channel.Title
		}
	}
	return videos, nil
}

// ResolveChannelID turns a channel URL, @handle or ID into a channel ID.
func (a *APISearcher) ResolveChannelID(ctx context.Context, input string) (string, error) {
	ch, err := a.ChannelInfo(ctx, input)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

// ChannelInfo resolves a channel reference and fetches its title and avatar.
// Handles that channels.list does not know are looked up by search.
func (a *APISearcher) ChannelInfo(ctx context.Context, input string) (*Channel, error) {
	ref, err := ParseChannelRef(input)
	if err != nil {
		return nil, err
	}

	ch, err := a.lookupChannel(ctx, ref)
	if errors.Is(err, ErrChannelNotFound) && ref.Kind != RefChannelID {
		id, serr := a.searchChannel(ctx, ref.Value)
		if serr != nil {
			return nil, serr
		}
		return a.lookupChannel(ctx, ChannelRef{Kind: RefChannelID, Value: id})
	}
	return ch, err
}

func (a *APISearcher) lookupChannel(ctx context.Context, ref ChannelRef) (*Channel, error) {
	var ch *Channel
	err := a.do(ctx, func(ctx context.Context) error {
		call := a.service.Channels.List([]string{"snippet"}).Context(ctx)
		switch ref.Kind {
		case RefChannelID:
			call = call.Id(ref.Value)
		case RefHandle:
			call = call.ForHandle(ref.Value)
		case RefUser:
			call = call.ForUsername(ref.Value)
		default:
			return retry.Permanent(ErrChannelNotFound)
		}
		resp, err := call.Do(a.key())
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return retry.Permanent(ErrChannelNotFound)
		}
		item := resp.Items[0]
		ch = &Channel{ID: item.Id}
		if item.Snippet != nil {
			ch.Title = item.Snippet.Title
			ch.ThumbnailURL = pickThumb(item.Snippet.Thumbnails)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (a *APISearcher) searchChannel(ctx context.Context, name string) (string, error) {
	var id string
	err := a.do(ctx, func(ctx context.Context) error {
		resp, err := a.service.Search.List([]string{"id"}).
			Q(name).
			Type("channel").
			MaxResults(1).
			Context(ctx).
			Do(a.key())
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.ChannelId == "" {
			return retry.Permanent(ErrChannelNotFound)
		}
		id = resp.Items[0].Id.ChannelId
		return nil
	})
	return id, err
}

// CheckKey makes the cheapest authenticated call to validate the key and
// report whether quota remains.
func (a *APISearcher) CheckKey(ctx context.Context) error {
	return a.do(ctx, func(ctx context.Context) error {
		_, err := a.service.Channels.List([]string{"id"}).
			Id(probeChannelID).
			Context(ctx).
			Do(a.key())
		return err
	})
}

// do runs fn under the retry policy and maps API errors to sentinels.
// Quota and key errors are not retried.
func (a *APISearcher) do(ctx context.Context, fn func(context.Context) error) error {
	err := retry.Do(ctx, a.opts.Retry, nil, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		mapped := classifyAPIError(err)
		switch {
		case errors.Is(mapped, ErrQuotaExceeded), errors.Is(mapped, ErrInvalidKey):
			return retry.Permanent(mapped)
		case errors.Is(mapped, ErrNetwork):
			return mapped
		}
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code < 500 && gerr.Code != http.StatusTooManyRequests {
			return retry.Permanent(mapped)
		}
		return mapped
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// classifyAPIError maps quota and key failures onto sentinels and
// non-API failures onto ErrNetwork. Other errors pass through.
func classifyAPIError(err error) error {
	if err == nil || errors.Is(err, ErrChannelNotFound) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	for _, item := range gerr.Errors {
		switch item.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded":
			return fmt.Errorf("%w: %s", ErrQuotaExceeded, gerr.Message)
		case "keyInvalid", "keyExpired":
			return fmt.Errorf("%w: %s", ErrInvalidKey, gerr.Message)
		}
	}
	if gerr.Code == http.StatusBadRequest && strings.Contains(strings.ToLower(gerr.Message), "api key not valid") {
		return fmt.Errorf("%w: %s", ErrInvalidKey, gerr.Message)
	}
	return err
}

func searchResultsToVideos(items []*youtube.SearchResult) []Video {
	videos := make([]Video, 0, len(items))
	for _, item := range items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		v := Video{ID: item.Id.VideoId}
		if s := item.Snippet; s != nil {
			v.Title = s.Title
			v.Description = s.Description
			v.ChannelID = s.ChannelId
			v.ChannelTitle = s.ChannelTitle
			v.ThumbnailURL = pickThumb(s.Thumbnails)
			if t, err := time.Parse(time.RFC3339, s.PublishedAt); err == nil {
				v.PublishedAt = t
			}
		}
		if v.ThumbnailURL == "" {
			v.ThumbnailURL = DefaultThumbnail(v.ID)
		}
		videos = append(videos, v)
	}
	return videos
}

// pickThumb returns the largest thumbnail available.
func pickThumb(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.Maxres, t.Standard, t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}
