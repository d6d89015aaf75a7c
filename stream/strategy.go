package stream

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// Descriptor is a Stremio stream object.
type Descriptor struct {
	Name          string         `json:"name"`
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	Quality       string         `json:"quality,omitempty"`
	Container     string         `json:"container,omitempty"`
	Resolution    string         `json:"resolution,omitempty"`
	VideoCodec    string         `json:"videoCodec,omitempty"`
	AudioCodec    string         `json:"audioCodec,omitempty"`
	Size          int64          `json:"size,omitempty"`
	BehaviorHints *BehaviorHints `json:"behaviorHints,omitempty"`
}

// BehaviorHints are Stremio player hints.
type BehaviorHints struct {
	NotWebReady bool   `json:"notWebReady,omitempty"`
	BingeGroup  string `json:"bingeGroup,omitempty"`
	VideoSize   int64  `json:"videoSize,omitempty"`
}

const addonName = "YouTube"

// StreamRequest identifies the video to list streams for and where the
// relay endpoints are reachable.
type StreamRequest struct {
	VideoID string
	// BaseURL is the public origin of this service, without trailing slash.
	BaseURL string
}

// Strategy turns a video ID into stream descriptors.
type Strategy interface {
	Streams(ctx context.Context, req StreamRequest) ([]Descriptor, error)
}

// RelayURLStrategy returns a single relay URL without consulting the
// extractor. It is the cheap default.
type RelayURLStrategy struct{}

// Streams implements Strategy.
func (RelayURLStrategy) Streams(_ context.Context, req StreamRequest) ([]Descriptor, error) {
	return []Descriptor{BestDescriptor(req.BaseURL, req.VideoID)}, nil
}

// DirectURLStrategy resolves formats and offers one entry per ranked
// format after the best relay entry.
type DirectURLStrategy struct {
	Resolver FormatResolver
	Options  RankOptions
	// PinThroughRelay emits /proxy-format URLs instead of the extractor's
	// direct source URLs, which are bound to this server's IP.
	PinThroughRelay bool
	Logger          logrus.FieldLogger
}

// Streams implements Strategy. Extraction problems degrade to the fixed
// relay tiers; only context cancellation is returned as an error.
func (s *DirectURLStrategy) Streams(ctx context.Context, req StreamRequest) ([]Descriptor, error) {
	info, err := s.Resolver.Resolve(ctx, req.VideoID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger().WithError(err).WithFields(logrus.Fields{
			"video_id": req.VideoID,
			"kind":     Kind(err),
		}).Warn("falling back to relay tiers")
		return FallbackDescriptors(req.BaseURL, req.VideoID), nil
	}

	ranked := Rank(info.Formats, s.Options)
	if len(ranked) == 0 {
		s.logger().WithField("video_id", req.VideoID).Info("no playable muxed formats, using relay tiers")
		return FallbackDescriptors(req.BaseURL, req.VideoID), nil
	}

	out := make([]Descriptor, 0, len(ranked)+1)
	out = append(out, BestDescriptor(req.BaseURL, req.VideoID))
	for _, f := range ranked {
		out = append(out, s.describe(req, f))
	}
	return out, nil
}

func (s *DirectURLStrategy) describe(req StreamRequest, f Format) Descriptor {
	d := Descriptor{
		Name:       addonName + "\n" + f.Quality(),
		Title:      fmt.Sprintf("%s %s", f.Quality(), strings.ToUpper(f.Ext)),
		URL:        f.URL,
		Quality:    f.Quality(),
		Container:  f.Ext,
		Resolution: f.Resolution(),
		VideoCodec: f.VideoCodec,
		AudioCodec: f.AudioCodec,
		Size:       f.Size(),
		BehaviorHints: &BehaviorHints{
			BingeGroup:  "ytaddon-" + f.Quality(),
			VideoSize:   f.Size(),
			NotWebReady: f.Ext != "mp4",
		},
	}
	if s.PinThroughRelay {
		d.URL = FormatURL(req.BaseURL, req.VideoID, f.ID)
		d.BehaviorHints.NotWebReady = false
	}
	return d
}

func (s *DirectURLStrategy) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}

// BestDescriptor is the synthetic "best" entry that always heads a list.
func BestDescriptor(baseURL, videoID string) Descriptor {
	return Descriptor{
		Name:      addonName + "\nBest",
		Title:     "Best quality (relay)",
		URL:       baseURL + "/proxy-best/" + videoID,
		Quality:   "best",
		Container: "mp4",
		BehaviorHints: &BehaviorHints{
			BingeGroup: "ytaddon-best",
		},
	}
}

// FallbackTiers are the height ceilings offered when formats are unknown.
var FallbackTiers = []int{1080, 720, 360}

// FallbackDescriptors lists the best entry followed by fixed quality tiers.
func FallbackDescriptors(baseURL, videoID string) []Descriptor {
	return append([]Descriptor{BestDescriptor(baseURL, videoID)},
		lo.Map(FallbackTiers, func(h int, _ int) Descriptor {
			q := fmt.Sprintf("%dp", h)
			return Descriptor{
				Name:      addonName + "\n" + q,
				Title:     fmt.Sprintf("Up to %s (relay)", q),
				URL:       fmt.Sprintf("%s/proxy-%d/%s", baseURL, h, videoID),
				Quality:   q,
				Container: "mp4",
				BehaviorHints: &BehaviorHints{
					BingeGroup: "ytaddon-" + q,
				},
			}
		})...)
}

// FormatURL is the relay URL pinning one format.
func FormatURL(baseURL, videoID, formatID string) string {
	return baseURL + "/proxy-format/" + videoID + "/" + url.PathEscape(formatID)
}
