package stream

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
)

// Format is one encoding of a video as reported by the extractor.
type Format struct {
	ID         string  `json:"format_id"`
	Ext        string  `json:"ext"`
	VideoCodec string  `json:"vcodec"`
	AudioCodec string  `json:"acodec"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	Filesize   *int64  `json:"filesize,omitempty"`
	URL        string  `json:"url"`
	Protocol   string  `json:"protocol,omitempty"`
	Bitrate    float64 `json:"tbr,omitempty"`
	Note       string  `json:"format_note,omitempty"`
}

// HasVideo reports whether the format carries a video track.
func (f Format) HasVideo() bool {
	return hasCodec(f.VideoCodec)
}

// HasAudio reports whether the format carries an audio track.
func (f Format) HasAudio() bool {
	return hasCodec(f.AudioCodec)
}

// Muxed reports whether the format carries both audio and video.
func (f Format) Muxed() bool {
	return f.HasVideo() && f.HasAudio()
}

// Quality returns a human label such as "720p" or "1080p60".
func (f Format) Quality() string {
	if f.Height <= 0 {
		return lo.CoalesceOrEmpty(f.Note, f.ID)
	}
	if f.FPS > 30 {
		return fmt.Sprintf("%dp%.0f", f.Height, f.FPS)
	}
	return fmt.Sprintf("%dp", f.Height)
}

// Resolution returns "WxH" when both dimensions are known.
func (f Format) Resolution() string {
	if f.Width <= 0 || f.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Size returns the exact or estimated byte size, or 0 when unknown.
func (f Format) Size() int64 {
	if f.Filesize == nil {
		return 0
	}
	return *f.Filesize
}

func hasCodec(c string) bool {
	c = strings.TrimSpace(c)
	return c != "" && c != "none"
}

// Info is the subset of the extractor's JSON dump the add-on uses.
type Info struct {
	ID       string
	Title    string
	Duration float64
	Formats  []Format
}

type rawInfo struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Duration float64     `json:"duration"`
	Formats  []rawFormat `json:"formats"`
}

// rawFormat uses floats for numbers the extractor sometimes emits as
// decimals or null.
type rawFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	VCodec         *string  `json:"vcodec"`
	ACodec         *string  `json:"acodec"`
	Width          *float64 `json:"width"`
	Height         *float64 `json:"height"`
	FPS            *float64 `json:"fps"`
	Filesize       *float64 `json:"filesize"`
	FilesizeApprox *float64 `json:"filesize_approx"`
	URL            string   `json:"url"`
	Protocol       string   `json:"protocol"`
	TBR            *float64 `json:"tbr"`
	FormatNote     string   `json:"format_note"`
}

// ParseInfo decodes the output of `yt-dlp -J`.
func ParseInfo(data []byte) (*Info, error) {
	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	info := &Info{
		ID:       raw.ID,
		Title:    raw.Title,
		Duration: raw.Duration,
		Formats:  make([]Format, 0, len(raw.Formats)),
	}
	for _, rf := range raw.Formats {
		f := Format{
			ID:         rf.FormatID,
			Ext:        rf.Ext,
			VideoCodec: lo.FromPtr(rf.VCodec),
			AudioCodec: lo.FromPtr(rf.ACodec),
			Width:      int(lo.FromPtr(rf.Width)),
			Height:     int(lo.FromPtr(rf.Height)),
			FPS:        lo.FromPtr(rf.FPS),
			URL:        rf.URL,
			Protocol:   rf.Protocol,
			Bitrate:    lo.FromPtr(rf.TBR),
			Note:       rf.FormatNote,
		}
		if size := lo.CoalesceOrEmpty(rf.Filesize, rf.FilesizeApprox); size != nil {
			f.Filesize = lo.ToPtr(int64(*size))
		}
		info.Formats = append(info.Formats, f)
	}
	return info, nil
}

// RankOptions controls format filtering.
type RankOptions struct {
	// MinHeight drops formats below this height. Zero disables the floor.
	MinHeight int
	// MaxCount caps the result. Zero means no cap.
	MaxCount int
}

// DefaultRankOptions returns the add-on defaults.
func DefaultRankOptions() RankOptions {
	return RankOptions{MinHeight: 240, MaxCount: 6}
}

// Rank filters formats down to directly playable muxed ones and orders
// them MP4 first, then by height descending. Equal formats keep their
// input order. The input slice is not modified.
//
// The height floor is relaxed when it would remove every muxed format,
// so a list with at least one playable entry never ranks to nothing.
func Rank(formats []Format, opts RankOptions) []Format {
	playable := lo.Filter(formats, func(f Format, _ int) bool {
		return f.URL != "" && f.Muxed()
	})
	ranked := lo.Filter(playable, func(f Format, _ int) bool {
		return f.Height >= opts.MinHeight
	})
	if len(ranked) == 0 {
		ranked = playable
	}

	slices.SortStableFunc(ranked, compareFormats)

	if opts.MaxCount > 0 && len(ranked) > opts.MaxCount {
		ranked = ranked[:opts.MaxCount]
	}
	return ranked
}

func compareFormats(a, b Format) int {
	aMP4, bMP4 := a.Ext == "mp4", b.Ext == "mp4"
	if aMP4 != bMP4 {
		if aMP4 {
			return -1
		}
		return 1
	}
	return cmp.Compare(b.Height, a.Height)
}
