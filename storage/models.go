package storage

import "strings"

// Extraction limits for catalog pages.
const (
	DefaultExtractionLimit = 25
	MinExtractionLimit     = 5
	MaxExtractionLimit     = 50
)

// SearchMode selects where catalog metadata comes from.
type SearchMode string

const (
	SearchModeAPI   SearchMode = "api"
	SearchModeYtdlp SearchMode = "ytdlp"
)

// StreamMode selects how stream descriptors are built.
type StreamMode string

const (
	// StreamModeSimple offers relay URLs only; nothing is resolved up front.
	StreamModeSimple StreamMode = "simple"
	// StreamModeAdvanced resolves formats and offers direct URLs.
	StreamModeAdvanced StreamMode = "advanced"
)

// Channel is a followed YouTube channel.
type Channel struct {
	// Name is the genre label shown in the followed catalog.
	Name string `json:"name"`
	// URL is what the user entered: a channel URL, @handle or channel ID.
	URL string `json:"url"`
	// ChannelID is the resolved UC... ID, when known.
	ChannelID string `json:"channelId,omitempty"`
	// Thumbnail is the channel avatar, when known.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Settings is the persisted user configuration.
type Settings struct {
	APIKey          string     `json:"apiKey"`
	Channels        []Channel  `json:"channels"`
	ExtractionLimit int        `json:"extractionLimit"`
	SearchMode      SearchMode `json:"searchMode"`
	StreamMode      StreamMode `json:"streamMode"`
}

// DefaultSettings returns the document written on first use.
func DefaultSettings() *Settings {
	return &Settings{
		Channels:        []Channel{},
		ExtractionLimit: DefaultExtractionLimit,
		SearchMode:      SearchModeAPI,
		StreamMode:      StreamModeSimple,
	}
}

// Normalize returns a cleaned copy of s: the key is trimmed, the limit
// clamped, unknown modes reset to their defaults and channels without a
// URL or repeating an earlier URL dropped.
func (s *Settings) Normalize() *Settings {
	out := DefaultSettings()
	if s == nil {
		return out
	}

	out.APIKey = strings.TrimSpace(s.APIKey)
	out.ExtractionLimit = ClampExtractionLimit(s.ExtractionLimit)
	if s.SearchMode == SearchModeYtdlp {
		out.SearchMode = SearchModeYtdlp
	}
	if s.StreamMode == StreamModeAdvanced {
		out.StreamMode = StreamModeAdvanced
	}

	seen := make(map[string]bool, len(s.Channels))
	for _, ch := range s.Channels {
		ch.Name = strings.TrimSpace(ch.Name)
		ch.URL = strings.TrimSpace(ch.URL)
		ch.ChannelID = strings.TrimSpace(ch.ChannelID)
		if ch.URL == "" || seen[ch.URL] {
			continue
		}
		seen[ch.URL] = true
		if ch.Name == "" {
			ch.Name = ch.URL
		}
		out.Channels = append(out.Channels, ch)
	}
	return out
}

// ClampExtractionLimit maps n into [MinExtractionLimit, MaxExtractionLimit].
// Zero and negative values mean the default.
func ClampExtractionLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultExtractionLimit
	case n < MinExtractionLimit:
		return MinExtractionLimit
	case n > MaxExtractionLimit:
		return MaxExtractionLimit
	default:
		return n
	}
}

// ChannelByName returns the followed channel with the given name.
func (s *Settings) ChannelByName(name string) (Channel, bool) {
	for _, ch := range s.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Channels = append([]Channel(nil), s.Channels...)
	return &c
}
