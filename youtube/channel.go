package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// channelIDRegex matches YouTube channel IDs (UC followed by 22 characters).
var channelIDRegex = regexp.MustCompile(`UC[a-zA-Z0-9_-]{22}`)

var handleRegex = regexp.MustCompile(`^@?([A-Za-z0-9._-]{3,100})$`)

// RefKind says how a channel reference identifies its channel.
type RefKind int

const (
	RefChannelID RefKind = iota
	RefHandle
	RefUser
	RefCustom
)

// ChannelRef is a parsed channel reference.
type ChannelRef struct {
	Kind  RefKind
	Value string // channel ID, handle without '@', legacy user name or custom name
}

// ParseChannelRef accepts channel URLs (/channel/, /@handle, /user/, /c/),
// bare @handles and bare channel IDs.
func ParseChannelRef(input string) (ChannelRef, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return ChannelRef{}, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if channelIDRegex.FindString(s) == s {
		return ChannelRef{Kind: RefChannelID, Value: s}, nil
	}
	if strings.HasPrefix(s, "@") {
		if m := handleRegex.FindStringSubmatch(s); m != nil {
			return ChannelRef{Kind: RefHandle, Value: m[1]}, nil
		}
		return ChannelRef{}, fmt.Errorf("%w: %q", ErrInvalidURL, input)
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || !isYouTubeHost(u.Hostname()) {
		return ChannelRef{}, fmt.Errorf("%w: %q", ErrInvalidURL, input)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) >= 2 && parts[0] == "channel":
		if id := channelIDRegex.FindString(parts[1]); id == parts[1] {
			return ChannelRef{Kind: RefChannelID, Value: id}, nil
		}
	case strings.HasPrefix(parts[0], "@"):
		if m := handleRegex.FindStringSubmatch(parts[0]); m != nil {
			return ChannelRef{Kind: RefHandle, Value: m[1]}, nil
		}
	case len(parts) >= 2 && parts[0] == "user" && parts[1] != "":
		return ChannelRef{Kind: RefUser, Value: parts[1]}, nil
	case len(parts) >= 2 && parts[0] == "c" && parts[1] != "":
		return ChannelRef{Kind: RefCustom, Value: parts[1]}, nil
	}
	return ChannelRef{}, fmt.Errorf("%w: %q", ErrInvalidURL, input)
}

// URL returns the canonical channel page for the reference.
func (r ChannelRef) URL() string {
	switch r.Kind {
	case RefChannelID:
		return "https://www.youtube.com/channel/" + r.Value
	case RefHandle:
		return "https://www.youtube.com/@" + r.Value
	case RefUser:
		return "https://www.youtube.com/user/" + r.Value
	default:
		return "https://www.youtube.com/c/" + r.Value
	}
}

func isYouTubeHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	host = strings.TrimPrefix(host, "m.")
	return host == "youtube.com"
}

// DeriveChannelName picks a display name for a channel URL when the user
// did not give one: the @handle, the channel ID, or the host.
func DeriveChannelName(rawURL string) string {
	ref, err := ParseChannelRef(rawURL)
	if err == nil {
		switch ref.Kind {
		case RefHandle:
			return "@" + ref.Value
		default:
			return ref.Value
		}
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return strings.TrimSpace(rawURL)
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
