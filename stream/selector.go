package stream

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Selector is an extractor format selection expression. It is opaque to
// the relay and passed to the extractor verbatim.
type Selector string

// Best selects the best MP4 video with M4A audio, then the best MP4 single
// file, then anything.
func Best() Selector {
	return preferMP4("", true)
}

// AtMost selects the best quality at or below height, falling back to the
// best available when nothing is that small.
func AtMost(height int) Selector {
	return preferMP4(fmt.Sprintf("[height<=%d]", height), true)
}

// AtLeast selects the best quality at or above height.
func AtLeast(height int) Selector {
	return preferMP4(fmt.Sprintf("[height>=%d]", height), false)
}

// Between selects the best quality within [lo, hi].
func Between(lo, hi int) Selector {
	if lo > hi {
		lo, hi = hi, lo
	}
	return preferMP4(fmt.Sprintf("[height>=%d][height<=%d]", lo, hi), false)
}

// preferMP4 tries MP4/M4A tracks matching filter before any other
// container. anyLast ends the chain with an unfiltered "b".
func preferMP4(filter string, anyLast bool) Selector {
	alts := []string{
		"bv*" + filter + "[ext=mp4]+ba[ext=m4a]",
		"b" + filter + "[ext=mp4]",
		"bv*" + filter + "+ba",
		"b" + filter,
	}
	if anyLast {
		if filter == "" {
			alts = alts[:len(alts)-1]
		}
		alts = append(alts, "b")
	}
	return Selector(strings.Join(alts, "/"))
}

// FormatID pins one specific format reported by the resolver.
func FormatID(id string) Selector {
	return Selector(id)
}

func (s Selector) String() string {
	return string(s)
}

var formatIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidFormatID reports whether id is safe to pin as a selector.
func ValidFormatID(id string) bool {
	return formatIDPattern.MatchString(id)
}

// ParseQuality turns a URL quality token into a selector:
//
//	"" or "best"  best available
//	"720", "720p" at most 720p
//	"720+"        at least 720p
//	"480-1080"    between 480p and 1080p
func ParseQuality(q string) (Selector, error) {
	q = strings.ToLower(strings.TrimSpace(q))
	switch {
	case q == "" || q == "best":
		return Best(), nil
	case strings.HasSuffix(q, "+"):
		h, err := parseHeight(strings.TrimSuffix(q, "+"))
		if err != nil {
			return "", err
		}
		return AtLeast(h), nil
	case strings.Contains(q, "-"):
		lo, hi, _ := strings.Cut(q, "-")
		l, err := parseHeight(lo)
		if err != nil {
			return "", err
		}
		h, err := parseHeight(hi)
		if err != nil {
			return "", err
		}
		return Between(l, h), nil
	default:
		h, err := parseHeight(q)
		if err != nil {
			return "", err
		}
		return AtMost(h), nil
	}
}

func parseHeight(s string) (int, error) {
	h, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	if err != nil || h <= 0 || h > 8640 {
		return 0, fmt.Errorf("%w: quality %q", ErrInvalidSelector, s)
	}
	return h, nil
}
