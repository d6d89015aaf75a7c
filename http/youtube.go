package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// rateLimited reports whether a response is the upstream pushing back.
// Besides 429 and 503, YouTube front ends answer 403 with rate limit
// headers when a client is too eager.
func rateLimited(statusCode int, header http.Header) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return true
	case http.StatusForbidden:
		return hasRateLimitHeaders(header)
	}
	return false
}

func hasRateLimitHeaders(header http.Header) bool {
	if header.Get("Retry-After") != "" || header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	return header.Get("X-RateLimit-Reset") != "" || header.Get("X-RateLimit-Limit") != ""
}

// retryAfter reads how long to back off from Retry-After, falling back to
// the X-RateLimit-Reset and X-RateLimit-Wait second counts.
func retryAfter(header http.Header) time.Duration {
	if d := parseRetryAfter(header.Get("Retry-After")); d > 0 {
		return d
	}
	for _, h := range []string{"X-RateLimit-Reset", "X-RateLimit-Wait"} {
		if secs, err := strconv.Atoi(strings.TrimSpace(header.Get(h))); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
