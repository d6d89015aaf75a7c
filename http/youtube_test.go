package http

import (
	"net/http"
	"testing"
	"time"
)

func TestRateLimited(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		header     http.Header
		want       bool
	}{
		{"429", http.StatusTooManyRequests, http.Header{}, true},
		{"503", http.StatusServiceUnavailable, http.Header{}, true},
		{"200", http.StatusOK, http.Header{"Retry-After": {"5"}}, false},
		{"403 with Retry-After", http.StatusForbidden, http.Header{"Retry-After": {"60"}}, true},
		{"403 with remaining 0", http.StatusForbidden, http.Header{"X-Ratelimit-Remaining": {"0"}}, true},
		{"403 with remaining 10", http.StatusForbidden, http.Header{"X-Ratelimit-Remaining": {"10"}}, false},
		{"403 with reset", http.StatusForbidden, http.Header{"X-Ratelimit-Reset": {"30"}}, true},
		{"403 bare", http.StatusForbidden, http.Header{}, false},
		{"404", http.StatusNotFound, http.Header{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rateLimited(tt.statusCode, tt.header); got != tt.want {
				t.Errorf("rateLimited() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{"seconds", http.Header{"Retry-After": {"120"}}, 120 * time.Second},
		{"reset", http.Header{"X-Ratelimit-Reset": {"30"}}, 30 * time.Second},
		{"wait", http.Header{"X-Ratelimit-Wait": {" 7 "}}, 7 * time.Second},
		{"retry-after wins", http.Header{"Retry-After": {"3"}, "X-Ratelimit-Reset": {"30"}}, 3 * time.Second},
		{"garbage", http.Header{"Retry-After": {"soon"}, "X-Ratelimit-Wait": {"later"}}, 0},
		{"none", http.Header{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryAfter(tt.header); got != tt.want {
				t.Errorf("retryAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}
