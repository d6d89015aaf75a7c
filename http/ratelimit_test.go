package http

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_RateFor(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		DataAPIRPS: 2,
		FeedRPS:    5,
		HostRates:  map[string]float64{"example.com": 7},
	})
	tests := []struct {
		host string
		want float64
	}{
		{"youtube.googleapis.com", 2},
		{"www.googleapis.com", 2},
		{"www.youtube.com", 5},
		{"example.com", 7},
		{"other.org", 0},
	}
	for _, tt := range tests {
		if got := rl.RateFor(tt.host); got != tt.want {
			t.Errorf("RateFor(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestRateLimiter_Wait(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DataAPIRPS: 10})
	ctx := context.Background()
	u := "https://youtube.googleapis.com/youtube/v3/search"

	if err := rl.Wait(ctx, u); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	start := time.Now()
	if err := rl.Wait(ctx, u); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second Wait() took %v, want about 100ms", elapsed)
	}
}

func TestRateLimiter_UnlimitedHost(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := rl.Wait(context.Background(), "http://127.0.0.1:1234/x"); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("unlimited host waited %v", elapsed)
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{DataAPIRPS: 0.1})
	u := "https://www.googleapis.com/youtube/v3/search"
	if err := rl.Wait(context.Background(), u); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := rl.Wait(ctx, u); err == nil {
		t.Error("Wait() = nil, want context error")
	}
}

func TestRateLimiter_Backoff(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	u := "https://www.googleapis.com/youtube/v3/search"

	if rl.BackedOff(u) {
		t.Fatal("BackedOff() = true before any error")
	}
	first := rl.RecordRateLimited(u, 0)
	if first != InitialBackoff {
		t.Errorf("first backoff = %v, want %v", first, InitialBackoff)
	}
	second := rl.RecordRateLimited(u, 0)
	if second != 2*InitialBackoff {
		t.Errorf("second backoff = %v, want %v", second, 2*InitialBackoff)
	}
	if got := rl.RecordRateLimited(u, 10*time.Second); got != 10*time.Second {
		t.Errorf("Retry-After backoff = %v, want 10s", got)
	}
	if !rl.BackedOff(u) {
		t.Error("BackedOff() = false after rate limit")
	}
	if rl.BackedOff("https://www.youtube.com/feeds/videos.xml") {
		t.Error("backoff leaked to another host")
	}
}

func TestRateLimiter_BackoffCapped(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	u := "https://www.googleapis.com/x"
	var got time.Duration
	for i := 0; i < 20; i++ {
		got = rl.RecordRateLimited(u, 0)
	}
	if got != MaxBackoff {
		t.Errorf("backoff = %v, want cap %v", got, MaxBackoff)
	}
}

func TestRateLimiter_Nil(t *testing.T) {
	var rl *RateLimiter
	if err := rl.Wait(context.Background(), "https://x"); err != nil {
		t.Errorf("nil Wait() error = %v", err)
	}
	if rl.BackedOff("https://x") {
		t.Error("nil BackedOff() = true")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"-1", 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
