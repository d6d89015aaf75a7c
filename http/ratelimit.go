// Package http provides the outbound HTTP stack used for YouTube metadata:
// per-host token buckets, adaptive backoff and a circuit breaker, all
// packaged as an http.RoundTripper.
package http

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff tuning for hosts that answered 429/503.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0
	BackoffCooldown   = 5 * time.Minute
	// MinRateFraction is the floor a throttled host's rate is reduced to.
	MinRateFraction = 0.25
)

// RateLimiterConfig sets request rates per host.
type RateLimiterConfig struct {
	// DataAPIRPS applies to googleapis.com. Default 1.
	DataAPIRPS float64
	// FeedRPS applies to RSS feeds on youtube.com. Default 10.
	FeedRPS float64
	// DefaultRPS applies to every other host. Zero means unlimited.
	DefaultRPS float64
	// HostRates overrides the rate for specific hosts.
	HostRates map[string]float64
	// AdaptiveBackoff lowers a host's rate after it rate limits us.
	AdaptiveBackoff bool
}

// DefaultRateLimiterConfig returns conservative defaults.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		DataAPIRPS:      1.0,
		FeedRPS:         10.0,
		HostRates:       map[string]float64{},
		AdaptiveBackoff: true,
	}
}

// backoff tracks how hard a host has been pushing back.
type backoff struct {
	current     time.Duration
	lastError   time.Time
	consecutive int
	baseRPS     float64
}

// RateLimiter hands out per-host tokens.
type RateLimiter struct {
	mu       sync.Mutex
	cfg      RateLimiterConfig
	limiters map[string]*rate.Limiter
	backoffs map[string]*backoff
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if cfg.DataAPIRPS <= 0 {
		cfg.DataAPIRPS = def.DataAPIRPS
	}
	if cfg.FeedRPS <= 0 {
		cfg.FeedRPS = def.FeedRPS
	}
	if cfg.HostRates == nil {
		cfg.HostRates = map[string]float64{}
	}
	return &RateLimiter{
		cfg:      cfg,
		limiters: map[string]*rate.Limiter{},
		backoffs: map[string]*backoff{},
	}
}

// Wait blocks until a request to rawURL may proceed, honouring both the
// token bucket and any active backoff window.
func (rl *RateLimiter) Wait(ctx context.Context, rawURL string) error {
	if rl == nil {
		return nil
	}
	host := hostOf(rawURL)
	if d := rl.backoffRemaining(host); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	lim := rl.limiter(host)
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}

// RateFor returns the configured rate for host, 0 meaning unlimited.
func (rl *RateLimiter) RateFor(host string) float64 {
	if rps, ok := rl.cfg.HostRates[host]; ok {
		return rps
	}
	switch host {
	case "www.googleapis.com", "youtube.googleapis.com", "googleapis.com":
		return rl.cfg.DataAPIRPS
	case "www.youtube.com", "youtube.com":
		return rl.cfg.FeedRPS
	default:
		return rl.cfg.DefaultRPS
	}
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rps := rl.RateFor(host)
	if rps <= 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if lim, ok := rl.limiters[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[host] = lim
	return lim
}

// RecordRateLimited notes a 429/503 from rawURL's host and returns how
// long callers should hold off.
func (rl *RateLimiter) RecordRateLimited(rawURL string, retryAfter time.Duration) time.Duration {
	if rl == nil || !rl.cfg.AdaptiveBackoff {
		if retryAfter > 0 {
			return retryAfter
		}
		return InitialBackoff
	}
	host := hostOf(rawURL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.backoffs[host]
	if !ok {
		b = &backoff{current: InitialBackoff, baseRPS: rl.RateFor(host)}
		rl.backoffs[host] = b
	} else {
		b.current = min(time.Duration(float64(b.current)*BackoffMultiplier), MaxBackoff)
	}
	b.consecutive++
	b.lastError = time.Now()
	if retryAfter > b.current {
		b.current = retryAfter
	}

	if lim, ok := rl.limiters[host]; ok && b.baseRPS > 0 {
		fraction := max(1.0-0.25*float64(b.consecutive), MinRateFraction)
		lim.SetLimit(rate.Limit(b.baseRPS * fraction))
	}
	return b.current
}

// RecordSuccess lets a throttled host recover once the cooldown passed.
func (rl *RateLimiter) RecordSuccess(rawURL string) {
	if rl == nil || !rl.cfg.AdaptiveBackoff {
		return
	}
	host := hostOf(rawURL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.backoffs[host]
	if !ok || time.Since(b.lastError) < BackoffCooldown {
		return
	}
	if lim, ok := rl.limiters[host]; ok && b.baseRPS > 0 {
		lim.SetLimit(rate.Limit(b.baseRPS))
	}
	delete(rl.backoffs, host)
}

// BackedOff reports whether rawURL's host is inside a backoff window.
func (rl *RateLimiter) BackedOff(rawURL string) bool {
	return rl.backoffRemaining(hostOf(rawURL)) > 0
}

func (rl *RateLimiter) backoffRemaining(host string) time.Duration {
	if rl == nil {
		return 0
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.backoffs[host]
	if !ok {
		return 0
	}
	return b.current - time.Since(b.lastError)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return u.Hostname()
}
