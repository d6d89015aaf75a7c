package http

import (
	"fmt"
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that rate limits per host and stops
// calling hosts whose circuit is open. Error responses are passed through
// untouched so API clients can decode them.
type Transport struct {
	Base      http.RoundTripper
	Limiter   *RateLimiter
	Breaker   *CircuitBreaker
	UserAgent string
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	host := req.URL.Hostname()
	if err := t.Breaker.Allow(host); err != nil {
		return nil, fmt.Errorf("%s: %w", host, err)
	}
	if err := t.Limiter.Wait(req.Context(), req.URL.String()); err != nil {
		return nil, err
	}

	if t.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.UserAgent)
	}

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		t.Breaker.RecordFailure(host, err)
		return nil, err
	}

	statusErr := &StatusError{
		Host:       host,
		StatusCode: resp.StatusCode,
		RetryAfter: retryAfter(resp.Header),
	}
	switch {
	case rateLimited(resp.StatusCode, resp.Header):
		t.Limiter.RecordRateLimited(req.URL.String(), statusErr.RetryAfter)
		t.Breaker.RecordFailure(host, statusErr)
	case resp.StatusCode >= 500:
		t.Breaker.RecordFailure(host, statusErr)
	default:
		t.Limiter.RecordSuccess(req.URL.String())
		t.Breaker.RecordSuccess(host)
	}
	return resp, nil
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// ClientConfig configures NewClient.
type ClientConfig struct {
	Timeout        time.Duration
	UserAgent      string
	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
	// Base overrides the underlying transport, mainly for tests.
	Base http.RoundTripper
}

// DefaultClientConfig returns the defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:        15 * time.Second,
		UserAgent:      "ytaddon/1.0",
		RateLimiter:    DefaultRateLimiterConfig(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

// NewClient returns an *http.Client using Transport.
func NewClient(cfg ClientConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &Transport{
			Base:      cfg.Base,
			Limiter:   NewRateLimiter(cfg.RateLimiter),
			Breaker:   NewCircuitBreaker(cfg.CircuitBreaker),
			UserAgent: cfg.UserAgent,
		},
	}
}
