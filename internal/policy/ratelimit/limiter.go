// Package ratelimit paces outbound feed requests with per-host token
// buckets, so a worker pool paginating several feeds on one upstream does
// not hammer it.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Config holds the bucket parameters applied to every feed host.
type Config struct {
	// RequestsPerSecond caps page fetches per host. Zero or negative means
	// unlimited.
	RequestsPerSecond float64
	// Burst is the bucket size (minimum 1).
	Burst int
}

// Limiter hands out fetch tokens per feed host. Hosts are discovered lazily
// on first fetch. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// New builds a Limiter from cfg.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		rps:     r,
		burst:   burst,
	}
}

// Wait blocks until the host of rawURL may be fetched again, or the context
// is done.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	bucket := l.bucket(hostOf(rawURL))
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("feed rate limit wait: %w", err)
	}
	return nil
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket, ok := l.buckets[host]
	if !ok {
		bucket = rate.NewLimiter(l.rps, l.burst)
		l.buckets[host] = bucket
	}
	return bucket
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
