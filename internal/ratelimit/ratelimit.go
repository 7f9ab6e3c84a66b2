// Package ratelimit implements sliding-window admission control keyed by an
// arbitrary identifier (connection id, user id). Only requests whose
// timestamps fall inside the trailing window count against the limit.
package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Config bounds one limiter: at most MaxRequests per Window per key.
type Config struct {
	MaxRequests int
	Window      time.Duration
}

// LimitError reports a rejected request. RetryAfter is the time until the
// oldest in-window request leaves the window and a slot frees up.
type LimitError struct {
	Key        string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (%d per %s), retry after %s",
		e.Key, e.Limit, e.Window, e.RetryAfter)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for client-facing
// error payloads. Never returns less than 1 for a positive wait.
func (e *LimitError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Seconds()))
}

// Limiter tracks request timestamps per key. Buckets are pruned lazily on
// each Allow and wholesale by Prune; an empty bucket is dropped.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter for the given window config.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 30
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	l := &Limiter{
		cfg:     cfg,
		buckets: make(map[string][]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records a request for key if it fits in the window. On success it
// returns the number of additional requests the key may still make. On
// rejection it returns a *LimitError carrying the retry-after duration.
func (l *Limiter) Allow(key string) (remaining int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	bucket := l.buckets[key]
	// Drop timestamps that have left the window. Entries are in arrival
	// order, so scan from the front.
	i := 0
	for i < len(bucket) && !bucket[i].After(cutoff) {
		i++
	}
	bucket = bucket[i:]

	if len(bucket) >= l.cfg.MaxRequests {
		l.buckets[key] = bucket
		return 0, &LimitError{
			Key:        key,
			Limit:      l.cfg.MaxRequests,
			Window:     l.cfg.Window,
			RetryAfter: bucket[0].Add(l.cfg.Window).Sub(now),
		}
	}

	bucket = append(bucket, now)
	l.buckets[key] = bucket
	return l.cfg.MaxRequests - len(bucket), nil
}

// Remaining reports how many requests key could still make without recording
// one.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.Window)
	n := 0
	for _, ts := range l.buckets[key] {
		if ts.After(cutoff) {
			n++
		}
	}
	if n >= l.cfg.MaxRequests {
		return 0
	}
	return l.cfg.MaxRequests - n
}

// Prune drops expired timestamps everywhere and deletes empty buckets.
// Returns the number of buckets removed. Meant to run on a periodic timer so
// idle keys do not pin memory between requests.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.Window)
	removed := 0
	for key, bucket := range l.buckets {
		i := 0
		for i < len(bucket) && !bucket[i].After(cutoff) {
			i++
		}
		if i == len(bucket) {
			delete(l.buckets, key)
			removed++
			continue
		}
		l.buckets[key] = bucket[i:]
	}
	return removed
}

// Keys returns the number of tracked buckets.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
