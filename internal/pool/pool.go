// Package pool manages live agent instances keyed by (kind, scope): cached
// reuse, health-based eviction, single-flight construction, parallel
// warm-up, and idle sweeping. At most one instance per key is in flight or
// cached at any instant.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/leaguemind-ai/leaguemind/internal/agent"
	"github.com/leaguemind-ai/leaguemind/internal/persona"
)

// ErrNotCached is returned by Health for keys with no live instance.
var ErrNotCached = errors.New("agent not cached")

// Factory builds a new, uninitialized agent for a key. It typically closes
// over the shared collaborators (model backend, stores).
type Factory func(kind persona.Kind, scope string) (*agent.Agent, error)

// HealthCheck decides whether a cached instance may be returned. Unhealthy
// instances are evicted and rebuilt.
type HealthCheck func(*agent.Agent) bool

// Pool is the agent instance cache.
type Pool struct {
	factory Factory
	health  HealthCheck
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
}

type entry struct {
	agent    *agent.Agent
	created  time.Time
	lastUsed time.Time
}

// Option configures a Pool.
type Option func(*Pool)

// WithHealthCheck replaces the default health check.
func WithHealthCheck(hc HealthCheck) Option {
	return func(p *Pool) { p.health = hc }
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// New creates a pool around the given factory.
func New(factory Factory, opts ...Option) *Pool {
	p := &Pool{
		factory: factory,
		health:  func(a *agent.Agent) bool { return a.Healthy() },
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Obtain returns the live instance for (kind, scope), constructing one if
// needed. Concurrent callers for the same key share a single in-flight
// construction. forceNew evicts any cached instance first.
func (p *Pool) Obtain(ctx context.Context, kind persona.Kind, scope string, forceNew bool) (*agent.Agent, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", persona.ErrUnknownKind, kind)
	}
	key := persona.Key(kind, scope)

	if forceNew {
		p.remove(key)
	} else if a, ok := p.cached(key); ok {
		return a, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		// A sibling flight may have populated the cache between the miss
		// and this closure running.
		if a, ok := p.cached(key); ok {
			return a, nil
		}

		a, err := p.factory(kind, scope)
		if err != nil {
			return nil, fmt.Errorf("construct %s: %w", key, err)
		}
		if err := a.Init(ctx); err != nil {
			return nil, fmt.Errorf("initialize %s: %w", key, err)
		}

		now := p.now()
		p.mu.Lock()
		p.entries[key] = &entry{agent: a, created: now, lastUsed: now}
		p.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*agent.Agent), nil
}

// cached returns a healthy cached instance and touches its last-used time.
// Unhealthy instances are evicted on sight.
func (p *Pool) cached(key string) (*agent.Agent, bool) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		e.lastUsed = p.now()
	}
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	if !p.health(e.agent) {
		log.Printf("[Pool] evicting unhealthy instance %s", key)
		p.remove(key)
		return nil, false
	}
	return e.agent, true
}

// Evict removes the instance for (kind, scope). Returns whether one existed.
func (p *Pool) Evict(kind persona.Kind, scope string) bool {
	return p.remove(persona.Key(kind, scope))
}

func (p *Pool) remove(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[key]
	delete(p.entries, key)
	return ok
}

// ListCached returns the cached keys in sorted order.
func (p *Pool) ListCached() []string {
	p.mu.RLock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Health reports the health of the cached instance for (kind, scope).
// ErrNotCached when no instance is live.
func (p *Pool) Health(kind persona.Kind, scope string) error {
	key := persona.Key(kind, scope)
	p.mu.RLock()
	e, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotCached, key)
	}
	if !p.health(e.agent) {
		return fmt.Errorf("instance %s unhealthy", key)
	}
	return nil
}

// Preload warms the cache for every given kind in parallel. One kind's
// construction failure never aborts its siblings; failures are returned per
// kind.
func (p *Pool) Preload(ctx context.Context, scope string, kinds []persona.Kind) map[persona.Kind]error {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures = make(map[persona.Kind]error)
	)
	g.SetLimit(4)

	for _, kind := range kinds {
		g.Go(func() error {
			if _, err := p.Obtain(ctx, kind, scope, false); err != nil {
				log.Printf("[Pool] preload %s: %v", persona.Key(kind, scope), err)
				mu.Lock()
				failures[kind] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failures
}

// SweepIdle evicts instances unused for longer than maxAge and returns the
// eviction count.
func (p *Pool) SweepIdle(maxAge time.Duration) int {
	cutoff := p.now().Add(-maxAge)

	p.mu.Lock()
	defer p.mu.Unlock()
	evicted := 0
	for key, e := range p.entries {
		if e.lastUsed.Before(cutoff) {
			delete(p.entries, key)
			evicted++
		}
	}
	if evicted > 0 {
		log.Printf("[Pool] idle sweep evicted %d instance(s)", evicted)
	}
	return evicted
}

// Size returns the number of cached instances.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
