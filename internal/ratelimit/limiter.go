// Package ratelimit implements per-key token bucket rate limiting with
// per-category policies.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fursa-platform/gateway/internal/observability"
	"github.com/fursa-platform/gateway/internal/route"
)

// Policy is the token bucket policy for a category. Burst is the bucket
// capacity and defaults to RequestsPerMinute.
type Policy struct {
	RequestsPerMinute int
	Burst             int
}

func (p Policy) burst() int {
	if p.Burst > 0 {
		return p.Burst
	}
	return p.RequestsPerMinute
}

func (p Policy) refillRate() rate.Limit {
	return rate.Limit(float64(p.RequestsPerMinute) / 60.0)
}

// DefaultPolicies returns the stock category policies.
func DefaultPolicies() map[route.Category]Policy {
	return map[route.Category]Policy{
		route.CategoryGeneral: {RequestsPerMinute: 100},
		route.CategoryAuth:    {RequestsPerMinute: 20},
		route.CategoryUSSD:    {RequestsPerMinute: 50},
	}
}

// Result describes a rate limit decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the Retry-After header value, rounded up so
// clients never retry early.
func (r Result) RetryAfterSeconds() int {
	if r.RetryAfter <= 0 {
		return 1
	}
	return int(math.Ceil(r.RetryAfter.Seconds()))
}

type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter enforces per-key token bucket policies. Each (category, key)
// pair gets its own bucket, created full on first use. Idle buckets are
// evicted by a background cleanup loop.
type Limiter struct {
	policies map[route.Category]Policy
	fallback Policy

	mu      sync.Mutex
	entries map[string]*entry

	now             func() time.Time
	idleTTL         time.Duration
	cleanupInterval time.Duration
	logger          observability.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option is a functional option for the limiter.
type Option func(*Limiter)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithIdleTTL sets how long an unused bucket survives.
func WithIdleTTL(ttl time.Duration) Option {
	return func(l *Limiter) {
		l.idleTTL = ttl
	}
}

// WithCleanupInterval sets how often idle buckets are evicted.
func WithCleanupInterval(interval time.Duration) Option {
	return func(l *Limiter) {
		l.cleanupInterval = interval
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// New creates a limiter with the given per-category policies. Unknown
// categories fall back to the general policy.
func New(policies map[route.Category]Policy, opts ...Option) *Limiter {
	if policies == nil {
		policies = DefaultPolicies()
	}

	fallback, ok := policies[route.CategoryGeneral]
	if !ok {
		fallback = Policy{RequestsPerMinute: 100}
	}

	l := &Limiter{
		policies:        policies,
		fallback:        fallback,
		entries:         make(map[string]*entry),
		now:             time.Now,
		idleTTL:         10 * time.Minute,
		cleanupInterval: time.Minute,
		logger:          observability.NopLogger(),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.cleanupLoop()

	return l
}

// Allow consumes one token from the bucket for (category, key) and
// reports the decision.
func (l *Limiter) Allow(category route.Category, key string) Result {
	policy, ok := l.policies[category]
	if !ok {
		policy = l.fallback
	}

	now := l.now()
	bucketKey := string(category) + ":" + key

	l.mu.Lock()
	e, ok := l.entries[bucketKey]
	if !ok {
		e = &entry{
			limiter: rate.NewLimiter(policy.refillRate(), policy.burst()),
		}
		l.entries[bucketKey] = e
	}
	e.lastAccess = now
	l.mu.Unlock()

	limit := policy.burst()

	if e.limiter.AllowN(now, 1) {
		remaining := int(e.limiter.TokensAt(now))
		if remaining < 0 {
			remaining = 0
		}
		return Result{Allowed: true, Limit: limit, Remaining: remaining}
	}

	// Time until one token refills at the category rate.
	deficit := 1 - e.limiter.TokensAt(now)
	retryAfter := time.Duration(deficit / float64(e.limiter.Limit()) * float64(time.Second))

	return Result{Allowed: false, Limit: limit, RetryAfter: retryAfter}
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Close stops the cleanup loop.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.evictIdle()
		}
	}
}

func (l *Limiter) evictIdle() {
	now := l.now()

	l.mu.Lock()
	evicted := 0
	for key, e := range l.entries {
		if now.Sub(e.lastAccess) > l.idleTTL {
			delete(l.entries, key)
			evicted++
		}
	}
	remaining := len(l.entries)
	l.mu.Unlock()

	if evicted > 0 {
		l.logger.Debug("evicted idle rate limit buckets",
			observability.Int("evicted", evicted),
			observability.Int("remaining", remaining),
		)
	}
}
