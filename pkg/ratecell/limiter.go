package ratecell

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RateLimiter is the main interface for admission control.
type RateLimiter interface {
	// Allow checks one unit against the default quota for key.
	Allow(ctx context.Context, key string) (*Decision, error)

	// AllowN checks cost units against the default quota for key.
	// A cost of 0 probes the bucket: it reports current capacity without
	// consuming any and is never denied.
	AllowN(ctx context.Context, key string, cost int64) (*Decision, error)

	// AllowQuota checks cost units against an explicit per-call quota.
	AllowQuota(ctx context.Context, key string, quota Quota, cost int64) (*Decision, error)

	// AllowRequest extracts the key from the request with the configured
	// key extractor and checks it against the policy for its route.
	AllowRequest(r *http.Request) (*Decision, error)

	// Middleware returns an HTTP middleware that applies admission control.
	Middleware(next http.Handler) http.Handler

	// StartBackgroundCleanup starts a goroutine that periodically sweeps
	// expired buckets from stores that support it. Returns a stop function.
	StartBackgroundCleanup() func()
}

// Decision contains the result of one admission check.
type Decision struct {
	// Limited indicates whether the request was denied
	Limited bool

	// Limit is the maximum number of units admitted in a single instant
	// (burst + 1)
	Limit int64

	// Remaining is the number of units left before requests are denied
	Remaining int64

	// RetryAfter is the whole seconds to wait before a request of this cost
	// can succeed, or -1 when it can never succeed (cost exceeds the
	// bucket's entire capacity)
	RetryAfter int64

	// TTL is the whole seconds until the bucket returns to fully idle
	TTL int64

	// Key is the bucket key that was checked
	Key string

	// Route is the route path that was checked, when request-driven
	Route string
}

// rateLimiter is the concrete implementation of RateLimiter.
type rateLimiter struct {
	store           StateStore
	clock           TimeSource
	config          *Config
	keyExtractor    KeyExtractor
	routeExtractor  func(string) string
	cleanupInterval time.Duration
}

// NewRateLimiter creates a new RateLimiter with the given options.
// If no options are provided, it uses sensible defaults: an in-memory store
// on the wall clock, allowing bursts of 100 at 10 admissions per second.
//
// Example:
//
//	limiter, err := NewRateLimiter(
//	    WithQuota(Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1}),
//	    WithKeyExtractor(ExtractIPWithProxy()),
//	)
func NewRateLimiter(opts ...Option) (RateLimiter, error) {
	rl := &rateLimiter{
		config:          NewConfig(),
		routeExtractor:  func(path string) string { return path },
		cleanupInterval: 10 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(rl); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if rl.clock == nil {
		rl.clock = rl.config.timeSource()
	}

	if rl.keyExtractor == nil {
		extractor, err := ParseKeyExtractorConfig(rl.config.KeyExtractor)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key extractor config: %w", err)
		}
		rl.keyExtractor = extractor
	}

	if rl.store == nil {
		rl.store = NewInMemoryStore(rl.clock)
	}

	return rl, nil
}

// Allow checks one unit against the default quota for key.
func (rl *rateLimiter) Allow(ctx context.Context, key string) (*Decision, error) {
	return rl.AllowN(ctx, key, 1)
}

// AllowN checks cost units against the default quota for key.
func (rl *rateLimiter) AllowN(ctx context.Context, key string, cost int64) (*Decision, error) {
	return rl.AllowQuota(ctx, key, rl.config.Defaults.Quota(), cost)
}

// AllowQuota checks cost units against an explicit per-call quota. This is
// the full command surface: key, burst, rate, period and cost per call, with
// the five-field verdict in return.
func (rl *rateLimiter) AllowQuota(ctx context.Context, key string, quota Quota, cost int64) (*Decision, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	if cost < 0 {
		return nil, ErrInvalidCost
	}
	if err := quota.Validate(); err != nil {
		return nil, err
	}
	emission, tolerance, err := quota.derive()
	if err != nil {
		return nil, err
	}
	if _, err := checkedIncrement(emission, cost); err != nil {
		return nil, err
	}

	// The engine decides; the store serializes read-decide-write per key.
	// On a conflict retry the closure runs again with the fresh stored
	// value and a fresh reading of the clock.
	var out outcome
	err = rl.store.Update(ctx, key, func(stored int64) (int64, time.Duration, bool) {
		out = decide(stored, rl.clock.Now(), emission, tolerance, cost)
		return out.newArrival, storeExpiry(out.ttl), out.persist
	})
	if err != nil {
		return nil, err
	}

	decision := &Decision{
		Limited:    out.limited,
		Limit:      quota.Limit(),
		Remaining:  out.remaining,
		RetryAfter: retryNever,
		TTL:        wholeSeconds(out.ttl),
		Key:        key,
	}
	if out.retryAfter >= 0 {
		decision.RetryAfter = wholeSeconds(out.retryAfter)
	}
	return decision, nil
}

// AllowRequest checks an HTTP request against the policy for its route.
func (rl *rateLimiter) AllowRequest(r *http.Request) (*Decision, error) {
	key, err := rl.keyExtractor(r)
	if err != nil {
		return nil, fmt.Errorf("key extraction failed: %w", err)
	}

	route := rl.routeExtractor(r.URL.Path)
	policy := rl.config.GetPolicy(route)

	if !policy.Enabled {
		return &Decision{
			Limited:    false,
			Limit:      policy.Quota().Limit(),
			Remaining:  policy.Quota().Limit(),
			RetryAfter: retryNever,
			Key:        key,
			Route:      route,
		}, nil
	}

	decision, err := rl.AllowQuota(r.Context(), key, policy.Quota(), 1)
	if err != nil {
		return nil, err
	}
	decision.Route = route

	return decision, nil
}

// Middleware returns an HTTP middleware that applies admission control.
// It sets standard rate limit headers and returns 429 when limits are
// exceeded.
//
// Headers:
//   - X-RateLimit-Limit: Maximum units admitted in a single instant
//   - X-RateLimit-Remaining: Units left before requests are denied
//   - X-RateLimit-Reset: Unix timestamp when the bucket is fully idle
//   - Retry-After: Seconds to wait before retrying (when limited and the
//     request could ever succeed)
func (rl *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision, err := rl.AllowRequest(r)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))

		if decision.Limited {
			// Reset comes from the same time source the decision used, so
			// header and verdict agree under any clock.
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", wholeSeconds(rl.clock.Now())+decision.TTL))
			if decision.RetryAfter >= 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", decision.RetryAfter))
			}
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// StartBackgroundCleanup starts a goroutine that periodically sweeps expired
// buckets. Returns a function to stop the cleanup goroutine.
func (rl *rateLimiter) StartBackgroundCleanup() func() {
	if memStore, ok := rl.store.(*InMemoryStore); ok {
		return memStore.StartBackgroundCleanup(rl.cleanupInterval)
	}

	// Stores with native expiry need no sweeping.
	return func() {}
}
