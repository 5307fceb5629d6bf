// Package ratecell provides GCRA-based admission control for Go applications.
//
// Ratecell implements the Generic Cell Rate Algorithm, which tracks a single
// timestamp per bucket (the theoretical arrival time) instead of counters,
// making state cheap to persist and trivially shareable through any key/value
// store with expiry.
//
// # Quick Start
//
// Basic usage with an explicit quota:
//
//	limiter, err := ratecell.NewRateLimiter(
//	    ratecell.WithQuota(ratecell.Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	decision, err := limiter.Allow(ctx, "user-123")
//	if decision.Limited {
//	    fmt.Printf("Denied. Retry after %ds\n", decision.RetryAfter)
//	}
//
// Each decision reports five values: whether the request was limited, the
// instantaneous limit (burst+1), the remaining capacity, the seconds to wait
// before retrying (-1 when the cost can never fit), and the seconds until the
// bucket is fully idle again.
//
// A cost of zero probes a bucket without consuming capacity:
//
//	decision, err := limiter.AllowN(ctx, "user-123", 0)
//
// Probes are never denied and never change the outcome of real requests.
//
// # HTTP Middleware
//
// Use as HTTP middleware for automatic admission control:
//
//	limiter, _ := ratecell.NewRateLimiter(
//	    ratecell.WithKeyExtractor(ratecell.ExtractIPWithProxy()),
//	)
//
//	http.Handle("/api/", limiter.Middleware(yourHandler))
//
// The middleware sets X-RateLimit-Limit, X-RateLimit-Remaining,
// X-RateLimit-Reset and Retry-After, and replies 429 when limited.
//
// # Storage
//
// Bucket state lives behind the StateStore interface: one int64 timestamp per
// key with an expiry. The in-memory store suits single instances; the Redis
// store shares buckets across instances using an optimistic per-key
// compare-and-swap, so two racing requests on one key can never both spend
// the same capacity.
//
// # Time
//
// Decisions read an injected TimeSource. WallClock keeps persisted buckets
// meaningful across failover; MonotonicClock is immune to operator clock
// changes but resets on restart. Tests use a hand-rolled fake.
//
// # Configuration
//
// Load per-route policies from YAML:
//
//	defaults:
//	  burst: 99
//	  count_per_period: 10
//	  period_seconds: 1
//	  enabled: true
//
//	policies:
//	  "/api/login":
//	    burst: 0
//	    count_per_period: 5
//	    period_seconds: 60
//	    enabled: true
//
//	key_extractor: "ip"
//	clock: "wall"
package ratecell
