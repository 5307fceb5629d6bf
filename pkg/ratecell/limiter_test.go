package ratecell

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, clock *fakeClock, quota Quota) RateLimiter {
	t.Helper()
	limiter, err := NewRateLimiter(
		WithQuota(quota),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}
	return limiter
}

func TestNewRateLimiter(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{
			name:    "default rate limiter",
			opts:    nil,
			wantErr: false,
		},
		{
			name: "with quota option",
			opts: []Option{
				WithQuota(Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1}),
			},
			wantErr: false,
		},
		{
			name: "with config option",
			opts: []Option{
				WithConfig(NewConfig()),
			},
			wantErr: false,
		},
		{
			name: "multiple options",
			opts: []Option{
				WithQuota(Quota{Burst: 5, CountPerPeriod: 1, PeriodSeconds: 1}),
				WithKeyExtractor(ExtractIP()),
				WithClock(&fakeClock{now: 1}),
				WithCleanupInterval(time.Minute),
			},
			wantErr: false,
		},
		{
			name: "invalid quota (negative burst)",
			opts: []Option{
				WithQuota(Quota{Burst: -1, CountPerPeriod: 10, PeriodSeconds: 1}),
			},
			wantErr: true,
		},
		{
			name: "invalid quota (zero rate)",
			opts: []Option{
				WithQuota(Quota{Burst: 2, CountPerPeriod: 0, PeriodSeconds: 1}),
			},
			wantErr: true,
		},
		{
			name: "nil config",
			opts: []Option{
				WithConfig(nil),
			},
			wantErr: true,
		},
		{
			name: "nil store",
			opts: []Option{
				WithStore(nil),
			},
			wantErr: true,
		},
		{
			name: "nil clock",
			opts: []Option{
				WithClock(nil),
			},
			wantErr: true,
		},
		{
			name: "nil key extractor",
			opts: []Option{
				WithKeyExtractor(nil),
			},
			wantErr: true,
		},
		{
			name: "negative cleanup interval",
			opts: []Option{
				WithCleanupInterval(-time.Second),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := NewRateLimiter(tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Error("NewRateLimiter() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("NewRateLimiter() unexpected error: %v", err)
				return
			}
			if limiter == nil {
				t.Fatal("NewRateLimiter() returned nil limiter")
			}
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	clock := &fakeClock{now: int64(time.Hour)}
	limiter := newTestLimiter(t, clock, Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1})
	ctx := context.Background()

	// First three requests at the same instant are admitted.
	for i, want := range []int64{2, 1, 0} {
		decision, err := limiter.Allow(ctx, "testkey")
		if err != nil {
			t.Fatalf("Allow() unexpected error: %v", err)
		}
		if decision.Limited {
			t.Errorf("request %d should be admitted", i+1)
		}
		if decision.Limit != 3 {
			t.Errorf("decision.Limit = %d, want 3", decision.Limit)
		}
		if decision.Remaining != want {
			t.Errorf("request %d Remaining = %d, want %d", i+1, decision.Remaining, want)
		}
		if decision.RetryAfter != -1 {
			t.Errorf("admitted request RetryAfter = %d, want -1", decision.RetryAfter)
		}
	}

	// The fourth is denied with a sub-second retry hint.
	decision, err := limiter.Allow(ctx, "testkey")
	if err != nil {
		t.Fatalf("Allow() unexpected error: %v", err)
	}
	if !decision.Limited {
		t.Error("fourth request should be denied")
	}
	if decision.RetryAfter != 0 {
		t.Errorf("RetryAfter = %d, want 0 (deficit below one second)", decision.RetryAfter)
	}
	if decision.TTL != 0 {
		t.Errorf("TTL = %d, want 0 (300ms backlog truncates)", decision.TTL)
	}

	// After one emission interval a slot opens again.
	clock.advance(100 * time.Millisecond)
	decision, err = limiter.Allow(ctx, "testkey")
	if err != nil {
		t.Fatalf("Allow() unexpected error: %v", err)
	}
	if decision.Limited {
		t.Error("request after one emission interval should be admitted")
	}
}

func TestRateLimiter_DeniedDoesNotMutate(t *testing.T) {
	clock := &fakeClock{now: int64(time.Hour)}
	store := NewInMemoryStore(clock)
	limiter, err := NewRateLimiter(
		WithQuota(Quota{Burst: 0, CountPerPeriod: 1, PeriodSeconds: 60}),
		WithClock(clock),
		WithStore(store),
	)
	if err != nil {
		t.Fatalf("NewRateLimiter() failed: %v", err)
	}
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "k"); err != nil {
		t.Fatalf("Allow() failed: %v", err)
	}
	before, _ := store.Peek(ctx, "k")

	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(ctx, "k")
		if err != nil {
			t.Fatalf("Allow() failed: %v", err)
		}
		if !decision.Limited {
			t.Fatal("request should be denied")
		}
	}

	after, _ := store.Peek(ctx, "k")
	if after != before {
		t.Errorf("denied requests moved the stored arrival: %d -> %d", before, after)
	}
}

func TestRateLimiter_ProbeNeutrality(t *testing.T) {
	// The same sequence of real calls, with and without interleaved
	// probes, must produce identical verdicts; probes are never denied.
	quota := Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1}
	steps := []time.Duration{0, 30 * time.Millisecond, 0, 150 * time.Millisecond, 10 * time.Millisecond, 0, 500 * time.Millisecond}

	run := func(withProbes bool) []Decision {
		clock := &fakeClock{now: int64(time.Hour)}
		limiter := newTestLimiter(t, clock, quota)
		ctx := context.Background()

		var out []Decision
		for _, step := range steps {
			clock.advance(step)
			if withProbes {
				probe, err := limiter.AllowN(ctx, "k", 0)
				if err != nil {
					t.Fatalf("probe failed: %v", err)
				}
				if probe.Limited {
					t.Error("probe must never be denied")
				}
			}
			decision, err := limiter.Allow(ctx, "k")
			if err != nil {
				t.Fatalf("Allow() failed: %v", err)
			}
			out = append(out, *decision)
		}
		return out
	}

	plain := run(false)
	probed := run(true)
	for i := range plain {
		if plain[i] != probed[i] {
			t.Errorf("step %d: probes changed the verdict: %+v vs %+v", i, plain[i], probed[i])
		}
	}
}

func TestRateLimiter_AllowQuota_Validation(t *testing.T) {
	clock := &fakeClock{now: int64(time.Hour)}
	limiter := newTestLimiter(t, clock, Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1})
	ctx := context.Background()
	valid := Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1}

	tests := []struct {
		name        string
		key         string
		quota       Quota
		cost        int64
		expectedErr error
	}{
		{
			name:        "empty key",
			key:         "",
			quota:       valid,
			cost:        1,
			expectedErr: ErrInvalidKey,
		},
		{
			name:        "negative cost",
			key:         "k",
			quota:       valid,
			cost:        -1,
			expectedErr: ErrInvalidCost,
		},
		{
			name:        "negative burst",
			key:         "k",
			quota:       Quota{Burst: -1, CountPerPeriod: 10, PeriodSeconds: 1},
			cost:        1,
			expectedErr: ErrInvalidBurst,
		},
		{
			name:        "zero rate",
			key:         "k",
			quota:       Quota{Burst: 2, CountPerPeriod: 0, PeriodSeconds: 1},
			cost:        1,
			expectedErr: ErrInvalidRate,
		},
		{
			name:        "zero period",
			key:         "k",
			quota:       Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 0},
			cost:        1,
			expectedErr: ErrInvalidPeriod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := limiter.AllowQuota(ctx, tt.key, tt.quota, tt.cost)
			if !errors.Is(err, tt.expectedErr) {
				t.Errorf("AllowQuota() error = %v, want %v", err, tt.expectedErr)
			}
		})
	}
}

func TestRateLimiter_OversizedCostNeverAdmissible(t *testing.T) {
	clock := &fakeClock{now: int64(time.Hour)}
	limiter := newTestLimiter(t, clock, Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1})
	ctx := context.Background()

	decision, err := limiter.AllowN(ctx, "k", 10)
	if err != nil {
		t.Fatalf("AllowN() failed: %v", err)
	}
	if !decision.Limited {
		t.Error("oversized cost should be denied")
	}
	if decision.RetryAfter != -1 {
		t.Errorf("RetryAfter = %d, want -1 sentinel", decision.RetryAfter)
	}
}

func TestRateLimiter_RetryAfterSeconds(t *testing.T) {
	// One admission per minute: a denied retry hint is reported in whole
	// seconds of real waiting time.
	clock := &fakeClock{now: int64(time.Hour)}
	limiter := newTestLimiter(t, clock, Quota{Burst: 0, CountPerPeriod: 1, PeriodSeconds: 60})
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "k"); err != nil {
		t.Fatalf("Allow() failed: %v", err)
	}

	decision, err := limiter.Allow(ctx, "k")
	if err != nil {
		t.Fatalf("Allow() failed: %v", err)
	}
	if !decision.Limited {
		t.Fatal("second request within the minute should be denied")
	}
	if decision.RetryAfter != 60 {
		t.Errorf("RetryAfter = %d, want 60", decision.RetryAfter)
	}
	if decision.TTL != 60 {
		t.Errorf("TTL = %d, want 60", decision.TTL)
	}
}

func TestRateLimiter_BucketExpiresToFresh(t *testing.T) {
	clock := &fakeClock{now: int64(time.Hour)}
	limiter := newTestLimiter(t, clock, Quota{Burst: 2, CountPerPeriod: 10, PeriodSeconds: 1})
	ctx := context.Background()

	// Exhaust the burst.
	for i := 0; i < 3; i++ {
		if _, err := limiter.Allow(ctx, "k"); err != nil {
			t.Fatalf("Allow() failed: %v", err)
		}
	}

	// Past the full tolerance the bucket reads as brand new.
	clock.advance(time.Second)
	decision, err := limiter.Allow(ctx, "k")
	if err != nil {
		t.Fatalf("Allow() failed: %v", err)
	}
	if decision.Limited || decision.Remaining != 2 {
		t.Errorf("fresh-again bucket: limited=%v remaining=%d, want admitted with 2", decision.Limited, decision.Remaining)
	}
}
