package server

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterLoginBuckets(t *testing.T) {
	t.Parallel()

	rl, err := newRateLimiter(RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute})
	if err != nil {
		t.Fatalf("newRateLimiter: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.AllowLogin(ctx, "198.51.100.1")
		if err != nil {
			t.Fatalf("AllowLogin attempt %d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("attempt %d unexpectedly throttled", i+1)
		}
	}

	allowed, retryAfter, err := rl.AllowLogin(ctx, "198.51.100.1")
	if err != nil {
		t.Fatalf("AllowLogin: %v", err)
	}
	if allowed {
		t.Fatal("third attempt should be throttled")
	}
	if retryAfter <= 0 {
		t.Fatalf("retryAfter = %v, want positive", retryAfter)
	}

	// A different client keeps its own budget.
	allowed, _, err = rl.AllowLogin(ctx, "198.51.100.2")
	if err != nil {
		t.Fatalf("AllowLogin for second client: %v", err)
	}
	if !allowed {
		t.Fatal("second client should not be throttled")
	}
}

func TestRateLimiterDisabledByDefault(t *testing.T) {
	t.Parallel()

	rl, err := newRateLimiter(RateLimitConfig{})
	if err != nil {
		t.Fatalf("newRateLimiter: %v", err)
	}
	if !rl.AllowRequest() {
		t.Fatal("global limit should be disabled")
	}
	allowed, _, err := rl.AllowLogin(context.Background(), "anyone")
	if err != nil || !allowed {
		t.Fatalf("login limit should be disabled: allowed=%v err=%v", allowed, err)
	}
}

func TestTokenBucketRefill(t *testing.T) {
	t.Parallel()

	bucket := newTokenBucket(1000, 1)
	if !bucket.Allow() {
		t.Fatal("first take should succeed")
	}
	if bucket.Allow() {
		t.Fatal("bucket should be empty")
	}
	time.Sleep(5 * time.Millisecond)
	if !bucket.Allow() {
		t.Fatal("bucket should have refilled")
	}
}
