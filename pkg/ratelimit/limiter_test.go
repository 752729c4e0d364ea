package ratelimit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestTokenBucket_Allow(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(5, 1.0, clock.Now)

	// Burst capacity
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	if tb.Allow() {
		t.Error("6th request should be denied")
	}

	clock.Advance(2 * time.Second)

	if !tb.Allow() {
		t.Error("Request after 2s should be allowed")
	}
	if !tb.Allow() {
		t.Error("2nd request after 2s should be allowed")
	}
	if tb.Allow() {
		t.Error("3rd request after 2s should be denied")
	}
}

func TestTokenBucket_RetryAfter(t *testing.T) {
	clock := newFakeClock()
	tb := newTokenBucket(1, 0.5, clock.Now)

	if got := tb.RetryAfter(); got != 0 {
		t.Errorf("Full bucket should not ask to wait, got %v", got)
	}
	tb.Allow()
	if got := tb.RetryAfter(); got != 2*time.Second {
		t.Errorf("Expected 2s wait, got %v", got)
	}
	clock.Advance(time.Second)
	if got := tb.RetryAfter(); got != time.Second {
		t.Errorf("Expected 1s wait, got %v", got)
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	tb := NewTokenBucket(3, 0.001)

	for i := 0; i < 3; i++ {
		tb.Allow()
	}
	if tb.Allow() {
		t.Error("Bucket should be empty")
	}

	tb.Reset()

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Errorf("Request %d should be allowed after reset", i+1)
		}
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(2, 0.001, 0)
	defer rl.Close()

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("First two requests should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("Third request for the same key should be denied")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("Other keys must have their own bucket")
	}

	rl.Reset("10.0.0.1")
	if !rl.Allow("10.0.0.1") {
		t.Error("Key should be allowed after reset")
	}

	if stats := rl.GetStats(); stats.ActiveBuckets != 2 {
		t.Errorf("Expected 2 active buckets, got %d", stats.ActiveBuckets)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	clock := newFakeClock()
	rl := &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   1,
		refillRate: 1,
		ttl:        time.Minute,
		now:        clock.Now,
		stop:       make(chan struct{}),
	}

	rl.Allow("old")
	clock.Advance(2 * time.Minute)
	rl.Allow("fresh")
	rl.cleanup()

	if _, ok := rl.buckets["old"]; ok {
		t.Error("Idle bucket should be removed")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("Recently used bucket should be kept")
	}
}
