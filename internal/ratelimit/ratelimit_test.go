package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiterAllow(t *testing.T) {
	limiter := New(Config{MinInterval: 100 * time.Millisecond, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if !limiter.Allow("weather") {
			t.Errorf("Request %d should be allowed (within burst)", i)
		}
	}

	if limiter.Allow("weather") {
		t.Error("Request after burst should be denied")
	}

	time.Sleep(150 * time.Millisecond)

	if !limiter.Allow("weather") {
		t.Error("Request after waiting should be allowed")
	}
}

func TestLimiterIndependentKeys(t *testing.T) {
	limiter := New(Config{MinInterval: time.Second, BurstSize: 1})

	limiter.Allow("speed_limit")
	if limiter.Allow("speed_limit") {
		t.Error("speed_limit should be rate limited")
	}
	if !limiter.Allow("traffic") {
		t.Error("traffic should not be rate limited")
	}
}

func TestLimiterSetInterval(t *testing.T) {
	limiter := New(DefaultConfig())
	limiter.SetInterval("weather", 0)

	for i := 0; i < 100; i++ {
		if !limiter.Allow("weather") {
			t.Fatalf("Request %d should be allowed with no interval", i)
		}
	}

	limiter.SetInterval("weather", time.Hour)
	limiter.Allow("weather")
	if limiter.Allow("weather") {
		t.Error("Request should be denied after tightening interval")
	}
}

func TestLimiterWaitSpacesCalls(t *testing.T) {
	limiter := New(Config{MinInterval: 50 * time.Millisecond, BurstSize: 1})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := limiter.Wait(ctx, "speed_limit"); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 calls at 50ms spacing took %v, want >= 100ms", elapsed)
	}
}

func TestLimiterWaitHonorsCancel(t *testing.T) {
	limiter := New(Config{MinInterval: time.Hour, BurstSize: 1})
	limiter.Allow("weather")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.Wait(ctx, "weather"); err == nil {
		t.Error("Wait should fail on a cancelled context")
	}
}
