package middleware

import "testing"

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	limiter := rl.getLimiter("1.2.3.4")
	for i := 0; i < 3; i++ {
		if !limiter.Allow() {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
}

func TestRateLimiterDeniesOverBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	limiter := rl.getLimiter("5.6.7.8")
	limiter.Allow()
	limiter.Allow()
	if limiter.Allow() {
		t.Fatal("third immediate request should exceed the burst")
	}
}

func TestRateLimiterSeparatesKeys(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	a := rl.getLimiter("10.0.0.1")
	b := rl.getLimiter("10.0.0.2")
	if !a.Allow() {
		t.Fatal("first key's first request should be allowed")
	}
	if !b.Allow() {
		t.Fatal("second key should have its own independent bucket")
	}
}
