package chat

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d must be allowed", i)
		}
	}
	if rl.Allow(now) {
		t.Fatal("event over the limit must be denied")
	}
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Second)
	now := time.Now()

	if !rl.Allow(now) || !rl.Allow(now) {
		t.Fatal("first two events must pass")
	}
	if rl.Allow(now.Add(500 * time.Millisecond)) {
		t.Fatal("third event inside the window must be denied")
	}
	if !rl.Allow(now.Add(1100 * time.Millisecond)) {
		t.Fatal("event after the window must pass")
	}
}

func TestRateLimiter_ExpiredEventsFreeCapacity(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	now := time.Now()

	for _, off := range []time.Duration{0, 100 * time.Millisecond, 900 * time.Millisecond} {
		if !rl.Allow(now.Add(off)) {
			t.Fatalf("event at +%v must be allowed", off)
		}
	}
	if rl.Allow(now.Add(950 * time.Millisecond)) {
		t.Fatal("full window must deny")
	}

	// The two oldest stamps fall out of the window; their slots come back.
	at := now.Add(1100 * time.Millisecond)
	if !rl.Allow(at) || !rl.Allow(at) {
		t.Fatal("expired events must free capacity")
	}
	if rl.Allow(at) {
		t.Fatal("window refilled, next event must be denied")
	}
}

func TestRateLimiter_DefaultsOnInvalidInput(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if !rl.Allow(time.Now()) {
		t.Fatal("limiter with defaults must allow first event")
	}
}
