package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestLimiter_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("c1"); err != nil {
			t.Fatalf("unlimited limiter denied request %d: %v", i, err)
		}
	}
	if l.Len() != 0 {
		t.Errorf("unlimited limiter should not track clients, got %d", l.Len())
	}
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})
	fixed := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		if err := l.Allow("c1"); err != nil {
			t.Fatalf("request %d denied: %v", i, err)
		}
	}
	if err := l.Allow("c1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	// Independent bucket per client.
	if err := l.Allow("c2"); err != nil {
		t.Fatalf("other client denied: %v", err)
	}

	// One token per second refills.
	fixed = fixed.Add(time.Second)
	if err := l.Allow("c1"); err != nil {
		t.Fatalf("expected refill after 1s: %v", err)
	}
}

func TestLimiter_Prune(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 10})
	fixed := time.Date(2025, 9, 7, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	_ = l.Allow("old")
	fixed = fixed.Add(20 * time.Minute)
	_ = l.Allow("fresh")

	if n := l.Prune(10 * time.Minute); n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}
