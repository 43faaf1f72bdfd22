package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Delay(t *testing.T) {
	l := NewLimiter(200 * time.Millisecond)

	cases := []struct {
		name      string
		remaining int
		want      time.Duration
	}{
		{"unknown quota uses base delay", UnknownQuota, 200 * time.Millisecond},
		{"comfortable quota", 50, 0},
		{"just above comfortable", 11, 0},
		{"low quota", 8, 2 * time.Second},
		{"critical quota", 3, 5 * time.Second},
		{"near exhausted", 2, 10 * time.Second},
		{"exhausted", 0, 10 * time.Second},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := l.Delay(tc.remaining); got != tc.want {
				t.Fatalf("Delay(%d) = %v, want %v", tc.remaining, got, tc.want)
			}
		})
	}
}

func TestLimiter_ThrottleSkipsZeroDelay(t *testing.T) {
	l := NewLimiter(0)
	slept := false
	l.sleep = func(context.Context, time.Duration) { slept = true }

	l.Throttle(context.Background(), 100)
	if slept {
		t.Fatalf("expected no sleep with comfortable quota")
	}

	l.Throttle(context.Background(), 1)
	if !slept {
		t.Fatalf("expected sleep with exhausted quota")
	}
}

func TestLimiter_ThrottleHonorsContext(t *testing.T) {
	l := NewLimiter(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	l.Throttle(ctx, 0)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("throttle did not return early on cancelled context, took %v", elapsed)
	}
}
