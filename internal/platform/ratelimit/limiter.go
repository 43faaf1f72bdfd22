package ratelimit

import (
	"context"
	"time"
)

const (
	// Remaining-quota thresholds reported by the provider plan.
	quotaComfortable = 10
	quotaLow         = 5
	quotaCritical    = 2

	delayLow      = 2 * time.Second
	delayCritical = 5 * time.Second
	delayExhaust  = 10 * time.Second

	// UnknownQuota marks a response that carried no quota hint.
	UnknownQuota = -1

	defaultBaseDelay = 200 * time.Millisecond
)

// Limiter throttles upstream calls from the remaining-quota hint the
// provider sends back with each response. It only ever sleeps; in the
// worst case it over-throttles.
type Limiter struct {
	baseDelay time.Duration
	sleep     func(context.Context, time.Duration)
}

func NewLimiter(baseDelay time.Duration) *Limiter {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Limiter{
		baseDelay: baseDelay,
		sleep:     sleepContext,
	}
}

// Delay maps a remaining-quota hint to a pause. Pass UnknownQuota when the
// response carried no hint.
func (l *Limiter) Delay(remaining int) time.Duration {
	switch {
	case remaining == UnknownQuota:
		return l.baseDelay
	case remaining > quotaComfortable:
		return 0
	case remaining > quotaLow:
		return delayLow
	case remaining > quotaCritical:
		return delayCritical
	default:
		return delayExhaust
	}
}

// Throttle blocks for the delay derived from the hint. It returns early
// when the context is cancelled and never reports an error.
func (l *Limiter) Throttle(ctx context.Context, remaining int) {
	delay := l.Delay(remaining)
	if delay <= 0 {
		return
	}
	l.sleep(ctx, delay)
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
