package resilience

import "time"

// Breaker defaults shared by the api-football client and the
// review-queue publisher when their env settings are absent or junk.
const (
	defaultTripAfter   = 5
	defaultOpenFor     = 15 * time.Second
	defaultProbeBudget = 2
)

// CircuitBreakerConfig is the per-dependency breaker tuning carried on
// the client config structs. Zero values mean "use the default", so an
// empty struct is safe to pass.
type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	OpenTimeout      time.Duration
	HalfOpenMaxReq   int
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: defaultTripAfter,
		OpenTimeout:      defaultOpenFor,
		HalfOpenMaxReq:   defaultProbeBudget,
	}
}

// NormalizeCircuitBreakerConfig replaces out-of-range fields with the
// defaults. Enabled is left alone: a deliberately disabled breaker
// stays disabled.
func NormalizeCircuitBreakerConfig(cfg CircuitBreakerConfig) CircuitBreakerConfig {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = defaultTripAfter
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaultOpenFor
	}
	if cfg.HalfOpenMaxReq < 1 {
		cfg.HalfOpenMaxReq = defaultProbeBudget
	}
	return cfg
}
