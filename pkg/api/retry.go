package api

import "time"

// RetryPolicy controls how the executor retries a step action on transient
// failure. MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// InitialBackoff is the delay before the first retry; each subsequent retry
// multiplies the delay by BackoffMultiplier (default 2.0 if <= 0), capped at
// MaxBackoff when it is > 0.
//
// Permanent errors (see Permanent / IsPermanent) are never retried,
// regardless of policy.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryPolicy is used by the executor when no policy is configured:
// up to 3 attempts with exponential backoff starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}
