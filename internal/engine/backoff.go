package engine

import (
	"math"
	"time"
	"zephyr/internal/crypto/random"
)

// Resend policy for tracked notices whose acknowledgement does not arrive.
// Retries 0 reports the first timeout to the caller.
type RetryPolicy struct {
	Retries      int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Delay before retry attempt N (1-based)
func (policy RetryPolicy) nextDelay(attempt int) time.Duration {
	if policy.InitialDelay <= 0 {
		return 0
	}
	multiplier := max(policy.Multiplier, 1.0)

	delay := float64(policy.InitialDelay)
	if attempt > 1 {
		delay *= math.Pow(multiplier, float64(attempt-1))
	}
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		delay = float64(policy.MaxDelay)
	}
	if policy.Jitter {
		// Spread over [0.5, 1.5) of the nominal delay
		half := time.Duration(delay / 2)
		return half + random.Jitter(time.Duration(delay))
	}
	return time.Duration(delay)
}
