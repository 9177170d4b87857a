// Package backoff provides exponential backoff utilities for retry logic.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Factor is the exponential factor applied per attempt.
	Factor float64
	// Max caps the computed delay. Zero means no cap.
	Max time.Duration
	// Jitter is the randomization factor (0.0 to 1.0) applied to the delay.
	Jitter float64
}

// Delay calculates the backoff duration for a given attempt number.
// The formula is: base = initial * factor^attempt, jitter = base * jitter * random().
// Attempt numbers start at 0 (the delay before the first retry).
func Delay(policy Policy, attempt int) time.Duration {
	return DelayWithRand(policy, attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand calculates the backoff duration using a provided random value,
// which keeps tests deterministic. randomValue should be in [0.0, 1.0).
func DelayWithRand(policy Policy, attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt), 0)
	base := float64(policy.Initial) * math.Pow(policy.Factor, exp)
	total := base + base*policy.Jitter*randomValue
	if policy.Max > 0 {
		total = math.Min(total, float64(policy.Max))
	}
	return time.Duration(math.Round(total))
}

// DefaultPolicy returns the retry policy used for LLM transport errors.
// Initial: 1s, Factor: 2, no cap, no jitter.
func DefaultPolicy() Policy {
	return Policy{
		Initial: time.Second,
		Factor:  2,
	}
}
