package jobs

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy computes the delay before retry attempt n (1-indexed).
// Strategies are stateless and safe for concurrent use.
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles the delay each attempt:
// Delay = min(Base * 2^(attempt-1), Max).
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns Base * 2^(attempt-1), capped at Max.
func (e *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// JitteredBackoff applies full jitter to an exponential base:
// Delay = random value in [0, min(Base * 2^(attempt-1), Max)].
// This prevents thundering-herd re-claims when many retries land at once.
type JitteredBackoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns a random duration in [0, min(Base * 2^(attempt-1), Max)].
func (j *JitteredBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	ceiling := float64(j.Base) * math.Pow(2, float64(attempt-1))
	if j.Max > 0 && ceiling > float64(j.Max) {
		ceiling = float64(j.Max)
	}
	return time.Duration(rand.Float64() * ceiling)
}

// DefaultBackoff is the retry strategy used when none is configured.
func DefaultBackoff() BackoffStrategy {
	return &JitteredBackoff{Base: time.Second, Max: time.Minute}
}
