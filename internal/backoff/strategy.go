package backoff

import (
	"math/rand/v2"
	"time"
)

const (
	// DefaultCap bounds every computed delay.
	DefaultCap = 8 * time.Second

	// MinJitter and MaxJitter bound the multiplicative jitter factor, [MinJitter, MaxJitter).
	MinJitter = 0.8
	MaxJitter = 1.2
)

// Strategy defines the interface for backoff calculation algorithms.
type Strategy interface {
	// Calculate returns the wait before the retry that follows the given
	// zero-based attempt.
	Calculate(attempt int, base time.Duration) time.Duration
}

// ExponentialJitterStrategy computes min(base × 2^attempt × jitter, Cap) where
// jitter is drawn uniformly from [MinJitter, MaxJitter). It keeps no state, so
// one value may be shared by any number of concurrent callers.
type ExponentialJitterStrategy struct {
	// Cap defaults to DefaultCap when zero.
	Cap time.Duration

	// Rand returns a float in [0, 1). Nil uses math/rand/v2.
	Rand func() float64
}

// Calculate implements the Strategy interface.
func (s ExponentialJitterStrategy) Calculate(attempt int, base time.Duration) time.Duration {
	limit := s.Cap
	if limit <= 0 {
		limit = DefaultCap
	}
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	r := rand.Float64
	if s.Rand != nil {
		r = s.Rand
	}
	jitter := MinJitter + r()*(MaxJitter-MinJitter)

	delay := float64(base) * pow(2, attempt) * jitter
	if delay < 0 || delay > float64(limit) {
		return limit
	}
	return time.Duration(delay)
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
