package backoff

import (
	"context"
	"time"
)

// Calculator pairs a Strategy with a context-aware wait.
type Calculator struct {
	strategy Strategy
}

// NewCalculator creates a new backoff calculator with the specified strategy.
func NewCalculator(strategy Strategy) *Calculator {
	return &Calculator{
		strategy: strategy,
	}
}

// Default returns a calculator using ExponentialJitterStrategy capped at DefaultCap.
func Default() *Calculator {
	return NewCalculator(ExponentialJitterStrategy{Cap: DefaultCap})
}

// Calculate delegates to the configured strategy.
func (c *Calculator) Calculate(attempt int, base time.Duration) time.Duration {
	return c.strategy.Calculate(attempt, base)
}

// Wait blocks for the delay of the given attempt. It returns early with the
// context error when ctx ends first.
func (c *Calculator) Wait(ctx context.Context, attempt int, base time.Duration) (time.Duration, error) {
	d := c.Calculate(attempt, base)
	return d, Sleep(ctx, d)
}

// SetStrategy updates the backoff strategy used by this calculator.
func (c *Calculator) SetStrategy(strategy Strategy) {
	c.strategy = strategy
}

// Strategy returns the current strategy.
func (c *Calculator) Strategy() Strategy {
	return c.strategy
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
