package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/phenoclass/conceptor/internal/llm"
)

// RetryPolicy retries rate-limited calls with exponential backoff. Only
// rate-limit-class errors are retried; everything else propagates on the
// first failure. When attempts are exhausted the original error is
// returned.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// Do runs fn up to MaxAttempts times. The backoff sleep suspends only the
// calling goroutine; sibling workers continue unaffected.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !llm.IsRateLimit(err) || attempt >= maxAttempts {
			return err
		}

		logger.Warn("rate limited, backing off",
			"op", op, "wait", delay, "attempt", attempt, "max_attempts", maxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * multiplier)
	}
}
