package pool

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// backoffMultiplier grows the delay between attempts.
const backoffMultiplier = 2.0

// sleepBackoff waits for d with ±20% jitter, returning early on cancellation.
// A zero duration returns immediately.
func sleepBackoff(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry backoff: %w", err)
		}
		return nil
	}

	jitter := time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))

	timer := time.NewTimer(jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// nextBackoff returns the exponentially grown delay, capped at limit.
func nextBackoff(d, limit time.Duration) time.Duration {
	next := time.Duration(float64(d) * backoffMultiplier)
	if next > limit {
		return limit
	}
	return next
}
