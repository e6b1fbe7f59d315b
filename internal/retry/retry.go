// Package retry provides exponential backoff retry logic for database and
// external API calls.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	herrors "github.com/svcdesk/helpdesk-bot/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      bool

	// OnRetry, if set, is called before each backoff wait. Used for
	// retry metrics; must not block.
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns sensible retry defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
}

// Do executes fn with exponential backoff. Only retries if the error is
// retryable; permanent errors and exhausted attempts surface to the caller.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !herrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}

		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(multiplier, float64(attempt)))
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		if cfg.Jitter {
			delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
