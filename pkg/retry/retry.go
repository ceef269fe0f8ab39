// Package retry provides bounded exponential backoff with jitter for
// transient infrastructure failures. Only the orchestration layer retries;
// state-machine transitions never do.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"cosmossdk.io/log"
)

// Config holds the retry policy.
type Config struct {
	MaxAttempts   int             // Maximum number of attempts (including the first)
	InitialDelay  time.Duration   // Delay before the second attempt
	MaxDelay      time.Duration   // Upper bound for the backoff delay
	BackoffFactor float64         // Multiplier applied to the delay per attempt
	JitterFactor  float64         // Fraction of the delay added as random jitter
	ShouldRetry   func(error) bool // Predicate deciding whether an error is retryable
}

// DefaultConfig returns the policy used by the orchestrator: five attempts,
// 100ms initial delay doubling up to 5s, 20% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("MaxAttempts must be >= 1")
	}
	if c.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if c.MaxDelay < c.InitialDelay {
		return errors.New("MaxDelay must be >= InitialDelay")
	}
	if c.BackoffFactor < 1.0 {
		return errors.New("BackoffFactor must be >= 1.0")
	}
	if c.JitterFactor < 0 || c.JitterFactor > 1.0 {
		return errors.New("JitterFactor must be in [0, 1]")
	}
	return nil
}

func (c Config) nextDelay(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * c.BackoffFactor)
	if next > c.MaxDelay {
		next = c.MaxDelay
	}
	return next
}

func (c Config) withJitter(d time.Duration) time.Duration {
	if c.JitterFactor <= 0 {
		return d
	}
	return d + time.Duration(c.JitterFactor*float64(d)*rand.Float64())
}

// Do runs op until it succeeds, the attempt budget is exhausted, the context
// is cancelled, or ShouldRetry rejects the error.
func Do(ctx context.Context, cfg Config, logger log.Logger, name string, op func() error) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid retry config: %w", err)
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := cfg.withJitter(delay)
		logger.Warn("retrying operation",
			"op", name,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"delay", sleep.String(),
			"error", lastErr.Error(),
		)

		select {
		case <-time.After(sleep):
			delay = cfg.nextDelay(delay)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", name, cfg.MaxAttempts, lastErr)
}
