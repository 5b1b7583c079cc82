// Package retry provides exponential backoff for transient failures.
// The chat engine uses it around snapshot persistence, where a blip in
// the backing store should not cost a save cycle.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config configures retry behavior. Zero backoff fields fall back to
// defaults; a zero MaxRetries executes fn exactly once.
type Config struct {
	// MaxRetries is the number of retry attempts after the first try.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration.
	MaxBackoff time.Duration

	// Multiplier increases backoff after each retry.
	Multiplier float64

	// Jitter randomizes backoff between 0 (none) and 1 (+/- 100%).
	Jitter float64

	// IsRetryable decides whether an error is worth retrying. Nil means
	// every error is retried.
	IsRetryable func(error) bool
}

// DefaultConfig returns the configuration used when fields are zero.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
	}
}

var (
	// ErrNotRetryable marks errors that stop the retry loop immediately.
	ErrNotRetryable = errors.New("retry: error is not retryable")

	// ErrMaxRetries is returned when every attempt failed.
	ErrMaxRetries = errors.New("retry: max retries exceeded")
)

// Do executes fn, retrying transient failures with exponential backoff.
// The context bounds the whole loop including backoff sleeps.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = applyDefaults(cfg)

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return &Error{Cause: lastErr, Attempts: attempt, Err: err}
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !cfg.IsRetryable(err) {
			return &Error{Cause: err, Attempts: attempt + 1, Err: ErrNotRetryable}
		}

		if attempt < cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return &Error{Cause: lastErr, Attempts: attempt + 1, Err: ctx.Err()}
			case <-time.After(backoff(cfg, attempt)):
			}
		}
	}

	return &Error{Cause: lastErr, Attempts: cfg.MaxRetries + 1, Err: ErrMaxRetries}
}

// Error reports why the retry loop gave up.
type Error struct {
	Cause    error // last error returned by the function
	Attempts int   // attempts made
	Err      error // ErrMaxRetries, ErrNotRetryable, or a context error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retry failed after %d attempts (%s): %s", e.Attempts, e.Err, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target) || errors.Is(e.Cause, target)
}

func backoff(cfg Config, attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		spread := d * cfg.Jitter
		d = d - spread + rand.Float64()*2*spread
	}
	return time.Duration(d)
}

func applyDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}
	if cfg.IsRetryable == nil {
		cfg.IsRetryable = func(err error) bool {
			return !errors.Is(err, ErrNotRetryable)
		}
	}
	return cfg
}
