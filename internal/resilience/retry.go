// Package resilience provides retry, circuit breaking and failed-job
// bookkeeping for calls to external services.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// Multiplier scales both backoff and attempt timeout after each attempt.
	Multiplier float64

	// JitterFraction adds ±fraction random jitter to each delay.
	JitterFraction float64

	// AttemptTimeout bounds the first attempt. Later attempts get
	// AttemptTimeout*Multiplier^n, capped at MaxAttemptTimeout. Zero disables
	// per-attempt deadlines.
	AttemptTimeout    time.Duration
	MaxAttemptTimeout time.Duration

	// ShouldRetry overrides IsTransient when set.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig matches the job provider's tolerance: five attempts,
// 5s doubling backoff and a 60s first-attempt timeout.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    5 * time.Second,
		MaxBackoff:        2 * time.Minute,
		Multiplier:        2.0,
		JitterFraction:    0.25,
		AttemptTimeout:    60 * time.Second,
		MaxAttemptTimeout: 16 * time.Minute,
	}
}

// Do executes fn with retry logic according to cfg.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal executes fn with retry logic and returns the value of the first
// successful attempt. Only errors accepted by ShouldRetry (IsTransient by
// default) are retried. Cancelling ctx stops immediately with the last error.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := range cfg.MaxAttempts {
		val, err := runAttempt(ctx, cfg.attemptTimeout(attempt), fn)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !shouldRetry(err) || attempt == cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err)
		}
		if !sleep(ctx, cfg.backoff(attempt)) {
			break
		}
	}
	return zero, lastErr
}

// runAttempt applies the per-attempt deadline. An attempt that dies on its own
// deadline, with the parent still alive, is reported as transient.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	val, err := fn(actx)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		err = NewTransientError(eris.Wrapf(err, "attempt timed out after %s", timeout), 0)
	}
	return val, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

func (cfg RetryConfig) attemptTimeout(attempt int) time.Duration {
	if cfg.AttemptTimeout <= 0 {
		return 0
	}
	d := time.Duration(float64(cfg.AttemptTimeout) * math.Pow(cfg.Multiplier, float64(attempt)))
	if cfg.MaxAttemptTimeout > 0 && d > cfg.MaxAttemptTimeout {
		d = cfg.MaxAttemptTimeout
	}
	return d
}

func (cfg RetryConfig) backoff(attempt int) time.Duration {
	delay := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt))
	delay = math.Min(delay, float64(cfg.MaxBackoff))
	if cfg.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * cfg.JitterFraction
	}
	return time.Duration(math.Max(delay, 0))
}

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
