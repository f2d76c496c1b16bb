// pantry/retry/retry.go
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Config bounds a retry loop.
type Config struct {
	// MaxAttempts counts the first call. Values < 1 mean 1.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter is the fraction (0..1) of each delay that is randomized.
	Jitter float64

	// RetryIf reports whether err is worth another attempt. Nil retries
	// everything except Permanent errors.
	RetryIf func(error) bool
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Attempts returns a Config that makes exactly n attempts with a short,
// fixed pause between them.
func Attempts(n int, delay time.Duration) Config {
	return Config{MaxAttempts: n, InitialDelay: delay, MaxDelay: delay, Multiplier: 1}
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx ends. The last fn error wins over ctx.Err().
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult is Do for functions that return a value. On failure it
// returns the zero T with the last error.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = withDefaults(cfg)

	var zero T
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts || !cfg.RetryIf(err) {
			return zero, unwrapPermanent(err)
		}

		wait := addJitter(delay, cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, unwrapPermanent(lastErr)
		case <-t.C:
		}

		delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
	}
}

func withDefaults(cfg Config) Config {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay < 0 {
		cfg.InitialDelay = 0
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		cfg.Jitter = 0
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = func(err error) bool { return !IsPermanent(err) }
	}
	return cfg
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter == 0 || d <= 0 {
		return d
	}
	spread := float64(d) * jitter
	return time.Duration(float64(d) - spread + rand.Float64()*2*spread)
}

// Permanent marks an error that must not be retried, such as a 4xx
// answer from a backend.
type Permanent struct {
	Err error
}

// Error returns the wrapped error's text.
func (p *Permanent) Error() string { return p.Err.Error() }

// Unwrap returns the wrapped error.
func (p *Permanent) Unwrap() error { return p.Err }

// PermanentError wraps err so Do stops immediately. Do returns the
// unwrapped error to its caller.
func PermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &Permanent{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked with
// PermanentError.
func IsPermanent(err error) bool {
	var p *Permanent
	return errors.As(err, &p)
}

func unwrapPermanent(err error) error {
	var p *Permanent
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}
