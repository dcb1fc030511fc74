// Package retry wraps retry-go with exponential backoff and a
// context-bounded attempt budget.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Jitter adds up to this much random delay on top of the backoff.
	Jitter time.Duration

	// RetryIf decides whether an error is worth another attempt. Nil retries everything.
	RetryIf func(error) bool
	// OnRetry is called before each new attempt with the failed attempt number.
	OnRetry func(attempt uint, err error)
}

func (c Config) options(ctx context.Context) []retry.Option {
	delay := retry.DelayType(retry.BackOffDelay)
	if c.Jitter > 0 {
		delay = retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay))
	}
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.MaxAttempts),
		retry.Delay(c.InitialDelay),
		retry.MaxDelay(c.MaxDelay),
		retry.MaxJitter(c.Jitter),
		delay,
		retry.LastErrorOnly(true),
	}
	if c.RetryIf != nil {
		opts = append(opts, retry.RetryIf(c.RetryIf))
	}
	if c.OnRetry != nil {
		opts = append(opts, retry.OnRetry(c.OnRetry))
	}
	return opts
}

// Do runs fn until it succeeds, the attempts run out, RetryIf rejects the
// error or ctx is done. Only the last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	return retry.Do(fn, cfg.options(ctx)...)
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	return retry.DoWithData(fn, cfg.options(ctx)...)
}
