package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config 重试配置. delay = Delay * attempt, 不超过 MaxDelay.
type Config struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig suits provider I/O calls such as balance queries.
func DefaultConfig() Config {
	return Config{
		Attempts: 3,
		Delay:    500 * time.Millisecond,
		MaxDelay: 5 * time.Second,
	}
}

// linearBackOff implements backoff.BackOff with a delay that grows by Delay per attempt.
type linearBackOff struct {
	delay    time.Duration
	maxDelay time.Duration
	attempt  int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	d := b.delay * time.Duration(b.attempt)
	if b.maxDelay > 0 && d > b.maxDelay {
		d = b.maxDelay
	}
	return d
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

func (c Config) backOff(ctx context.Context) backoff.BackOff {
	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.Delay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	b := backoff.WithMaxRetries(&linearBackOff{delay: delay, maxDelay: c.MaxDelay}, uint64(attempts-1))
	return backoff.WithContext(b, ctx)
}

func (c Config) notify() backoff.Notify {
	if c.OnRetry == nil {
		return nil
	}
	attempt := 0
	return func(err error, d time.Duration) {
		attempt++
		c.OnRetry(attempt, err, d)
	}
}

// Do runs op until it succeeds, returns a Permanent error, the attempts run
// out or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, op func() error) error {
	return backoff.RetryNotify(op, cfg.backOff(ctx), cfg.notify())
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	return backoff.RetryNotifyWithData(op, cfg.backOff(ctx), cfg.notify())
}

// Permanent stops the retry loop and returns err unwrapped to the caller.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
