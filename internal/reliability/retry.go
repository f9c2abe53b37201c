package reliability

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/glimte/unitbus/internal/clock"
)

// RetryPolicy decides whether a failed attempt is retried and after which delay.
// attempt counts from zero for the first retry.
type RetryPolicy interface {
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	MaxRetries() int
}

// ExponentialBackoff multiplies the delay after every attempt up to MaxInterval
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     int

	// Jitter spreads each delay by up to ±15%
	Jitter bool
}

// NewExponentialBackoff creates a policy with jitter enabled
func NewExponentialBackoff(initial, max time.Duration, multiplier float64, maxRetries int) *ExponentialBackoff {
	return &ExponentialBackoff{
		InitialInterval: initial,
		MaxInterval:     max,
		Multiplier:      multiplier,
		MaxAttempts:     maxRetries,
		Jitter:          true,
	}
}

func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= e.MaxAttempts || IsPermanent(err) {
		return false, 0
	}
	return true, e.NextDelay(attempt)
}

func (e *ExponentialBackoff) MaxRetries() int {
	return e.MaxAttempts
}

// NextDelay returns the delay before retry number attempt
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := float64(e.InitialInterval) * math.Pow(e.Multiplier, float64(attempt))
	if delay > float64(e.MaxInterval) {
		delay = float64(e.MaxInterval)
	}
	if e.Jitter {
		delay += (rand.Float64()*0.3 - 0.15) * delay
	}
	return time.Duration(delay)
}

// FixedDelay waits the same time before every retry
type FixedDelay struct {
	Delay       time.Duration
	MaxAttempts int
}

func NewFixedDelay(delay time.Duration, maxRetries int) *FixedDelay {
	return &FixedDelay{Delay: delay, MaxAttempts: maxRetries}
}

func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt >= f.MaxAttempts || IsPermanent(err) {
		return false, 0
	}
	return true, f.Delay
}

func (f *FixedDelay) MaxRetries() int {
	return f.MaxAttempts
}

// Retry calls fn until it succeeds, the policy gives up or ctx is done.
// Delays are measured with c. A policy giving up yields a *RetryError; a permanent
// error is returned unwrapped from its marker.
func Retry(ctx context.Context, c clock.Clock, policy RetryPolicy, fn func() error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}

		retry, delay := policy.ShouldRetry(attempt, err)
		if !retry {
			var p *permanentError
			if asPermanent(err, &p) {
				return p.err
			}
			return &RetryError{Attempts: attempt + 1, LastError: err}
		}

		if err := sleep(ctx, c, delay); err != nil {
			return err
		}
	}
}

func asPermanent(err error, target **permanentError) bool {
	p, ok := err.(*permanentError)
	if ok {
		*target = p
	}
	return ok
}

func sleep(ctx context.Context, c clock.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	wake := make(chan struct{})
	timer := c.AfterFunc(d, func() { close(wake) })
	defer timer.Stop()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
