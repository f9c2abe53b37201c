package interceptors

import (
	"errors"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/internal/clock"
	"github.com/glimte/unitbus/internal/reliability"
	"github.com/glimte/unitbus/messaging"
)

// RetryInterceptor calls the handler again while it fails and the policy allows it.
// Handlers mark errors that must not be retried with reliability.Permanent.
type RetryInterceptor struct {
	policy reliability.RetryPolicy
	clock  clock.Clock
}

// NewRetryInterceptor creates a retry interceptor
func NewRetryInterceptor(policy reliability.RetryPolicy) *RetryInterceptor {
	return &RetryInterceptor{policy: policy, clock: clock.Real{}}
}

// WithClock sets the clock measuring the delays between attempts
func (r *RetryInterceptor) WithClock(c clock.Clock) *RetryInterceptor {
	r.clock = c
	return r
}

func (r *RetryInterceptor) Intercept(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
	attempt := 0
	return reliability.Retry(ctx.Context(), r.clock, r.policy, func() error {
		if attempt > 0 {
			ctx.Logger().Warn("retrying message", "attempt", attempt)
		}
		attempt++
		return next(ctx, msg)
	})
}

func (r *RetryInterceptor) Name() string {
	return "RetryInterceptor"
}

// CircuitBreakerInterceptor stops calling the handler while its breaker is open.
// Rejected messages are reported as handler errors unless a RejectFunc answers them.
type CircuitBreakerInterceptor struct {
	breaker *reliability.CircuitBreaker
	reject  RejectFunc
}

func NewCircuitBreakerInterceptor(breaker *reliability.CircuitBreaker) *CircuitBreakerInterceptor {
	return &CircuitBreakerInterceptor{breaker: breaker}
}

// WithRejection passes messages refused by the breaker to reject
func (i *CircuitBreakerInterceptor) WithRejection(reject RejectFunc) *CircuitBreakerInterceptor {
	i.reject = reject
	return i
}

func (i *CircuitBreakerInterceptor) Intercept(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
	err := i.breaker.Execute(func() error {
		return next(ctx, msg)
	})

	var refused *reliability.CircuitBreakerError
	if i.reject != nil && errors.As(err, &refused) {
		return i.reject(ctx, msg, err)
	}
	return err
}

func (i *CircuitBreakerInterceptor) Name() string {
	return "CircuitBreakerInterceptor"
}
