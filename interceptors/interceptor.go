package interceptors

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/messaging"
)

// Interceptor processes messages before they reach the final handler
type Interceptor interface {
	// Intercept processes a message and calls next to continue the chain
	Intercept(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error

	// Name returns the interceptor name for logging
	Name() string
}

// RejectFunc answers a message an interceptor refused to pass on, for example with an
// unsuccessful reply. Its result replaces the refusal error.
type RejectFunc func(ctx *messaging.MessageContext, msg contracts.Message, cause error) error

// InterceptorFunc is a function adapter for Interceptor
type InterceptorFunc struct {
	name string
	fn   func(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error
}

// NewInterceptorFunc creates a function-based interceptor
func NewInterceptorFunc(name string, fn func(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error) *InterceptorFunc {
	return &InterceptorFunc{name: name, fn: fn}
}

func (i *InterceptorFunc) Intercept(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
	return i.fn(ctx, msg, next)
}

func (i *InterceptorFunc) Name() string {
	return i.name
}

// Chain is an ordered list of interceptors
type Chain struct {
	interceptors []Interceptor
}

// NewChain creates a chain; the first interceptor is the outermost
func NewChain(interceptors ...Interceptor) *Chain {
	return &Chain{interceptors: interceptors}
}

// Add appends an interceptor
func (c *Chain) Add(interceptor Interceptor) *Chain {
	c.interceptors = append(c.interceptors, interceptor)
	return c
}

// Len returns the number of interceptors
func (c *Chain) Len() int {
	return len(c.interceptors)
}

// Then wraps handler with the interceptors of the chain. Interceptors added to the
// chain afterwards do not affect the returned handler.
func (c *Chain) Then(handler messaging.HandlerFunc) messaging.HandlerFunc {
	wrapped := handler
	for i := len(c.interceptors) - 1; i >= 0; i-- {
		interceptor := c.interceptors[i]
		next := wrapped
		wrapped = func(ctx *messaging.MessageContext, msg contracts.Message) error {
			return interceptor.Intercept(ctx, msg, next)
		}
	}
	return wrapped
}

// LoggingInterceptor logs the outcome and duration of every handler call with the
// logger of the message context
type LoggingInterceptor struct {
	level slog.Level
}

// NewLoggingInterceptor creates a logging interceptor writing successes at debug level
func NewLoggingInterceptor() *LoggingInterceptor {
	return &LoggingInterceptor{level: slog.LevelDebug}
}

// WithLevel sets the level of success entries
func (i *LoggingInterceptor) WithLevel(level slog.Level) *LoggingInterceptor {
	i.level = level
	return i
}

func (i *LoggingInterceptor) Intercept(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
	start := time.Now()
	err := next(ctx, msg)
	duration := time.Since(start)

	if err != nil {
		ctx.Logger().Error("message processing failed",
			"origin", msg.GetOrigin().String(),
			"duration", duration,
			"error", err,
		)
		return err
	}

	ctx.Logger().Log(ctx.Context(), i.level, "message processed",
		"origin", msg.GetOrigin().String(),
		"duration", duration,
	)
	return nil
}

func (i *LoggingInterceptor) Name() string {
	return "LoggingInterceptor"
}

// MessageValidator checks a message before it is handled
type MessageValidator interface {
	Validate(msg contracts.Message) error
}

// ValidatorFunc adapts a function to MessageValidator
type ValidatorFunc func(msg contracts.Message) error

func (f ValidatorFunc) Validate(msg contracts.Message) error {
	return f(msg)
}

// ValidationInterceptor rejects messages the validator refuses
type ValidationInterceptor struct {
	validator MessageValidator
	reject    RejectFunc
}

func NewValidationInterceptor(validator MessageValidator) *ValidationInterceptor {
	return &ValidationInterceptor{validator: validator}
}

// WithRejection passes invalid messages to reject instead of failing the handler
func (i *ValidationInterceptor) WithRejection(reject RejectFunc) *ValidationInterceptor {
	i.reject = reject
	return i
}

func (i *ValidationInterceptor) Intercept(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
	if err := i.validator.Validate(msg); err != nil {
		if i.reject != nil {
			return i.reject(ctx, msg, err)
		}
		return fmt.Errorf("message validation failed: %w", err)
	}
	return next(ctx, msg)
}

func (i *ValidationInterceptor) Name() string {
	return "ValidationInterceptor"
}
