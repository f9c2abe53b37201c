package reliability

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrCircuitOpen      = errors.New("circuit breaker is open")
	ErrHalfOpenLimit    = errors.New("circuit breaker half-open request limit reached")
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// CircuitBreakerError is returned for calls rejected by a circuit breaker
type CircuitBreakerError struct {
	Name      string
	State     State
	Failures  int
	NextRetry time.Time
}

func (e *CircuitBreakerError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("circuit breaker %s: half-open, probe limit reached", e.Name)
	}
	return fmt.Sprintf("circuit breaker %s: open after %d failures, next probe at %s",
		e.Name, e.Failures, e.NextRetry.Format(time.RFC3339))
}

func (e *CircuitBreakerError) Unwrap() error {
	if e.State == StateHalfOpen {
		return ErrHalfOpenLimit
	}
	return ErrCircuitOpen
}

// RetryError is returned when every attempt of a retried operation failed
type RetryError struct {
	Attempts  int
	LastError error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%d attempts failed: %v", e.Attempts, e.LastError)
}

// Unwrap exposes both ErrRetriesExhausted and the last failure
func (e *RetryError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.LastError}
}

// permanentError marks an error that must not be retried
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so retry policies give up on it immediately
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
