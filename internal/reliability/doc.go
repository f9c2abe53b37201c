// Package reliability provides retry policies and a circuit breaker.
//
// Both take a clock.Clock so delays and open timeouts can be driven by a fake clock:
//
//	cb := reliability.NewCircuitBreaker(
//	    reliability.WithFailureThreshold(5),
//	    reliability.WithTimeout(30*time.Second),
//	)
//	err := cb.Execute(func() error {
//	    return handle(msg)
//	})
//
// Retry repeats an operation until it succeeds or the policy gives up. Errors wrapped
// with Permanent are never retried.
package reliability
