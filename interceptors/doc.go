// Package interceptors wraps message handlers with cross-cutting behavior.
//
// An Interceptor sees every message before the handler does and decides whether and
// how to call it. A Chain applies interceptors in the order they were added, the first
// one being the outermost:
//
//	chain := interceptors.NewChain(
//		interceptors.NewLoggingInterceptor(),
//		interceptors.NewFilteringInterceptor(interceptors.FromUnitTypes("web"), interceptors.SkipWithLog),
//		interceptors.NewCircuitBreakerInterceptor(breaker),
//	)
//	svc.AddHandler(api.CreateProjectCommandName, chain.Then(messaging.Handle(createProject)))
//
// Custom interceptors implement Interceptor or use NewInterceptorFunc:
//
//	audit := interceptors.NewInterceptorFunc("audit", func(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
//		record(msg.GetOrigin(), msg.GetName())
//		return next(ctx, msg)
//	})
package interceptors
