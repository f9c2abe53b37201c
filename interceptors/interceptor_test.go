package interceptors_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/interceptors"
	"github.com/glimte/unitbus/internal/reliability"
	"github.com/glimte/unitbus/messaging"
	"github.com/glimte/unitbus/serialization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errHandler = errors.New("handler failed")

// harness dispatches local events through a chain and records what comes out of it
type harness struct {
	t   *testing.T
	bus *messaging.MessageBus
	svc *messaging.MessageService

	mu     sync.Mutex
	order  []string
	errs   []error
	called int
}

func newHarness(t *testing.T, options ...messaging.BusOption) *harness {
	t.Helper()

	registry := serialization.NewTypeRegistry()
	require.NoError(t, api.RegisterTypes(registry))
	registry.Freeze()

	options = append([]messaging.BusOption{messaging.WithBusRegistry(registry)}, options...)
	bus := messaging.NewMessageBus(api.GateID().WithInstance("default"), options...)
	svc := messaging.NewMessageService("test", bus)
	bus.AddService(svc)
	return &harness{t: t, bus: bus, svc: svc}
}

func (h *harness) step(name string) interceptors.Interceptor {
	return interceptors.NewInterceptorFunc(name, func(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
		h.mu.Lock()
		h.order = append(h.order, name)
		h.mu.Unlock()
		return next(ctx, msg)
	})
}

// recorder is the outermost interceptor, capturing the chain result
func (h *harness) recorder() interceptors.Interceptor {
	return interceptors.NewInterceptorFunc("recorder", func(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
		err := next(ctx, msg)
		h.mu.Lock()
		h.errs = append(h.errs, err)
		h.mu.Unlock()
		return err
	})
}

func (h *harness) handler(results ...error) messaging.HandlerFunc {
	return func(ctx *messaging.MessageContext, msg contracts.Message) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.order = append(h.order, "handler")
		h.called++
		if len(results) == 0 {
			return nil
		}
		err := results[0]
		if len(results) > 1 {
			results = results[1:]
		}
		return err
	}
}

func (h *harness) register(chain *interceptors.Chain, handler messaging.HandlerFunc) {
	require.NoError(h.t, h.svc.AddHandler(api.ProjectsChangedEventName, chain.Then(handler)))
}

func (h *harness) emit() {
	h.emitFrom(h.bus.ComponentID())
}

// emitFrom dispatches an event whose chain originates at origin
func (h *harness) emitFrom(origin contracts.UnitID) {
	h.t.Helper()

	var chain contracts.Message
	if !origin.Equals(h.bus.ComponentID()) {
		cmd := &api.ListProjectsCommand{}
		require.NoError(h.t, contracts.Stamp(cmd, contracts.BaseMessage{
			Name:   api.ListProjectsCommandName,
			Origin: origin,
			Sender: origin,
			Trace:  contracts.NewTrace(),
		}))
		chain = cmd
	}

	ev := &api.ProjectsChangedEvent{ProjectID: 1, Change: api.ProjectCreated}
	require.NoError(h.t, messaging.BuildEvent(h.svc.Builder(), ev, chain).Emit(context.Background(), contracts.LocalChannel()))
}

func (h *harness) results() (order []string, errs []error, called int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string{}, h.order...), append([]error{}, h.errs...), h.called
}

func TestChain(t *testing.T) {
	t.Run("runs interceptors outermost first", func(t *testing.T) {
		h := newHarness(t)
		chain := interceptors.NewChain(h.step("a"), h.step("b")).Add(h.step("c"))
		assert.Equal(t, 3, chain.Len())

		h.register(chain, h.handler())
		h.emit()

		order, _, _ := h.results()
		assert.Equal(t, []string{"a", "b", "c", "handler"}, order)
	})

	t.Run("an empty chain calls the handler directly", func(t *testing.T) {
		h := newHarness(t)
		h.register(interceptors.NewChain(), h.handler())
		h.emit()

		_, _, called := h.results()
		assert.Equal(t, 1, called)
	})

	t.Run("interceptors added later do not change wrapped handlers", func(t *testing.T) {
		h := newHarness(t)
		chain := interceptors.NewChain(h.step("a"))
		h.register(chain, h.handler())
		chain.Add(h.step("late"))
		h.emit()

		order, _, _ := h.results()
		assert.Equal(t, []string{"a", "handler"}, order)
	})
}

func TestLoggingInterceptor(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := newHarness(t, messaging.WithBusLogger(logger))

	h.register(interceptors.NewChain(interceptors.NewLoggingInterceptor()), h.handler(nil, errHandler))
	h.emit()
	h.emit()

	out := buf.String()
	assert.Contains(t, out, `"msg":"message processed"`)
	assert.Contains(t, out, `"msg":"message processing failed"`)
	assert.Contains(t, out, errHandler.Error())
}

func TestValidationInterceptor(t *testing.T) {
	h := newHarness(t)
	invalid := errors.New("project id missing")
	validator := interceptors.ValidatorFunc(func(msg contracts.Message) error {
		if ev, ok := msg.(*api.ProjectsChangedEvent); ok && ev.ProjectID == 1 {
			return invalid
		}
		return nil
	})

	h.register(interceptors.NewChain(h.recorder(), interceptors.NewValidationInterceptor(validator)), h.handler())
	h.emit()

	_, errs, called := h.results()
	assert.Zero(t, called)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], invalid)
}

func TestFilteringInterceptor(t *testing.T) {
	frontend := api.FrontendID().WithInstance("default")

	t.Run("passes accepted messages", func(t *testing.T) {
		h := newHarness(t)
		filter := interceptors.FromUnitTypes(api.TypeWeb)
		h.register(interceptors.NewChain(interceptors.NewFilteringInterceptor(filter, interceptors.SkipWithError)), h.handler())

		h.emitFrom(frontend)
		_, _, called := h.results()
		assert.Equal(t, 1, called)
	})

	t.Run("skips silently", func(t *testing.T) {
		h := newHarness(t)
		filter := interceptors.FromUnitTypes(api.TypeWeb)
		h.register(interceptors.NewChain(h.recorder(), interceptors.NewFilteringInterceptor(filter, interceptors.SkipSilently)), h.handler())

		h.emit()
		_, errs, called := h.results()
		assert.Zero(t, called)
		assert.Equal(t, []error{nil}, errs)
	})

	t.Run("skips with an error", func(t *testing.T) {
		h := newHarness(t)
		filter := interceptors.FromUnits(frontend)
		h.register(interceptors.NewChain(h.recorder(), interceptors.NewFilteringInterceptor(filter, interceptors.SkipWithError)), h.handler())

		h.emit()
		_, errs, called := h.results()
		assert.Zero(t, called)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], interceptors.ErrFiltered)
	})

	t.Run("combines filters", func(t *testing.T) {
		h := newHarness(t)
		filter := interceptors.All(
			interceptors.Any(interceptors.FromUnitTypes(api.TypeConnector), interceptors.FromUnits(api.FrontendID())),
			interceptors.Not(interceptors.FromNetwork()),
		)
		h.register(interceptors.NewChain(interceptors.NewFilteringInterceptor(filter, interceptors.SkipWithLog)), h.handler())

		h.emitFrom(frontend)
		h.emit()
		_, _, called := h.results()
		assert.Equal(t, 1, called)
	})
}

func TestRetryInterceptor(t *testing.T) {
	t.Run("retries failing handlers", func(t *testing.T) {
		h := newHarness(t)
		policy := reliability.NewFixedDelay(time.Millisecond, 3)
		h.register(interceptors.NewChain(h.recorder(), interceptors.NewRetryInterceptor(policy)), h.handler(errHandler, errHandler, nil))

		h.emit()
		_, errs, called := h.results()
		assert.Equal(t, 3, called)
		assert.Equal(t, []error{nil}, errs)
	})

	t.Run("gives up on permanent errors", func(t *testing.T) {
		h := newHarness(t)
		policy := reliability.NewFixedDelay(time.Millisecond, 3)
		h.register(interceptors.NewChain(h.recorder(), interceptors.NewRetryInterceptor(policy)), h.handler(reliability.Permanent(errHandler)))

		h.emit()
		_, errs, called := h.results()
		assert.Equal(t, 1, called)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0], errHandler)
	})
}

func TestCircuitBreakerInterceptor(t *testing.T) {
	h := newHarness(t)
	breaker := reliability.NewCircuitBreaker(reliability.WithFailureThreshold(2), reliability.WithTimeout(time.Hour))
	h.register(interceptors.NewChain(h.recorder(), interceptors.NewCircuitBreakerInterceptor(breaker)), h.handler(errHandler))

	for range 3 {
		h.emit()
	}

	_, errs, called := h.results()
	assert.Equal(t, 2, called)
	require.Len(t, errs, 3)
	assert.ErrorIs(t, errs[2], reliability.ErrCircuitOpen)
	assert.Equal(t, reliability.StateOpen, breaker.State())
}

func TestRejection(t *testing.T) {
	rejector := func(h *harness) (interceptors.RejectFunc, func() []error) {
		var causes []error
		reject := func(_ *messaging.MessageContext, _ contracts.Message, cause error) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			causes = append(causes, cause)
			return nil
		}
		return reject, func() []error {
			h.mu.Lock()
			defer h.mu.Unlock()
			return append([]error{}, causes...)
		}
	}

	t.Run("invalid messages", func(t *testing.T) {
		h := newHarness(t)
		reject, causes := rejector(h)
		invalid := errors.New("project id missing")
		validation := interceptors.NewValidationInterceptor(interceptors.ValidatorFunc(func(contracts.Message) error { return invalid }))
		h.register(interceptors.NewChain(h.recorder(), validation.WithRejection(reject)), h.handler())

		h.emit()
		_, errs, called := h.results()
		assert.Zero(t, called)
		assert.Equal(t, []error{nil}, errs)
		require.Len(t, causes(), 1)
		assert.ErrorIs(t, causes()[0], invalid)
	})

	t.Run("filtered messages", func(t *testing.T) {
		h := newHarness(t)
		reject, causes := rejector(h)
		filtering := interceptors.NewFilteringInterceptor(interceptors.FromUnitTypes(api.TypeWeb), interceptors.SkipWithError)
		h.register(interceptors.NewChain(h.recorder(), filtering.WithRejection(reject)), h.handler())

		h.emit()
		_, errs, called := h.results()
		assert.Zero(t, called)
		assert.Equal(t, []error{nil}, errs)
		require.Len(t, causes(), 1)
		assert.ErrorIs(t, causes()[0], interceptors.ErrFiltered)
	})

	t.Run("messages refused by an open circuit", func(t *testing.T) {
		h := newHarness(t)
		reject, causes := rejector(h)
		breaker := reliability.NewCircuitBreaker(reliability.WithFailureThreshold(1), reliability.WithTimeout(time.Hour))
		cb := interceptors.NewCircuitBreakerInterceptor(breaker).WithRejection(reject)
		h.register(interceptors.NewChain(h.recorder(), cb), h.handler(errHandler))

		h.emit()
		h.emit()
		_, errs, called := h.results()
		assert.Equal(t, 1, called)
		require.Len(t, errs, 2)
		assert.ErrorIs(t, errs[0], errHandler, "handler failures are not rejections")
		assert.NoError(t, errs[1])
		require.Len(t, causes(), 1)
		assert.ErrorIs(t, causes()[0], reliability.ErrCircuitOpen)
	})
}
