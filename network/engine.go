package network

import (
	"context"
	"errors"
	"log/slog"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/internal/clock"
	"github.com/glimte/unitbus/internal/reliability"
	"github.com/glimte/unitbus/messaging"
)

// Engine is the remote dispatcher of a message bus. Outbound messages are verified and
// written through the client; inbound frames are decoded, stamped with a hop and
// dispatched on the bus.
type Engine struct {
	compID  contracts.UnitID
	bus     *messaging.MessageBus
	client  *Client
	router  *Router
	logger  *slog.Logger
	metrics messaging.MetricsCollector

	connectRetry reliability.RetryPolicy
	clock        clock.Clock
}

// EngineOption configures the Engine
type EngineOption func(*Engine)

// WithConnectRetry retries the connection attempt of Run with policy.
// A lost connection is still not re-established.
func WithConnectRetry(policy reliability.RetryPolicy) EngineOption {
	return func(e *Engine) {
		e.connectRetry = policy
	}
}

// WithEngineClock sets the clock measuring connect retry delays
func WithEngineClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// NewEngine creates an engine and attaches it to the bus and the client
func NewEngine(bus *messaging.MessageBus, client *Client, options ...EngineOption) *Engine {
	e := &Engine{
		compID:  bus.ComponentID(),
		bus:     bus,
		client:  client,
		router:  NewRouter(bus.ComponentID()),
		logger:  bus.Logger().With("scope", "network"),
		metrics: bus.Metrics(),
		clock:   clock.Real{},
	}
	for _, option := range options {
		option(e)
	}

	bus.SetRemoteDispatcher(e)
	client.SetMessageHandler(e.handleReceivedMessage)
	return e
}

// Client returns the network client
func (e *Engine) Client() *Client {
	return e.client
}

// Run connects the client and keeps the engine alive until ctx is done.
// A failed connection is not fatal; the component stays up without network.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.connect(ctx); err != nil && ctx.Err() == nil {
		e.logger.Error("failed to connect to server", "error", err)
	}

	<-ctx.Done()
	return e.client.Close()
}

func (e *Engine) connect(ctx context.Context) error {
	if e.connectRetry == nil {
		return e.client.ConnectToServer(ctx)
	}

	attempt := 0
	return reliability.Retry(ctx, e.clock, e.connectRetry, func() error {
		if attempt > 0 {
			e.logger.Warn("retrying connection to server", "attempt", attempt)
		}
		attempt++
		return e.client.ConnectToServer(ctx)
	})
}

// SendMessage implements messaging.RemoteDispatcher
func (e *Engine) SendMessage(ctx context.Context, msg contracts.Message, meta messaging.MetaInformation) error {
	if err := e.router.VerifyOut(msg); err != nil {
		e.metrics.RecordDropped(messaging.DropRoutingError)
		e.logger.Error("a routing error occurred", "message", msg.GetName(), "trace", msg.GetTrace(), "error", err)
		return err
	}
	return e.client.SendMessage(ctx, msg)
}

func (e *Engine) handleReceivedMessage(name string, data []byte) {
	msg, err := e.bus.Codec().Unmarshal(name, data)
	if err != nil {
		reason := messaging.DropDecodeFailed
		if errors.Is(err, contracts.ErrUnknownMessageType) {
			reason = messaging.DropUnknownType
		}
		e.metrics.RecordDropped(reason)
		e.logger.Error("a routing error occurred", "message", name, "error", err)
		return
	}

	if err := e.router.VerifyIn(msg); err != nil {
		e.metrics.RecordDropped(messaging.DropRoutingError)
		e.logger.Error("a routing error occurred", "message", name, "trace", msg.GetTrace(), "error", err)
		return
	}

	if !e.router.IsForUs(msg) {
		e.logger.Debug("ignoring message for another unit", "message", name, "target", msg.GetTarget().String())
		return
	}

	contracts.AppendHop(msg, e.compID)

	// Errors are logged by the bus
	_ = e.bus.Dispatch(context.Background(), msg, messaging.NewMetaInformation(msg, messaging.EntrypointClient))
}
