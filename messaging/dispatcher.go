package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/internal/clock"
	"github.com/glimte/unitbus/serialization"
)

// MessageBus dispatches messages to the handlers of its services and hands messages
// addressed to other units to the remote dispatcher.
//
// Handler errors and panics are logged and counted; they never abort the dispatch to
// other handlers and never escape the bus.
type MessageBus struct {
	compID         contracts.UnitID
	registry       serialization.TypeRegistry
	codec          serialization.MessageCodec
	tracker        *CommandTracker
	services       []*MessageService
	remote         RemoteDispatcher
	commandTimeout time.Duration
	mu             sync.RWMutex
	logger         *slog.Logger
	metrics        MetricsCollector
	clock          clock.Clock
}

// BusOption configures the MessageBus
type BusOption func(*MessageBus)

// WithBusLogger sets the logger
func WithBusLogger(logger *slog.Logger) BusOption {
	return func(b *MessageBus) {
		b.logger = logger
	}
}

// WithBusMetrics sets the metrics collector
func WithBusMetrics(metrics MetricsCollector) BusOption {
	return func(b *MessageBus) {
		b.metrics = metrics
	}
}

// WithBusRegistry sets the message type registry (default: serialization.Global())
func WithBusRegistry(registry serialization.TypeRegistry) BusOption {
	return func(b *MessageBus) {
		b.registry = registry
	}
}

// WithBusClock sets the clock used for command deadlines
func WithBusClock(c clock.Clock) BusOption {
	return func(b *MessageBus) {
		b.clock = c
	}
}

// WithRemoteDispatcher sets the dispatcher for messages leaving the component
func WithRemoteDispatcher(remote RemoteDispatcher) BusOption {
	return func(b *MessageBus) {
		b.remote = remote
	}
}

// WithCommandTimeout sets the default reply timeout of commands built by the bus services
func WithCommandTimeout(timeout time.Duration) BusOption {
	return func(b *MessageBus) {
		b.commandTimeout = timeout
	}
}

// NewMessageBus creates a new message bus for the given component
func NewMessageBus(compID contracts.UnitID, options ...BusOption) *MessageBus {
	b := &MessageBus{
		compID:   compID,
		registry: serialization.Global(),
		logger:   slog.Default(),
		metrics:  &NoOpMetricsCollector{},
		clock:    clock.Real{},
	}

	for _, opt := range options {
		opt(b)
	}

	b.logger = b.logger.With("scope", "bus")
	b.codec = serialization.NewJSONCodec(b.registry)
	b.tracker = NewCommandTracker(
		WithTrackerClock(b.clock),
		WithTrackerLogger(b.logger),
		WithTrackerMetrics(b.metrics),
	)

	return b
}

// ComponentID returns the unit the bus belongs to
func (b *MessageBus) ComponentID() contracts.UnitID {
	return b.compID
}

// Registry returns the message type registry
func (b *MessageBus) Registry() serialization.TypeRegistry {
	return b.registry
}

// Codec returns the wire codec
func (b *MessageBus) Codec() serialization.MessageCodec {
	return b.codec
}

// Tracker returns the command tracker
func (b *MessageBus) Tracker() *CommandTracker {
	return b.tracker
}

// Metrics returns the metrics collector
func (b *MessageBus) Metrics() MetricsCollector {
	return b.metrics
}

// Logger returns the bus logger
func (b *MessageBus) Logger() *slog.Logger {
	return b.logger
}

// SetRemoteDispatcher attaches the dispatcher for messages leaving the component
func (b *MessageBus) SetRemoteDispatcher(remote RemoteDispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remote = remote
}

// AddService adds a message service. It returns false if the service was already added.
func (b *MessageBus) AddService(svc *MessageService) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.services {
		if existing == svc {
			return false
		}
	}
	b.services = append(b.services, svc)
	return true
}

// RemoveService removes a message service. It returns false if the service was not added.
func (b *MessageBus) RemoveService(svc *MessageService) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.services {
		if existing == svc {
			b.services = append(b.services[:i:i], b.services[i+1:]...)
			return true
		}
	}
	return false
}

// Services returns a snapshot of the registered services
func (b *MessageBus) Services() []*MessageService {
	b.mu.RLock()
	defer b.mu.RUnlock()

	services := make([]*MessageService, len(b.services))
	copy(services, b.services)
	return services
}

// DispatchRaw decodes a serialized message and dispatches it.
// Unknown names and malformed payloads are logged and dropped.
func (b *MessageBus) DispatchRaw(ctx context.Context, name string, data []byte, entrypoint Entrypoint) error {
	msg, err := b.codec.Unmarshal(name, data)
	if err != nil {
		reason := DropDecodeFailed
		if errors.Is(err, contracts.ErrUnknownMessageType) {
			reason = DropUnknownType
		}
		b.metrics.RecordDropped(reason)
		b.logger.Error("unable to decode message", "message", name, "entrypoint", entrypoint.String(), "error", err)
		return fmt.Errorf("failed to decode message %s: %w", name, err)
	}

	return b.Dispatch(ctx, msg, NewMetaInformation(msg, entrypoint))
}

// Dispatch routes a message locally, remotely or both
func (b *MessageBus) Dispatch(ctx context.Context, msg contracts.Message, meta MetaInformation) error {
	if err := b.verify(msg, meta); err != nil {
		b.metrics.RecordDropped(DropRoutingError)
		b.logger.Error("a routing error occurred", "message", msg.GetName(), "trace", msg.GetTrace(), "error", err)
		return err
	}

	var remoteErr error
	if b.routesRemote(msg, meta) {
		remoteErr = b.remoteDispatch(ctx, msg, meta)
	}

	b.localDispatch(ctx, msg, meta)
	return remoteErr
}

// Close fails all pending commands
func (b *MessageBus) Close() {
	b.tracker.Close()
}

func (b *MessageBus) verify(msg contracts.Message, meta MetaInformation) error {
	if msg == nil {
		return fmt.Errorf("%w: message cannot be nil", contracts.ErrRouting)
	}

	target := msg.GetTarget()
	switch {
	case !target.IsValid():
		return fmt.Errorf("%w: %s", contracts.ErrNoChannel, msg.GetName())
	case target.IsLocal() && meta.Entrypoint.IsRemote():
		return fmt.Errorf("%w: local message %s entered through the %s", contracts.ErrRouting, msg.GetName(), meta.Entrypoint)
	case target.IsDirect() && target.TargetID == nil:
		return fmt.Errorf("%w: direct message %s without a target", contracts.ErrRouting, msg.GetName())
	case target.IsRoom() && target.Target == "":
		return fmt.Errorf("%w: room message %s without a target room", contracts.ErrRouting, msg.GetName())
	}
	return nil
}

func (b *MessageBus) routesRemote(msg contracts.Message, meta MetaInformation) bool {
	if meta.Entrypoint.IsRemote() {
		return false
	}

	target := msg.GetTarget()
	switch {
	case target.IsDirect():
		return !target.TargetID.Equals(b.compID)
	case target.IsRoom():
		return true
	default:
		return false
	}
}

func (b *MessageBus) routesLocal(msg contracts.Message, meta MetaInformation) bool {
	target := msg.GetTarget()
	switch {
	case target.IsLocal():
		return true
	case target.IsDirect():
		return target.TargetID.Equals(b.compID)
	case target.IsRoom():
		return meta.Entrypoint.IsRemote()
	default:
		return false
	}
}

func (b *MessageBus) remoteDispatch(ctx context.Context, msg contracts.Message, meta MetaInformation) error {
	b.mu.RLock()
	remote := b.remote
	b.mu.RUnlock()

	if remote == nil {
		b.metrics.RecordDropped(DropRoutingError)
		return fmt.Errorf("%w: cannot send %s to %s", contracts.ErrNoRemote, msg.GetName(), msg.GetTarget())
	}

	if err := remote.SendMessage(ctx, msg, meta); err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", msg.GetName(), msg.GetTarget(), err)
	}
	return nil
}

func (b *MessageBus) localDispatch(ctx context.Context, msg contracts.Message, meta MetaInformation) {
	start := b.clock.Now()

	// Replies settle their command before any handler sees them
	resolved := false
	if reply, ok := msg.(contracts.CommandReply); ok {
		resolved = b.tracker.Resolve(reply)
	}

	if !b.routesLocal(msg, meta) {
		return
	}

	handled := false
	for _, svc := range b.Services() {
		for _, rule := range svc.Handlers().FindHandlers(msg.GetName()) {
			handled = true
			b.invoke(ctx, svc, rule, msg, meta)
		}
	}

	if !handled && !resolved {
		b.logger.Warn("a message was dispatched locally but not handled", "message", msg.GetName(), "trace", msg.GetTrace())
	}

	b.metrics.RecordDispatch(msg.GetName(), b.clock.Now().Sub(start), handled)
}

func (b *MessageBus) invoke(ctx context.Context, svc *MessageService, rule HandlerRule, msg contracts.Message, meta MetaInformation) {
	mctx := svc.createContext(ctx, msg, meta, rule.Filter)

	defer func() {
		if r := recover(); r != nil {
			b.metrics.RecordHandlerFailure(msg.GetName(), rule.Filter)
			mctx.Logger().Error("a handler panicked while processing a message", "panic", r)
		}
	}()

	if err := rule.Handler(mctx, msg); err != nil {
		b.metrics.RecordHandlerFailure(msg.GetName(), rule.Filter)
		mctx.Logger().Error("an error occurred while processing a message", "error", err)
	}
}
