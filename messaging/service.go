package messaging

import (
	"context"
	"log/slog"

	"github.com/glimte/unitbus/contracts"
)

// MessageService groups the handlers of one unit of work and creates their contexts
type MessageService struct {
	name     string
	bus      *MessageBus
	handlers *MessageHandlers
	emitter  *MessageEmitter
	builder  *MessageBuilder
	logger   *slog.Logger
}

// NewMessageService creates a service on the bus. It still needs to be added with
// MessageBus.AddService to receive messages.
func NewMessageService(name string, bus *MessageBus) *MessageService {
	emitter := NewMessageEmitter(bus)
	return &MessageService{
		name:     name,
		bus:      bus,
		handlers: NewMessageHandlers(),
		emitter:  emitter,
		builder:  NewMessageBuilder(bus.ComponentID(), bus.Registry(), emitter, bus.commandTimeout),
		logger:   bus.logger.With("service", name),
	}
}

// Name returns the service name
func (s *MessageService) Name() string {
	return s.name
}

// Handlers returns the handler table of the service
func (s *MessageService) Handlers() *MessageHandlers {
	return s.handlers
}

// AddHandler registers a handler on the service
func (s *MessageService) AddHandler(filter string, handler HandlerFunc) error {
	return s.handlers.AddHandler(filter, handler)
}

// Emitter returns the emitter bound to the component
func (s *MessageService) Emitter() *MessageEmitter {
	return s.emitter
}

// Builder returns the message builder bound to the component
func (s *MessageService) Builder() *MessageBuilder {
	return s.builder
}

func (s *MessageService) createContext(ctx context.Context, msg contracts.Message, meta MetaInformation, filter string) *MessageContext {
	return &MessageContext{
		ctx:     ctx,
		service: s,
		meta:    meta,
		logger: s.logger.With(
			"trace", msg.GetTrace(),
			"message", msg.GetName(),
			"filter", filter,
		),
	}
}

// MessageContext is created for every handler invocation
type MessageContext struct {
	ctx     context.Context
	service *MessageService
	meta    MetaInformation
	logger  *slog.Logger
}

// Context returns the context of the dispatch
func (c *MessageContext) Context() context.Context {
	return c.ctx
}

// Service returns the service the handler belongs to
func (c *MessageContext) Service() *MessageService {
	return c.service
}

// Meta returns the meta information of the dispatched message
func (c *MessageContext) Meta() MetaInformation {
	return c.meta
}

// Logger returns a logger scoped to the message trace and handler filter
func (c *MessageContext) Logger() *slog.Logger {
	return c.logger
}

// Emitter returns the emitter bound to the receiving component
func (c *MessageContext) Emitter() *MessageEmitter {
	return c.service.emitter
}

// Builder returns the message builder bound to the receiving component
func (c *MessageContext) Builder() *MessageBuilder {
	return c.service.builder
}
