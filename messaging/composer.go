package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/serialization"
)

// MessageBuilder writes the envelopes of messages built by a component
type MessageBuilder struct {
	compID         contracts.UnitID
	registry       serialization.TypeRegistry
	emitter        *MessageEmitter
	defaultTimeout time.Duration
}

// NewMessageBuilder creates a builder. Commands built by it wait defaultTimeout for
// their reply unless overridden; zero waits without a deadline.
func NewMessageBuilder(compID contracts.UnitID, registry serialization.TypeRegistry, emitter *MessageEmitter, defaultTimeout time.Duration) *MessageBuilder {
	return &MessageBuilder{
		compID:         compID,
		registry:       registry,
		emitter:        emitter,
		defaultTimeout: defaultTimeout,
	}
}

// ComponentID returns the unit stamped as sender
func (b *MessageBuilder) ComponentID() contracts.UnitID {
	return b.compID
}

// ReplyChannel returns the channel a reply to cmd has to be emitted on
func (b *MessageBuilder) ReplyChannel(cmd contracts.Command) contracts.Channel {
	sender := cmd.GetSender()
	if sender.IsZero() || sender.Equals(b.compID) {
		return contracts.LocalChannel()
	}
	return contracts.DirectChannel(sender)
}

// stamp writes the envelope. A chained message keeps the origin and hops of its chain.
func (b *MessageBuilder) stamp(msg contracts.Message, chain contracts.Message, trace string) error {
	name, err := b.registry.NameOf(msg)
	if err != nil {
		return fmt.Errorf("failed to build %T: %w", msg, err)
	}

	h := contracts.BaseMessage{
		Name:   name,
		Origin: b.compID,
		Sender: b.compID,
		Trace:  trace,
	}
	if chain != nil {
		if origin := chain.GetOrigin(); !origin.IsZero() {
			h.Origin = origin
		}
		h.Hops = chain.GetHops()
	}

	return contracts.Stamp(msg, h)
}

// CommandComposer assembles a command and its reply handling
type CommandComposer[T contracts.Command] struct {
	builder   *MessageBuilder
	msg       T
	err       error
	timeout   time.Duration
	callbacks CommandCallbacks
}

// BuildCommand stamps cmd with a fresh trace. chain may be nil.
func BuildCommand[T contracts.Command](b *MessageBuilder, cmd T, chain contracts.Message) *CommandComposer[T] {
	return &CommandComposer[T]{
		builder: b,
		msg:     cmd,
		err:     b.stamp(cmd, chain, ""),
		timeout: b.defaultTimeout,
	}
}

// Timeout sets the reply deadline; zero waits without a deadline
func (c *CommandComposer[T]) Timeout(d time.Duration) *CommandComposer[T] {
	c.timeout = d
	return c
}

// Done sets the callback invoked with the reply
func (c *CommandComposer[T]) Done(cb DoneCallback) *CommandComposer[T] {
	c.callbacks.Done = cb
	return c
}

// Failed sets the callback invoked when no reply arrives
func (c *CommandComposer[T]) Failed(cb FailedCallback) *CommandComposer[T] {
	c.callbacks.Failed = cb
	return c
}

// Message returns the built command
func (c *CommandComposer[T]) Message() T {
	return c.msg
}

// Err returns the error that occurred while building, if any
func (c *CommandComposer[T]) Err() error {
	return c.err
}

// Emit sends the command. An invalid channel fails immediately with contracts.ErrNoChannel.
func (c *CommandComposer[T]) Emit(ctx context.Context, channel contracts.Channel) (*PendingCommand, error) {
	if c.err != nil {
		return nil, c.err
	}
	if !channel.IsValid() {
		return nil, fmt.Errorf("%w: cannot emit %s", contracts.ErrNoChannel, c.msg.GetName())
	}
	return c.builder.emitter.EmitCommand(ctx, c.msg, channel, c.timeout, c.callbacks)
}

// CommandReplyComposer assembles the reply to a command
type CommandReplyComposer[T contracts.CommandReply] struct {
	builder *MessageBuilder
	msg     T
	err     error
}

// BuildCommandReply stamps reply with the trace of cmd and sets its outcome
func BuildCommandReply[T contracts.CommandReply](b *MessageBuilder, reply T, cmd contracts.Command, success bool, message string) *CommandReplyComposer[T] {
	c := &CommandReplyComposer[T]{builder: b, msg: reply}
	if cmd == nil {
		c.err = fmt.Errorf("a reply needs the command it answers")
		return c
	}

	if c.err = b.stamp(reply, nil, cmd.GetTrace()); c.err == nil {
		contracts.StampReply(reply, success, message)
	}
	return c
}

// Message returns the built reply
func (c *CommandReplyComposer[T]) Message() T {
	return c.msg
}

// Err returns the error that occurred while building, if any
func (c *CommandReplyComposer[T]) Err() error {
	return c.err
}

// Emit sends the reply
func (c *CommandReplyComposer[T]) Emit(ctx context.Context, channel contracts.Channel) error {
	if c.err != nil {
		return c.err
	}
	return c.builder.emitter.Emit(ctx, c.msg, channel)
}

// EventComposer assembles an event
type EventComposer[T contracts.Event] struct {
	builder *MessageBuilder
	msg     T
	err     error
}

// BuildEvent stamps ev with a fresh trace. chain may be nil.
func BuildEvent[T contracts.Event](b *MessageBuilder, ev T, chain contracts.Message) *EventComposer[T] {
	return &EventComposer[T]{
		builder: b,
		msg:     ev,
		err:     b.stamp(ev, chain, ""),
	}
}

// Message returns the built event
func (c *EventComposer[T]) Message() T {
	return c.msg
}

// Err returns the error that occurred while building, if any
func (c *EventComposer[T]) Err() error {
	return c.err
}

// Emit sends the event
func (c *EventComposer[T]) Emit(ctx context.Context, channel contracts.Channel) error {
	if c.err != nil {
		return c.err
	}
	return c.builder.emitter.Emit(ctx, c.msg, channel)
}

// Reply answers the command handled in ctx on the channel it came from
func Reply[T contracts.CommandReply](ctx *MessageContext, cmd contracts.Command, reply T, success bool, message string) error {
	b := ctx.Builder()
	return BuildCommandReply(b, reply, cmd, success, message).Emit(ctx.Context(), b.ReplyChannel(cmd))
}
