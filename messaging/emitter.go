package messaging

import (
	"context"
	"time"

	"github.com/glimte/unitbus/contracts"
)

// MessageEmitter sends built messages onto a channel
type MessageEmitter struct {
	bus *MessageBus
}

// NewMessageEmitter creates an emitter bound to the bus component
func NewMessageEmitter(bus *MessageBus) *MessageEmitter {
	return &MessageEmitter{bus: bus}
}

// Emit addresses a message and dispatches it
func (e *MessageEmitter) Emit(ctx context.Context, msg contracts.Message, channel contracts.Channel) error {
	if err := contracts.Address(msg, channel); err != nil {
		return err
	}

	e.bus.metrics.RecordEmit(msg.GetName(), channel.Kind)
	return e.bus.Dispatch(ctx, msg, NewMetaInformation(msg, EntrypointLocal))
}

// EmitCommand addresses a command, registers it as pending and dispatches it.
// The pending entry exists before the command is sent. Failures to send settle the
// command with CommandFailException; only programming errors are returned.
func (e *MessageEmitter) EmitCommand(ctx context.Context, cmd contracts.Command, channel contracts.Channel, timeout time.Duration, callbacks CommandCallbacks) (*PendingCommand, error) {
	if err := contracts.Address(cmd, channel); err != nil {
		return nil, err
	}

	pending, err := e.bus.tracker.Track(cmd, timeout, callbacks)
	if err != nil {
		return nil, err
	}

	e.bus.metrics.RecordEmit(cmd.GetName(), channel.Kind)
	if err := e.bus.Dispatch(ctx, cmd, NewMetaInformation(cmd, EntrypointLocal)); err != nil {
		e.bus.tracker.Fail(cmd.GetTrace(), contracts.CommandFailException, err.Error())
	}

	return pending, nil
}
