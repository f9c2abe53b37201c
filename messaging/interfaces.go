package messaging

import (
	"context"
	"time"

	"github.com/glimte/unitbus/contracts"
)

// RemoteDispatcher sends messages that leave the component
type RemoteDispatcher interface {
	// SendMessage routes a message to other units
	SendMessage(ctx context.Context, msg contracts.Message, meta MetaInformation) error
}

// MetricsCollector collects messaging metrics
type MetricsCollector interface {
	// RecordEmit records a message leaving an emitter
	RecordEmit(messageName string, channel contracts.ChannelKind)

	// RecordDispatch records the local dispatch of a message to its handlers
	RecordDispatch(messageName string, duration time.Duration, handled bool)

	// RecordHandlerFailure records a handler returning an error or panicking
	RecordHandlerFailure(messageName string, filter string)

	// RecordCommandOutcome records the terminal outcome of a tracked command
	RecordCommandOutcome(messageName string, failType contracts.CommandFailType, duration time.Duration)

	// SetPendingCommands reports the number of commands waiting for a reply
	SetPendingCommands(count int)

	// RecordDropped records an inbound or outbound message that was discarded
	RecordDropped(reason string)
}

// NoOpMetricsCollector is a no-op implementation of MetricsCollector
type NoOpMetricsCollector struct{}

// RecordEmit does nothing
func (n *NoOpMetricsCollector) RecordEmit(messageName string, channel contracts.ChannelKind) {}

// RecordDispatch does nothing
func (n *NoOpMetricsCollector) RecordDispatch(messageName string, duration time.Duration, handled bool) {
}

// RecordHandlerFailure does nothing
func (n *NoOpMetricsCollector) RecordHandlerFailure(messageName string, filter string) {}

// RecordCommandOutcome does nothing
func (n *NoOpMetricsCollector) RecordCommandOutcome(messageName string, failType contracts.CommandFailType, duration time.Duration) {
}

// SetPendingCommands does nothing
func (n *NoOpMetricsCollector) SetPendingCommands(count int) {}

// RecordDropped does nothing
func (n *NoOpMetricsCollector) RecordDropped(reason string) {}

// Drop reasons reported to RecordDropped
const (
	DropUnknownType  = "unknown_type"
	DropDecodeFailed = "decode_failed"
	DropRoutingError = "routing_error"
	DropNotConnected = "not_connected"
	DropSendFailed   = "send_failed"
)
