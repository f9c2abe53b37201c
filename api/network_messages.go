package api

import "github.com/glimte/unitbus/contracts"

// Network message names
const (
	ClientConnectedEventName       = "event/network/client/connected"
	ClientConnectionErrorEventName = "event/network/client/connection-error"
	ClientDisconnectedEventName    = "event/network/client/disconnected"

	PingCommandName = "command/network/ping"
	PingReplyName   = "command/network/ping/reply"

	// ClientEventsFilter matches all client lifecycle events
	ClientEventsFilter = "event/network/client/*"
)

// ClientConnectedEvent is emitted locally when the client connected to the server
type ClientConnectedEvent struct {
	contracts.BaseEvent
}

// ClientConnectionErrorEvent is emitted locally when connecting failed
type ClientConnectionErrorEvent struct {
	contracts.BaseEvent
	Reason string `json:"reason"`
}

// ClientDisconnectedEvent is emitted locally when an established connection ended
type ClientDisconnectedEvent struct {
	contracts.BaseEvent
}

// PingCommand checks that a unit is reachable. Requires a PingReply.
type PingCommand struct {
	contracts.BaseCommand
}

// PingReply answers PingCommand
type PingReply struct {
	contracts.BaseCommandReply
	Version string `json:"version"`
}
