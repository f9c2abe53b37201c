package network

import (
	"context"

	"github.com/glimte/unitbus/contracts"
)

// Handshake is the identity a socket presents when connecting
type Handshake struct {
	ComponentID string `json:"component_id"`
}

// NewHandshake creates the handshake of a unit
func NewHandshake(compID contracts.UnitID) Handshake {
	return Handshake{ComponentID: compID.String()}
}

// SocketEvents are the callbacks a socket invokes after connecting
type SocketEvents struct {
	// OnMessage is called for every received frame
	OnMessage func(name string, data []byte)

	// OnDisconnect is called once when an established connection ends; err is nil for a
	// regular close
	OnDisconnect func(err error)
}

// Socket is a single transport connection
type Socket interface {
	// Connect establishes the connection and presents the handshake. It blocks until the
	// connection is established, fails or ctx is done.
	Connect(ctx context.Context, handshake Handshake, events SocketEvents) error

	// Send writes a frame
	Send(ctx context.Context, frame contracts.Envelope) error

	// Close ends the connection
	Close() error
}
