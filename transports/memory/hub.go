// Package memory provides an in-process transport. A Hub plays the server: it routes
// direct frames to the addressed unit and room frames to every other connected unit.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/network"
)

var (
	// ErrNotConnected is returned when sending through a closed socket
	ErrNotConnected = errors.New("socket not connected")

	// ErrConnectionReset is reported to sockets dropped by the hub
	ErrConnectionReset = errors.New("connection reset by hub")
)

const inboxSize = 256

// Hub connects the sockets of one process
type Hub struct {
	mu         sync.RWMutex
	sockets    map[string]*Socket
	connectErr error
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{sockets: make(map[string]*Socket)}
}

// Socket creates an unconnected socket attached to the hub
func (h *Hub) Socket() *Socket {
	return &Socket{hub: h}
}

// RejectConnections makes subsequent connection attempts fail with err; nil accepts them again
func (h *Hub) RejectConnections(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectErr = err
}

// Connected returns whether a unit is connected
func (h *Hub) Connected(compID contracts.UnitID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.sockets[compID.String()]
	return ok
}

// Disconnect drops the connection of a unit as if the server went away
func (h *Hub) Disconnect(compID contracts.UnitID) {
	h.mu.Lock()
	s, ok := h.sockets[compID.String()]
	if ok {
		delete(h.sockets, compID.String())
	}
	h.mu.Unlock()

	if ok {
		s.shutdown(ErrConnectionReset)
	}
}

func (h *Hub) register(s *Socket, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connectErr != nil {
		return h.connectErr
	}
	if _, exists := h.sockets[id]; exists {
		return fmt.Errorf("component %s is already connected", id)
	}
	h.sockets[id] = s
	return nil
}

func (h *Hub) unregister(s *Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sockets[s.id] == s {
		delete(h.sockets, s.id)
	}
}

// route hands frame to its receivers, waiting for room in their inboxes
func (h *Hub) route(ctx context.Context, from string, frame contracts.Envelope) error {
	h.mu.RLock()
	var receivers []*Socket
	switch {
	case frame.Target.IsDirect() && frame.Target.TargetID != nil:
		if s, ok := h.sockets[frame.Target.TargetID.String()]; ok {
			receivers = append(receivers, s)
		}
	case frame.Target.IsRoom():
		for id, s := range h.sockets {
			if id != from {
				receivers = append(receivers, s)
			}
		}
	}
	h.mu.RUnlock()

	for _, s := range receivers {
		if err := s.deliver(ctx, frame); err != nil {
			return fmt.Errorf("failed to deliver %s: %w", frame.Name, err)
		}
	}
	return nil
}

// Socket is a network.Socket connected to a Hub
type Socket struct {
	hub *Hub

	mu   sync.Mutex
	id   string
	conn *session
}

// session is one connection of a Socket
type session struct {
	inbox  chan contracts.Envelope
	closed chan struct{}
	reason error
}

// Connect registers the socket under the handshake component id
func (s *Socket) Connect(ctx context.Context, handshake network.Handshake, events network.SocketEvents) error {
	if handshake.ComponentID == "" {
		return fmt.Errorf("handshake without component id")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}
	if err := s.hub.register(s, handshake.ComponentID); err != nil {
		return err
	}

	s.id = handshake.ComponentID
	s.conn = &session{
		inbox:  make(chan contracts.Envelope, inboxSize),
		closed: make(chan struct{}),
	}

	go s.receiveLoop(s.conn, events)
	return nil
}

// Send hands a frame to the hub. It blocks while a receiver's inbox is full, until ctx
// is done.
func (s *Socket) Send(ctx context.Context, frame contracts.Envelope) error {
	s.mu.Lock()
	connected, id := s.conn != nil, s.id
	s.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return s.hub.route(ctx, id, frame)
}

// Close disconnects the socket. OnDisconnect is reported by the receive loop, so Close
// may be called from OnMessage.
func (s *Socket) Close() error {
	s.hub.unregister(s)
	s.shutdown(nil)
	return nil
}

func (s *Socket) deliver(ctx context.Context, frame contracts.Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	select {
	case conn.inbox <- frame:
		return nil
	case <-conn.closed:
		// receiver went away, same as a unit that is not connected
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Socket) shutdown(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}
	s.conn.reason = reason
	close(s.conn.closed)
	s.conn = nil
}

func (s *Socket) receiveLoop(conn *session, events network.SocketEvents) {
	for {
		select {
		case <-conn.closed:
			s.disconnected(conn, events)
			return
		default:
		}

		select {
		case <-conn.closed:
			s.disconnected(conn, events)
			return
		case frame := <-conn.inbox:
			if events.OnMessage != nil {
				events.OnMessage(frame.Name, frame.Data)
			}
		}
	}
}

func (s *Socket) disconnected(conn *session, events network.SocketEvents) {
	s.mu.Lock()
	reason := conn.reason
	s.mu.Unlock()

	if events.OnDisconnect != nil {
		events.OnDisconnect(reason)
	}
}
