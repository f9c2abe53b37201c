// Package nats implements network.Socket on NATS core subjects.
//
// A unit subscribes to <prefix>.unit.<type>.<unit>[.<instance>] and <prefix>.room.>.
// Frames carry the message JSON as payload and the message name and sender id as
// headers. NATS reconnection is disabled: a lost connection ends the socket.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/network"
	"github.com/glimte/unitbus/transports"
)

const (
	// DefaultSubjectPrefix is the first token of every subject
	DefaultSubjectPrefix = "unitbus"

	HeaderComponentID = "component_id"
	HeaderMessageName = "message_name"
)

// ErrNotConnected is returned when sending through a closed socket
var ErrNotConnected = errors.New("nats: not connected")

// Socket is a network.Socket backed by a NATS connection
type Socket struct {
	url        string
	prefix     string
	bufferSize int
	logger     *slog.Logger
	natsOpts   []nats.Option

	mu   sync.Mutex
	id   string
	conn *nats.Conn
}

// SocketOption configures the Socket
type SocketOption func(*Socket)

// WithSubjectPrefix sets the first subject token
func WithSubjectPrefix(prefix string) SocketOption {
	return func(s *Socket) {
		s.prefix = prefix
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) SocketOption {
	return func(s *Socket) {
		s.logger = logger
	}
}

// WithBufferSize sets the size of the receive buffer
func WithBufferSize(size int) SocketOption {
	return func(s *Socket) {
		s.bufferSize = size
	}
}

// WithNATSOptions passes options to nats.Connect
func WithNATSOptions(opts ...nats.Option) SocketOption {
	return func(s *Socket) {
		s.natsOpts = append(s.natsOpts, opts...)
	}
}

// NewSocket creates a socket for the server at url
func NewSocket(url string, options ...SocketOption) *Socket {
	s := &Socket{
		url:        url,
		prefix:     DefaultSubjectPrefix,
		bufferSize: 256,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With("scope", "nats")
	return s
}

// Subject returns the subject a channel is published on
func (s *Socket) Subject(ch contracts.Channel) (string, error) {
	key, err := transports.RoutingKey(ch)
	if err != nil {
		return "", err
	}
	return s.prefix + "." + key, nil
}

// Connect connects to the server and subscribes to the unit and room subjects
func (s *Socket) Connect(ctx context.Context, handshake network.Handshake, events network.SocketEvents) error {
	compID, err := contracts.ParseUnitID(handshake.ComponentID)
	if err != nil {
		return fmt.Errorf("invalid handshake: %w", err)
	}
	unitSubject, err := s.Subject(contracts.DirectChannel(compID))
	if err != nil {
		return err
	}
	roomSubject := s.prefix + "." + transports.RoomPrefix + ".>"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil && s.conn.IsConnected() {
		return nil
	}

	closed := make(chan struct{})
	var lastErr error
	var errMu sync.Mutex

	opts := append([]nats.Option{
		nats.Name(handshake.ComponentID),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			close(closed)
		}),
	}, s.natsOpts...)
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	conn, err := nats.Connect(s.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.url, err)
	}

	msgs := make(chan *nats.Msg, s.bufferSize)
	for _, subject := range []string{unitSubject, roomSubject} {
		if _, err := conn.ChanSubscribe(subject, msgs); err != nil {
			conn.Close()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
	}
	if err := conn.FlushWithContext(ctx); err != nil {
		conn.Close()
		return fmt.Errorf("failed to flush subscriptions: %w", err)
	}

	s.id = handshake.ComponentID
	s.conn = conn

	go func() {
		s.receiveLoop(handshake.ComponentID, msgs, closed, events)

		errMu.Lock()
		reason := lastErr
		errMu.Unlock()
		if events.OnDisconnect != nil {
			events.OnDisconnect(reason)
		}
	}()

	s.logger.Info("subscribed", "unit_subject", unitSubject, "room_subject", roomSubject)
	return nil
}

// Send publishes a frame on the subject of its target
func (s *Socket) Send(ctx context.Context, frame contracts.Envelope) error {
	subject, err := s.Subject(frame.Target)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn, id := s.conn, s.id
	s.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return ErrNotConnected
	}

	msg := nats.NewMsg(subject)
	msg.Header.Set(HeaderComponentID, id)
	msg.Header.Set(HeaderMessageName, frame.Name)
	msg.Data = frame.Data

	if err := conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close closes the connection
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return nil
}

func (s *Socket) receiveLoop(self string, msgs <-chan *nats.Msg, closed <-chan struct{}, events network.SocketEvents) {
	for {
		select {
		case <-closed:
			return
		case msg := <-msgs:
			name, ok := frameName(msg, self)
			if !ok || events.OnMessage == nil {
				continue
			}
			events.OnMessage(name, msg.Data)
		}
	}
}

// frameName returns the message name of msg, rejecting frames sent by self
func frameName(msg *nats.Msg, self string) (string, bool) {
	if msg.Header.Get(HeaderComponentID) == self {
		return "", false
	}
	name := msg.Header.Get(HeaderMessageName)
	return name, name != ""
}
