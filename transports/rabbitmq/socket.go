// Package rabbitmq implements network.Socket on a RabbitMQ topic exchange.
//
// Each unit consumes from a private auto-delete queue bound to its own unit key and to
// every room. Frames travel as the message JSON in the body with the message name in the
// AMQP type property; the sender id rides in the component_id header so a unit can skip
// its own room frames.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/internal/rabbitmq"
	"github.com/glimte/unitbus/network"
	"github.com/glimte/unitbus/transports"
)

const (
	// DefaultExchange is the topic exchange all units share
	DefaultExchange = "unitbus"

	// HeaderComponentID carries the id of the sending unit
	HeaderComponentID = "component_id"
)

// Socket is a network.Socket backed by RabbitMQ
type Socket struct {
	url         string
	exchange    string
	logger      *slog.Logger
	connOptions []rabbitmq.ConnectionOption

	mu      sync.Mutex
	id      string
	manager *rabbitmq.ConnectionManager
	pub     *amqp.Channel
	pubMu   sync.Mutex
	cause   error
	closing bool
}

// SocketOption configures the Socket
type SocketOption func(*Socket)

// WithExchange sets the exchange name
func WithExchange(exchange string) SocketOption {
	return func(s *Socket) {
		s.exchange = exchange
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) SocketOption {
	return func(s *Socket) {
		s.logger = logger
	}
}

// WithConnectionOptions passes options to the underlying connection manager
func WithConnectionOptions(opts ...rabbitmq.ConnectionOption) SocketOption {
	return func(s *Socket) {
		s.connOptions = append(s.connOptions, opts...)
	}
}

// NewSocket creates a socket for the broker at url
func NewSocket(url string, options ...SocketOption) *Socket {
	s := &Socket{
		url:      url,
		exchange: DefaultExchange,
		logger:   slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With("scope", "rabbitmq")
	return s
}

// Connect opens the connection, declares the unit topology and starts consuming
func (s *Socket) Connect(ctx context.Context, handshake network.Handshake, events network.SocketEvents) error {
	compID, err := contracts.ParseUnitID(handshake.ComponentID)
	if err != nil {
		return fmt.Errorf("invalid handshake: %w", err)
	}
	unitKey, err := transports.UnitKey(compID)
	if err != nil {
		return err
	}
	roomKey := transports.RoomPrefix + ".#"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manager != nil && s.manager.IsConnected() {
		return nil
	}

	opts := append([]rabbitmq.ConnectionOption{
		rabbitmq.WithLogger(s.logger),
		rabbitmq.WithConnectionName(handshake.ComponentID),
		rabbitmq.WithProperty(HeaderComponentID, handshake.ComponentID),
	}, s.connOptions...)
	manager := rabbitmq.NewConnectionManager(s.url, opts...)

	var established atomic.Bool
	loopDone := make(chan struct{})
	manager.AddStateListener(rabbitmq.ListenerFuncs{
		Disconnected: func(err error) {
			if !established.Load() {
				return
			}
			<-loopDone
			if events.OnDisconnect != nil {
				events.OnDisconnect(s.disconnectReason(err))
			}
		},
	})

	if err := manager.Connect(ctx); err != nil {
		close(loopDone)
		return err
	}

	deliveries, err := s.setup(manager, unitKey, roomKey)
	if err != nil {
		close(loopDone)
		_ = manager.Close()
		return err
	}

	s.id = handshake.ComponentID
	s.manager = manager
	s.cause = nil
	s.closing = false

	established.Store(true)
	go s.receiveLoop(manager, handshake.ComponentID, deliveries, loopDone, events)

	s.logger.Info("joined exchange", "exchange", s.exchange, "unit_key", unitKey)
	return nil
}

func (s *Socket) setup(manager *rabbitmq.ConnectionManager, keys ...string) (<-chan amqp.Delivery, error) {
	ch, err := manager.Channel()
	if err != nil {
		return nil, err
	}
	queue, err := rabbitmq.DeclareTopology(ch, rabbitmq.UnitTopology(s.exchange, keys...))
	if err != nil {
		return nil, err
	}
	deliveries, err := ch.Consume(queue, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %s: %w", queue, err)
	}

	pub, err := manager.Channel()
	if err != nil {
		return nil, err
	}
	s.pubMu.Lock()
	s.pub = pub
	s.pubMu.Unlock()
	return deliveries, nil
}

// Send publishes a frame with the routing key of its target
func (s *Socket) Send(ctx context.Context, frame contracts.Envelope) error {
	key, err := transports.RoutingKey(frame.Target)
	if err != nil {
		return err
	}

	s.mu.Lock()
	id := s.id
	s.mu.Unlock()

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if s.pub == nil {
		return rabbitmq.ErrNotConnected
	}
	if s.pub.IsClosed() {
		return rabbitmq.ErrChannelClosed
	}

	err = s.pub.PublishWithContext(ctx, s.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        frame.Name,
		Timestamp:   time.Now(),
		Headers:     amqp.Table{HeaderComponentID: id},
		Body:        frame.Data,
	})
	if err != nil {
		return &rabbitmq.PublishError{Exchange: s.exchange, RoutingKey: key, Err: err}
	}
	return nil
}

// Close closes the connection; the disconnect callback follows asynchronously
func (s *Socket) Close() error {
	s.mu.Lock()
	manager := s.manager
	s.closing = true
	s.mu.Unlock()

	s.pubMu.Lock()
	s.pub = nil
	s.pubMu.Unlock()

	if manager == nil {
		return nil
	}
	return manager.Close()
}

func (s *Socket) receiveLoop(manager *rabbitmq.ConnectionManager, self string, deliveries <-chan amqp.Delivery, done chan<- struct{}, events network.SocketEvents) {
	for d := range deliveries {
		name, ok := frameName(d, self)
		if !ok || events.OnMessage == nil {
			continue
		}
		events.OnMessage(name, d.Body)
	}
	close(done)

	s.mu.Lock()
	if s.cause == nil && !s.closing {
		s.cause = rabbitmq.ErrConsumerCancelled
	}
	s.mu.Unlock()

	// A cancelled consumer leaves the connection open
	_ = manager.Close()
}

func (s *Socket) disconnectReason(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closing {
		return nil
	}
	if err != nil {
		return err
	}
	return s.cause
}

// frameName returns the message name of a delivery, rejecting frames sent by self
func frameName(d amqp.Delivery, self string) (string, bool) {
	if sender, _ := d.Headers[HeaderComponentID].(string); sender == self {
		return "", false
	}
	if d.Type == "" {
		return "", false
	}
	return d.Type, true
}
