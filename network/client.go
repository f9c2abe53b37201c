package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/messaging"
	"github.com/glimte/unitbus/serialization"
)

// ClientState is the connection state of a client
type ClientState string

const (
	StateIdle            ClientState = "idle"
	StateConnecting      ClientState = "connecting"
	StateRunning         ClientState = "running"
	StateConnectionLost  ClientState = "connection-lost"
	StateConnectionError ClientState = "connection-error"
)

// MessageHandler receives the frames arriving at a client
type MessageHandler func(name string, data []byte)

// Client maintains the connection of a component to the server.
//
// Connection changes are emitted as local events (api.ClientConnectedEvent,
// api.ClientConnectionErrorEvent, api.ClientDisconnectedEvent). The client never
// reconnects by itself; call ConnectToServer again after a connection loss.
type Client struct {
	compID            contracts.UnitID
	socket            Socket
	builder           *messaging.MessageBuilder
	codec             serialization.MessageCodec
	connectionTimeout time.Duration
	logger            *slog.Logger
	metrics           messaging.MetricsCollector

	mu      sync.RWMutex
	state   ClientState
	handler MessageHandler
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithClientLogger sets the logger
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClientMetrics sets the metrics collector
func WithClientMetrics(metrics messaging.MetricsCollector) ClientOption {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithConnectionTimeout bounds the time ConnectToServer waits for the socket
func WithConnectionTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.connectionTimeout = timeout
	}
}

// NewClient creates a client for the given socket. Lifecycle events are built with builder.
func NewClient(socket Socket, builder *messaging.MessageBuilder, codec serialization.MessageCodec, options ...ClientOption) *Client {
	c := &Client{
		compID:            builder.ComponentID(),
		socket:            socket,
		builder:           builder,
		codec:             codec,
		connectionTimeout: 10 * time.Second,
		logger:            slog.Default(),
		metrics:           &messaging.NoOpMetricsCollector{},
		state:             StateIdle,
	}

	for _, opt := range options {
		opt(c)
	}

	c.logger = c.logger.With("scope", "client")
	return c
}

// State returns the connection state
func (c *Client) State() ClientState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the client can send messages
func (c *Client) IsConnected() bool {
	return c.State() == StateRunning
}

// SetMessageHandler sets the handler called for every received frame
func (c *Client) SetMessageHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// ConnectToServer establishes the connection. It does nothing if the client is already
// connected or connecting.
func (c *Client) ConnectToServer(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateRunning || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.logger.Info("connecting to server", "component_id", c.compID.String())

	connCtx, cancel := context.WithTimeout(ctx, c.connectionTimeout)
	defer cancel()

	err := c.socket.Connect(connCtx, NewHandshake(c.compID), SocketEvents{
		OnMessage:    c.onMessage,
		OnDisconnect: c.onDisconnect,
	})
	if err != nil {
		c.setState(StateConnectionError)
		c.logger.Warn("unable to connect to server", "reason", err)
		c.emit(ctx, &api.ClientConnectionErrorEvent{Reason: err.Error()})
		return fmt.Errorf("failed to connect to server: %w", err)
	}

	c.setState(StateRunning)
	c.logger.Info("connected to server")
	c.emit(ctx, &api.ClientConnectedEvent{})
	return nil
}

// SendMessage serializes a message and writes it to the socket. Messages are dropped
// silently while the client is not connected.
func (c *Client) SendMessage(ctx context.Context, msg contracts.Message) error {
	if !c.IsConnected() {
		c.metrics.RecordDropped(messaging.DropNotConnected)
		c.logger.Debug("not connected, dropping message", "message", msg.GetName(), "trace", msg.GetTrace())
		return nil
	}

	data, err := c.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", msg.GetName(), err)
	}

	c.logger.Debug("sending message", "message", msg.GetName(), "trace", msg.GetTrace(), "target", msg.GetTarget().String())

	frame := contracts.Envelope{
		Name:   msg.GetName(),
		Target: msg.GetTarget(),
		Data:   data,
	}
	if err := c.socket.Send(ctx, frame); err != nil {
		c.metrics.RecordDropped(messaging.DropSendFailed)
		return fmt.Errorf("failed to send message %s: %w", msg.GetName(), err)
	}
	return nil
}

// Close ends the connection
func (c *Client) Close() error {
	err := c.socket.Close()
	c.onDisconnect(nil)
	return err
}

func (c *Client) onMessage(name string, data []byte) {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler == nil {
		c.logger.Debug("no message handler set, dropping frame", "message", name)
		return
	}
	handler(name, data)
}

func (c *Client) onDisconnect(err error) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateConnectionLost
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("disconnected from server", "reason", err)
	} else {
		c.logger.Info("disconnected from server")
	}
	c.emit(context.Background(), &api.ClientDisconnectedEvent{})
}

func (c *Client) setState(state ClientState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
}

func (c *Client) emit(ctx context.Context, ev contracts.Event) {
	if err := messaging.BuildEvent(c.builder, ev, nil).Emit(ctx, contracts.LocalChannel()); err != nil {
		c.logger.Error("failed to emit client event", "event", fmt.Sprintf("%T", ev), "error", err)
	}
}
