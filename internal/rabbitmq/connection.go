package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ConnectionStateListener receives connection state change notifications
type ConnectionStateListener interface {
	OnConnected()
	// OnDisconnected is called once per established connection; err is nil for Close
	OnDisconnected(err error)
}

// ListenerFuncs adapts plain functions to ConnectionStateListener
type ListenerFuncs struct {
	Connected    func()
	Disconnected func(err error)
}

func (l ListenerFuncs) OnConnected() {
	if l.Connected != nil {
		l.Connected()
	}
}

func (l ListenerFuncs) OnDisconnected(err error) {
	if l.Disconnected != nil {
		l.Disconnected(err)
	}
}

// ConnectionManager owns a single RabbitMQ connection. A lost connection is reported to
// the state listeners and is not re-established; call Connect again to start over.
type ConnectionManager struct {
	url        string
	properties amqp.Table
	heartbeat  time.Duration
	logger     *slog.Logger
	dial       func(url string, cfg amqp.Config) (*amqp.Connection, error)

	mu          sync.RWMutex
	conn        *amqp.Connection
	isConnected bool

	listenersMu    sync.RWMutex
	stateListeners []ConnectionStateListener
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithConnectionName sets the connection name shown by the broker
func WithConnectionName(name string) ConnectionOption {
	return WithProperty("connection_name", name)
}

// WithProperty adds a client property sent during the AMQP handshake
func WithProperty(key string, value interface{}) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.properties[key] = value
	}
}

// WithHeartbeat sets the heartbeat interval
func WithHeartbeat(interval time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.heartbeat = interval
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:        url,
		properties: amqp.NewConnectionProperties(),
		heartbeat:  10 * time.Second,
		logger:     slog.Default(),
		dial:       amqp.DialConfig,
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

type dialResult struct {
	conn *amqp.Connection
	err  error
}

// Connect establishes the connection. It returns when the broker accepted the
// connection, the dial failed or ctx is done.
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	if cm.isConnected {
		cm.mu.Unlock()
		return nil
	}
	conn, err := cm.dialContext(ctx)
	if err != nil {
		cm.mu.Unlock()
		return err
	}
	cm.conn = conn
	cm.isConnected = true
	notifyClose := conn.NotifyClose(make(chan *amqp.Error, 1))
	cm.mu.Unlock()

	cm.logger.Info("connected to RabbitMQ", "url", SanitizeURL(cm.url))
	cm.notifyConnected()

	go cm.watch(conn, notifyClose)
	return nil
}

func (cm *ConnectionManager) dialContext(ctx context.Context) (*amqp.Connection, error) {
	cfg := amqp.Config{
		Properties: cm.properties,
		Heartbeat:  cm.heartbeat,
		Locale:     "en_US",
	}

	result := make(chan dialResult, 1)
	go func() {
		conn, err := cm.dial(cm.url, cfg)
		result <- dialResult{conn: conn, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return nil, &ConnectionError{Op: "connect", URL: SanitizeURL(cm.url), Err: r.err}
		}
		return r.conn, nil

	case <-ctx.Done():
		// Release a connection that completes after we gave up
		go func() {
			if r := <-result; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		err := ctx.Err()
		if err == context.DeadlineExceeded {
			err = ErrConnectionTimeout
		}
		return nil, &ConnectionError{Op: "connect", URL: SanitizeURL(cm.url), Err: err}
	}
}

// Channel opens a new channel on the current connection
func (cm *ConnectionManager) Channel() (*amqp.Channel, error) {
	conn, err := cm.GetConnection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, &ConnectionError{Op: "open channel", URL: SanitizeURL(cm.url), Err: err}
	}
	return ch, nil
}

// GetConnection returns the current connection
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.isConnected || cm.conn == nil || cm.conn.IsClosed() {
		return nil, ErrNotConnected
	}
	return cm.conn, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isConnected
}

// Close closes the connection. Listeners receive OnDisconnected(nil).
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	conn := cm.conn
	cm.mu.Unlock()

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && err != amqp.ErrClosed {
		return err
	}
	return nil
}

// watch waits for the end of conn and reports it
func (cm *ConnectionManager) watch(conn *amqp.Connection, notifyClose <-chan *amqp.Error) {
	amqpErr, ok := <-notifyClose

	cm.mu.Lock()
	if cm.conn == conn {
		cm.conn = nil
		cm.isConnected = false
	}
	cm.mu.Unlock()

	var err error
	if ok && amqpErr != nil {
		err = amqpErr
		cm.logger.Error("connection closed", "error", amqpErr)
	} else {
		cm.logger.Info("connection closed")
	}
	cm.notifyDisconnected(err)
}

// AddStateListener adds a connection state listener
func (cm *ConnectionManager) AddStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()
	cm.stateListeners = append(cm.stateListeners, listener)
}

func (cm *ConnectionManager) listeners() []ConnectionStateListener {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()
	return append([]ConnectionStateListener(nil), cm.stateListeners...)
}

func (cm *ConnectionManager) notifyConnected() {
	for _, listener := range cm.listeners() {
		listener.OnConnected()
	}
}

func (cm *ConnectionManager) notifyDisconnected(err error) {
	for _, listener := range cm.listeners() {
		listener.OnDisconnected(err)
	}
}
