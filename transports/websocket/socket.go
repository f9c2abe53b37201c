package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/network"
)

// Socket is a network.Socket connected to a Server
type Socket struct {
	url    string
	logger *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	closing bool
	writeMu sync.Mutex
}

// SocketOption configures the Socket
type SocketOption func(*Socket)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) SocketOption {
	return func(s *Socket) {
		s.logger = logger
	}
}

// NewSocket creates a socket for the server at url (ws:// or wss://)
func NewSocket(url string, options ...SocketOption) *Socket {
	s := &Socket{
		url:    url,
		logger: slog.Default(),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With("scope", "websocket")
	return s
}

// Connect dials the server and presents the handshake
func (s *Socket) Connect(ctx context.Context, handshake network.Handshake, events network.SocketEvents) error {
	if _, err := contracts.ParseUnitID(handshake.ComponentID); err != nil {
		return fmt.Errorf("invalid handshake: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	conn, br, _, err := ws.Dial(ctx, s.url)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", s.url, err)
	}
	var in io.Reader = conn
	if br != nil {
		in = br
	}
	rw := readWriter{in, lockedWriter{&s.writeMu, conn}}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := s.handshake(rw, handshake); err != nil {
		_ = conn.Close()
		return err
	}
	_ = conn.SetDeadline(noDeadline)

	s.conn = conn
	s.closing = false

	go s.receiveLoop(conn, rw, br, events)
	return nil
}

func (s *Socket) handshake(rw io.ReadWriter, handshake network.Handshake) error {
	data, err := json.Marshal(handshake)
	if err != nil {
		return err
	}
	if err := wsutil.WriteClientText(rw, data); err != nil {
		return fmt.Errorf("failed to send handshake: %w", err)
	}

	data, err = wsutil.ReadServerText(rw)
	if err != nil {
		return fmt.Errorf("failed to read handshake reply: %w", err)
	}
	var reply handshakeReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("invalid handshake reply: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("%w: %s", ErrRejected, reply.Error)
	}
	return nil
}

// Send writes a frame
func (s *Socket) Send(ctx context.Context, frame contracts.Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		defer conn.SetWriteDeadline(noDeadline)
	}
	return wsutil.WriteClientText(conn, data)
}

// Close sends a close frame and closes the connection
func (s *Socket) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.closing = true
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	_ = wsutil.WriteClientMessage(conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
	s.writeMu.Unlock()
	return conn.Close()
}

func (s *Socket) receiveLoop(conn net.Conn, rw io.ReadWriter, br *bufio.Reader, events network.SocketEvents) {
	var err error
	for {
		var data []byte
		data, err = wsutil.ReadServerText(rw)
		if err != nil {
			break
		}

		var frame contracts.Envelope
		if jerr := json.Unmarshal(data, &frame); jerr != nil {
			s.logger.Warn("dropping malformed frame", "error", jerr)
			continue
		}
		if events.OnMessage != nil {
			events.OnMessage(frame.Name, frame.Data)
		}
	}
	if br != nil {
		ws.PutReader(br)
	}

	s.mu.Lock()
	closing := s.closing
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()

	_ = conn.Close()
	if closing || isNormalClosure(err) {
		err = nil
	}
	if events.OnDisconnect != nil {
		events.OnDisconnect(err)
	}
}
