package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/network"
)

// Server accepts unit connections and routes their frames: direct frames to the
// addressed unit, room frames to every other unit. Frames for absent units are dropped.
type Server struct {
	logger           *slog.Logger
	handshakeTimeout time.Duration

	mu    sync.RWMutex
	peers map[string]*peer
}

type peer struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
}

func (p *peer) write(data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return wsutil.WriteServerText(p.conn, data)
}

// ServerOption configures the Server
type ServerOption func(*Server)

// WithServerLogger sets the logger
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHandshakeTimeout bounds the wait for the client handshake
func WithHandshakeTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.handshakeTimeout = timeout
	}
}

// NewServer creates a server without connections
func NewServer(options ...ServerOption) *Server {
	s := &Server{
		logger:           slog.Default(),
		handshakeTimeout: 5 * time.Second,
		peers:            make(map[string]*peer),
	}
	for _, opt := range options {
		opt(s)
	}
	s.logger = s.logger.With("scope", "websocket-server")
	return s
}

// Connected returns the ids of the connected units
func (s *Server) Connected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	return ids
}

// ServeHTTP upgrades the request and serves the connection until it ends
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, rw, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	var in io.Reader = conn
	if rw != nil {
		in = rw.Reader
	}

	p, err := s.accept(conn, in)
	if err != nil {
		s.logger.Warn("handshake failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer s.unregister(p)

	reader := readWriter{in, lockedWriter{&p.writeMu, conn}}

	s.logger.Info("unit connected", "component_id", p.id)
	for {
		data, err := wsutil.ReadClientText(reader)
		if err != nil {
			if !isNormalClosure(err) && !errors.Is(err, io.EOF) {
				s.logger.Debug("connection ended", "component_id", p.id, "error", err)
			}
			break
		}
		s.route(p.id, data)
	}
	s.logger.Info("unit disconnected", "component_id", p.id)
}

func (s *Server) accept(conn net.Conn, in io.Reader) (*peer, error) {
	_ = conn.SetDeadline(time.Now().Add(s.handshakeTimeout))
	defer conn.SetDeadline(noDeadline)

	data, err := wsutil.ReadClientText(readWriter{in, conn})
	if err != nil {
		return nil, err
	}

	var hs network.Handshake
	if err := json.Unmarshal(data, &hs); err != nil {
		return nil, s.reject(conn, fmt.Errorf("invalid handshake: %w", err))
	}
	if _, err := contracts.ParseUnitID(hs.ComponentID); err != nil {
		return nil, s.reject(conn, err)
	}

	p := &peer{id: hs.ComponentID, conn: conn}
	if err := s.register(p); err != nil {
		return nil, s.reject(conn, err)
	}

	reply, _ := json.Marshal(handshakeReply{OK: true})
	if err := p.write(reply); err != nil {
		s.unregister(p)
		return nil, err
	}
	return p, nil
}

func (s *Server) reject(conn net.Conn, reason error) error {
	reply, _ := json.Marshal(handshakeReply{Error: reason.Error()})
	_ = wsutil.WriteServerText(conn, reply)
	return reason
}

func (s *Server) register(p *peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.peers[p.id]; exists {
		return fmt.Errorf("component %s is already connected", p.id)
	}
	s.peers[p.id] = p
	return nil
}

func (s *Server) unregister(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.peers[p.id] == p {
		delete(s.peers, p.id)
	}
}

func (s *Server) route(from string, data []byte) {
	var frame contracts.Envelope
	if err := json.Unmarshal(data, &frame); err != nil {
		s.logger.Warn("dropping malformed frame", "component_id", from, "error", err)
		return
	}

	s.mu.RLock()
	var receivers []*peer
	switch {
	case frame.Target.IsDirect() && frame.Target.TargetID != nil:
		if p, ok := s.peers[frame.Target.TargetID.String()]; ok {
			receivers = append(receivers, p)
		}
	case frame.Target.IsRoom():
		for id, p := range s.peers {
			if id != from {
				receivers = append(receivers, p)
			}
		}
	}
	s.mu.RUnlock()

	if len(receivers) == 0 {
		s.logger.Debug("no receiver for frame", "message", frame.Name, "target", frame.Target.String())
	}
	for _, p := range receivers {
		if err := p.write(data); err != nil {
			s.logger.Warn("failed to forward frame", "component_id", p.id, "error", err)
		}
	}
}

// Disconnect drops the connection of a unit
func (s *Server) Disconnect(id string) {
	s.mu.RLock()
	p, ok := s.peers[id]
	s.mu.RUnlock()

	if ok {
		_ = p.conn.Close()
	}
}

// Close drops every connection
func (s *Server) Close() error {
	s.mu.RLock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	for _, p := range peers {
		p.writeMu.Lock()
		_ = wsutil.WriteServerMessage(p.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusGoingAway, ""))
		p.writeMu.Unlock()
		_ = p.conn.Close()
	}
	return nil
}
