// Package websocket implements network.Socket over a WebSocket stream and the Server
// that routes between the connected units.
//
// After the upgrade the client sends its handshake ({"component_id": ...}) as the first
// text frame and the server answers {"ok": true} or {"ok": false, "error": ...}. Every
// following text frame is a contracts.Envelope.
package websocket

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

var (
	// ErrNotConnected is returned when sending through a closed socket
	ErrNotConnected = errors.New("websocket: not connected")

	// ErrRejected is returned when the server refuses the handshake
	ErrRejected = errors.New("websocket: handshake rejected")
)

type handshakeReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

var noDeadline time.Time

// lockedWriter serializes the control frame replies written while reading with the
// data frames written by senders
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

type readWriter struct {
	io.Reader
	io.Writer
}

func isNormalClosure(err error) bool {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return closed.Code == ws.StatusNormalClosure
	}
	return false
}
