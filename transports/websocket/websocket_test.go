package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/network"
)

type frame struct {
	name string
	data string
}

type peerRecorder struct {
	frames       chan frame
	disconnected chan error
}

func newPeerRecorder() *peerRecorder {
	return &peerRecorder{
		frames:       make(chan frame, 16),
		disconnected: make(chan error, 1),
	}
}

func (r *peerRecorder) events() network.SocketEvents {
	return network.SocketEvents{
		OnMessage:    func(name string, data []byte) { r.frames <- frame{name, string(data)} },
		OnDisconnect: func(err error) { r.disconnected <- err },
	}
}

func (r *peerRecorder) next(t *testing.T) frame {
	t.Helper()
	select {
	case f := <-r.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return frame{}
	}
}

func (r *peerRecorder) none(t *testing.T) {
	t.Helper()
	select {
	case f := <-r.frames:
		t.Fatalf("unexpected frame %s", f.name)
	case <-time.After(100 * time.Millisecond):
	}
}

func startServer(t *testing.T) (*Server, string) {
	t.Helper()
	server := NewServer()
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		_ = server.Close()
		httpServer.Close()
	})
	return server, "ws" + strings.TrimPrefix(httpServer.URL, "http")
}

func connect(t *testing.T, url, id string) (*Socket, *peerRecorder) {
	t.Helper()
	rec := newPeerRecorder()
	socket := NewSocket(url)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, socket.Connect(ctx, network.Handshake{ComponentID: id}, rec.events()))
	return socket, rec
}

func TestServerRouting(t *testing.T) {
	server, url := startServer(t)

	gate, gateRec := connect(t, url, "infra/gate")
	front, frontRec := connect(t, url, "web/frontend")
	_, otherRec := connect(t, url, "web/frontend/2")
	defer gate.Close()
	defer front.Close()

	require.Eventually(t, func() bool { return len(server.Connected()) == 3 }, time.Second, 10*time.Millisecond)

	t.Run("direct frames reach only the target", func(t *testing.T) {
		err := front.Send(context.Background(), contracts.Envelope{
			Name:   "ListProjectsCommand",
			Target: contracts.DirectChannel(contracts.NewUnitID("infra", "gate")),
			Data:   json.RawMessage(`{"name":"ListProjectsCommand"}`),
		})
		require.NoError(t, err)

		f := gateRec.next(t)
		assert.Equal(t, "ListProjectsCommand", f.name)
		assert.JSONEq(t, `{"name":"ListProjectsCommand"}`, f.data)
		otherRec.none(t)
	})

	t.Run("room frames reach everyone but the sender", func(t *testing.T) {
		err := gate.Send(context.Background(), contracts.Envelope{
			Name:   "ProjectsChangedEvent",
			Target: contracts.RoomChannel("projects"),
			Data:   json.RawMessage(`{}`),
		})
		require.NoError(t, err)

		assert.Equal(t, "ProjectsChangedEvent", frontRec.next(t).name)
		assert.Equal(t, "ProjectsChangedEvent", otherRec.next(t).name)
		gateRec.none(t)
	})

	t.Run("frames for absent units are dropped", func(t *testing.T) {
		err := front.Send(context.Background(), contracts.Envelope{
			Name:   "PingCommand",
			Target: contracts.DirectChannel(contracts.NewUnitID("infra", "absent")),
			Data:   json.RawMessage(`{}`),
		})
		require.NoError(t, err)
		gateRec.none(t)
	})

	t.Run("frames keep their order", func(t *testing.T) {
		target := contracts.DirectChannel(contracts.NewUnitID("infra", "gate"))
		for i := 0; i < 20; i++ {
			data, _ := json.Marshal(map[string]int{"seq": i})
			require.NoError(t, front.Send(context.Background(), contracts.Envelope{Name: "Seq", Target: target, Data: data}))
		}
		for i := 0; i < 20; i++ {
			var got map[string]int
			require.NoError(t, json.Unmarshal([]byte(gateRec.next(t).data), &got))
			assert.Equal(t, i, got["seq"])
		}
	})
}

func TestHandshake(t *testing.T) {
	_, url := startServer(t)

	t.Run("duplicate units are rejected", func(t *testing.T) {
		first, _ := connect(t, url, "infra/gate")
		defer first.Close()

		err := NewSocket(url).Connect(context.Background(), network.Handshake{ComponentID: "infra/gate"}, network.SocketEvents{})
		assert.ErrorIs(t, err, ErrRejected)
	})

	t.Run("invalid component id is refused locally", func(t *testing.T) {
		err := NewSocket(url).Connect(context.Background(), network.Handshake{ComponentID: "gate"}, network.SocketEvents{})
		assert.Error(t, err)
	})

	t.Run("unreachable server", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := NewSocket("ws://127.0.0.1:1/").Connect(ctx, network.Handshake{ComponentID: "infra/gate"}, network.SocketEvents{})
		assert.Error(t, err)
	})
}

func TestDisconnect(t *testing.T) {
	server, url := startServer(t)

	t.Run("close reports a regular disconnect", func(t *testing.T) {
		socket, rec := connect(t, url, "web/frontend")
		require.NoError(t, socket.Close())

		select {
		case err := <-rec.disconnected:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("disconnect not reported")
		}

		err := socket.Send(context.Background(), contracts.Envelope{Name: "PingCommand", Target: contracts.RoomChannel("x")})
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("server drop reports an error", func(t *testing.T) {
		_, rec := connect(t, url, "infra/gate")
		require.Eventually(t, func() bool {
			for _, id := range server.Connected() {
				if id == "infra/gate" {
					return true
				}
			}
			return false
		}, time.Second, 10*time.Millisecond)

		server.Disconnect("infra/gate")

		select {
		case err := <-rec.disconnected:
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("disconnect not reported")
		}
	})
}
