package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/internal/clock"
	"github.com/glimte/unitbus/serialization"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Test message types
type ListProjectsCommand struct {
	contracts.BaseCommand
}

type ListProjectsReply struct {
	contracts.BaseCommandReply
	Projects []string `json:"projects"`
}

type CreateProjectCommand struct {
	contracts.BaseCommand
	Title       string `json:"title"`
	Description string `json:"description"`
}

type CreateProjectReply struct {
	contracts.BaseCommandReply
	ProjectID int `json:"project_id"`
}

type DeleteProjectCommand struct {
	contracts.BaseCommand
	ProjectID int `json:"project_id"`
}

type DeleteProjectReply struct {
	contracts.BaseCommandReply
}

type ProjectsChangedEvent struct {
	contracts.BaseEvent
}

var (
	frontendID = contracts.NewUnitID("web", "frontend")
	gateID     = contracts.NewUnitID("infra", "gate").WithInstance("default")
)

func newTestRegistry(t *testing.T) *serialization.DefaultTypeRegistry {
	t.Helper()

	registry := serialization.NewTypeRegistry()
	require.NoError(t, serialization.RegisterMessage[ListProjectsCommand](registry, "command/project/list"))
	require.NoError(t, serialization.RegisterMessage[ListProjectsReply](registry, "command/project/list/reply"))
	require.NoError(t, serialization.RegisterMessage[CreateProjectCommand](registry, "command/project/create"))
	require.NoError(t, serialization.RegisterMessage[CreateProjectReply](registry, "command/project/create/reply"))
	require.NoError(t, serialization.RegisterMessage[DeleteProjectCommand](registry, "command/project/delete"))
	require.NoError(t, serialization.RegisterMessage[DeleteProjectReply](registry, "command/project/delete/reply"))
	require.NoError(t, serialization.RegisterMessage[ProjectsChangedEvent](registry, "event/project/changed"))
	registry.Freeze()
	return registry
}

func newFakeClock() *clock.Fake {
	return clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}

func newTestBus(t *testing.T, compID contracts.UnitID, options ...BusOption) (*MessageBus, *MessageService) {
	t.Helper()

	options = append([]BusOption{WithBusRegistry(newTestRegistry(t))}, options...)
	bus := NewMessageBus(compID, options...)
	svc := NewMessageService("test", bus)
	require.True(t, bus.AddService(svc))
	return bus, svc
}

// stampedCommand returns a command stamped as if sent by sender
func stampedCommand(t *testing.T, name string, cmd contracts.Command, sender contracts.UnitID) {
	t.Helper()
	require.NoError(t, contracts.Stamp(cmd, contracts.BaseMessage{
		Name:   name,
		Origin: sender,
		Sender: sender,
	}))
}

// recordingRemote records messages handed to the network
type recordingRemote struct {
	mu   sync.Mutex
	sent []contracts.Message
	err  error
}

func (r *recordingRemote) SendMessage(ctx context.Context, msg contracts.Message, meta MetaInformation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingRemote) messages() []contracts.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]contracts.Message{}, r.sent...)
}

// mockMetrics is a testify mock of MetricsCollector
type mockMetrics struct {
	mock.Mock
}

func (m *mockMetrics) RecordEmit(messageName string, channel contracts.ChannelKind) {
	m.Called(messageName, channel)
}

func (m *mockMetrics) RecordDispatch(messageName string, duration time.Duration, handled bool) {
	m.Called(messageName, duration, handled)
}

func (m *mockMetrics) RecordHandlerFailure(messageName string, filter string) {
	m.Called(messageName, filter)
}

func (m *mockMetrics) RecordCommandOutcome(messageName string, failType contracts.CommandFailType, duration time.Duration) {
	m.Called(messageName, failType, duration)
}

func (m *mockMetrics) SetPendingCommands(count int) {
	m.Called(count)
}

func (m *mockMetrics) RecordDropped(reason string) {
	m.Called(reason)
}

// allowAll accepts every call that the test does not assert on
func (m *mockMetrics) allowAll() {
	m.On("RecordEmit", mock.Anything, mock.Anything).Maybe()
	m.On("RecordDispatch", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("RecordHandlerFailure", mock.Anything, mock.Anything).Maybe()
	m.On("RecordCommandOutcome", mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("SetPendingCommands", mock.Anything).Maybe()
	m.On("RecordDropped", mock.Anything).Maybe()
}
