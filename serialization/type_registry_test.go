package serialization

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/glimte/unitbus/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test message types
type TestCommand struct {
	contracts.BaseCommand
	Title string `json:"title"`
}

type TestReply struct {
	contracts.BaseCommandReply
	ProjectID int `json:"project_id"`
}

type TestEvent struct {
	contracts.BaseEvent
	Reason string `json:"reason"`
}

func newTestRegistry(t *testing.T) *DefaultTypeRegistry {
	t.Helper()
	registry := NewTypeRegistry()
	require.NoError(t, RegisterMessage[TestCommand](registry, "command/test/create"))
	require.NoError(t, RegisterMessage[TestReply](registry, "command/test/create/reply"))
	require.NoError(t, RegisterMessage[TestEvent](registry, "event/test/happened"))
	return registry
}

func TestDefaultTypeRegistry(t *testing.T) {
	t.Run("creates new registry", func(t *testing.T) {
		registry := NewTypeRegistry()
		assert.NotNil(t, registry)
		assert.NotNil(t, registry.factories)
		assert.NotNil(t, registry.names)
		assert.False(t, registry.Frozen())
	})

	t.Run("registers type with name", func(t *testing.T) {
		registry := NewTypeRegistry()

		err := registry.Register("command/test/create", func() contracts.Message { return &TestCommand{} })
		require.NoError(t, err)

		assert.True(t, registry.IsRegistered("command/test/create"))
		assert.False(t, registry.IsRegistered("command/test/delete"))
	})

	t.Run("rejects empty type name", func(t *testing.T) {
		registry := NewTypeRegistry()

		err := registry.Register("", func() contracts.Message { return &TestCommand{} })
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "type name cannot be empty")
	})

	t.Run("rejects nil factory", func(t *testing.T) {
		registry := NewTypeRegistry()

		err := registry.Register("command/test/create", nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "factory cannot be nil")
	})

	t.Run("rejects factory returning nil", func(t *testing.T) {
		registry := NewTypeRegistry()

		err := registry.Register("command/test/create", func() contracts.Message { return nil })
		assert.Error(t, err)
	})

	t.Run("rejects duplicate name", func(t *testing.T) {
		registry := newTestRegistry(t)

		err := RegisterMessage[TestEvent](registry, "command/test/create")
		assert.ErrorIs(t, err, contracts.ErrDuplicateMessageType)
	})

	t.Run("rejects the same type under a second name", func(t *testing.T) {
		registry := newTestRegistry(t)

		err := RegisterMessage[TestCommand](registry, "command/test/other")
		assert.ErrorIs(t, err, contracts.ErrDuplicateMessageType)
		assert.False(t, registry.IsRegistered("command/test/other"))
	})

	t.Run("rejects registration after freeze", func(t *testing.T) {
		registry := NewTypeRegistry()
		registry.Freeze()

		err := RegisterMessage[TestCommand](registry, "command/test/create")
		assert.ErrorIs(t, err, contracts.ErrRegistryFrozen)
		assert.True(t, registry.Frozen())
	})

	t.Run("resolves registered names", func(t *testing.T) {
		registry := newTestRegistry(t)

		factory, err := registry.Resolve("command/test/create/reply")
		require.NoError(t, err)

		msg := factory()
		_, ok := msg.(*TestReply)
		assert.True(t, ok)
	})

	t.Run("fails on unknown names", func(t *testing.T) {
		registry := newTestRegistry(t)

		_, err := registry.Resolve("command/test/unknown")
		assert.ErrorIs(t, err, contracts.ErrUnknownMessageType)

		_, err = registry.CreateInstance("command/test/unknown")
		assert.ErrorIs(t, err, contracts.ErrUnknownMessageType)
	})

	t.Run("creates fresh instances", func(t *testing.T) {
		registry := newTestRegistry(t)

		first, err := registry.CreateInstance("command/test/create")
		require.NoError(t, err)
		second, err := registry.CreateInstance("command/test/create")
		require.NoError(t, err)

		assert.NotSame(t, first, second)
	})

	t.Run("gets name of a value", func(t *testing.T) {
		registry := newTestRegistry(t)

		name, err := registry.NameOf(&TestEvent{})
		require.NoError(t, err)
		assert.Equal(t, "event/test/happened", name)

		_, err = NewTypeRegistry().NameOf(&TestEvent{})
		assert.ErrorIs(t, err, contracts.ErrUnknownMessageType)
	})

	t.Run("lists types sorted", func(t *testing.T) {
		registry := newTestRegistry(t)

		assert.Equal(t, []string{
			"command/test/create",
			"command/test/create/reply",
			"event/test/happened",
		}, registry.ListTypes())
	})

	t.Run("lookups after freeze", func(t *testing.T) {
		registry := newTestRegistry(t)
		registry.Freeze()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.True(t, registry.IsRegistered("event/test/happened"))
				name, err := registry.NameOf(&TestCommand{})
				assert.NoError(t, err)
				assert.Equal(t, "command/test/create", name)
			}()
		}
		wg.Wait()
	})
}

func TestGlobalRegistry(t *testing.T) {
	assert.Same(t, Global(), Global())

	MustRegister("event/test/global", func() contracts.Message { return &struct{ contracts.BaseEvent }{} })
	assert.True(t, Global().IsRegistered("event/test/global"))

	assert.Panics(t, func() {
		MustRegister("event/test/global", func() contracts.Message { return &TestEvent{} })
	})
}

func TestJSONCodec(t *testing.T) {
	registry := newTestRegistry(t)
	codec := NewJSONCodec(registry)

	stamped := func(t *testing.T, msg contracts.Message, name string) {
		t.Helper()
		require.NoError(t, contracts.Stamp(msg, contracts.BaseMessage{
			Name:   name,
			Origin: contracts.NewUnitID("web", "frontend"),
			Sender: contracts.NewUnitID("web", "frontend"),
		}))
	}

	t.Run("round trips a command", func(t *testing.T) {
		cmd := &TestCommand{Title: "unitbus"}
		stamped(t, cmd, "command/test/create")
		require.NoError(t, contracts.Address(cmd, contracts.DirectChannel(contracts.NewUnitID("infra", "gate"))))

		data, err := codec.Marshal(cmd)
		require.NoError(t, err)

		var raw map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &raw))
		assert.Equal(t, "command/test/create", raw["name"])
		assert.Equal(t, "unitbus", raw["title"])
		assert.Equal(t, cmd.GetTrace(), raw["trace"])

		decoded, err := codec.Unmarshal("command/test/create", data)
		require.NoError(t, err)

		got, ok := decoded.(*TestCommand)
		require.True(t, ok)
		assert.Equal(t, cmd.Title, got.Title)
		assert.Equal(t, cmd.GetTrace(), got.GetTrace())
		assert.Equal(t, cmd.GetTarget().String(), got.GetTarget().String())
		assert.True(t, got.GetOrigin().Equals(cmd.GetOrigin()))
	})

	t.Run("round trips a reply", func(t *testing.T) {
		reply := &TestReply{ProjectID: 7}
		stamped(t, reply, "command/test/create/reply")
		contracts.StampReply(reply, true, "")

		data, err := codec.Marshal(reply)
		require.NoError(t, err)

		decoded, err := codec.Unmarshal("command/test/create/reply", data)
		require.NoError(t, err)

		got := decoded.(*TestReply)
		assert.Equal(t, 7, got.ProjectID)
		assert.True(t, got.IsSuccess())
		assert.Equal(t, reply.GetUnique(), got.GetUnique())
	})

	t.Run("rejects unnamed messages", func(t *testing.T) {
		_, err := codec.Marshal(&TestCommand{})
		assert.Error(t, err)

		_, err = codec.Marshal(nil)
		assert.Error(t, err)
	})

	t.Run("rejects unknown names", func(t *testing.T) {
		_, err := codec.Unmarshal("command/test/unknown", []byte(`{"name":"command/test/unknown"}`))
		assert.ErrorIs(t, err, contracts.ErrUnknownMessageType)
	})

	t.Run("rejects name mismatch", func(t *testing.T) {
		_, err := codec.Unmarshal("command/test/create", []byte(`{"name":"event/test/happened"}`))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "name mismatch")
	})

	t.Run("rejects malformed data", func(t *testing.T) {
		_, err := codec.Unmarshal("command/test/create", []byte(`{"name":`))
		assert.Error(t, err)

		_, err = codec.Unmarshal("command/test/create", nil)
		assert.Error(t, err)
	})
}
