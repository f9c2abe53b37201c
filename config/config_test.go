package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glimte/unitbus/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "unitbus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func env(values map[string]string) config.Option {
	return config.WithLookupEnv(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})
}

const sampleConfig = `
component:
  name: gate
  instance: eu-1
network:
  client:
    transport: websocket
    server_address: ws://localhost:8080/ws
    connection_timeout: 3
messaging:
  command_timeout: 5s
logging:
  level: debug
`

func TestLookupOrder(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := config.Load(path, env(nil))
		require.NoError(t, err)

		assert.Equal(t, "eu-1", cfg.String(config.ComponentInstance))
		assert.Equal(t, "debug", cfg.String(config.LoggingLevel))
		assert.Equal(t, "json", cfg.String(config.LoggingFormat), "default")
		assert.Equal(t, 5*time.Second, cfg.Duration(config.MessagingCommandTimeout))
		assert.Equal(t, 3*time.Second, cfg.Duration(config.NetworkClientConnectionTimeout), "plain numbers are seconds")
	})

	t.Run("environment overrides file", func(t *testing.T) {
		cfg, err := config.Load(path, env(map[string]string{
			"UNITBUS_COMPONENT_INSTANCE":        "eu-2",
			"UNITBUS_MESSAGING_COMMAND_TIMEOUT": "250ms",
			"UNITBUS_NETWORK_SERVER_ENABLED":    "yes",
		}))
		require.NoError(t, err)

		assert.Equal(t, "eu-2", cfg.String(config.ComponentInstance))
		assert.Equal(t, 250*time.Millisecond, cfg.Duration(config.MessagingCommandTimeout))
		assert.True(t, cfg.Bool(config.NetworkServerEnabled))
	})

	t.Run("custom prefix", func(t *testing.T) {
		cfg := config.New(config.WithEnvPrefix("rds"), env(map[string]string{"RDS_HTTP_ADDRESS": ":9000"}))
		assert.Equal(t, "RDS_HTTP_ADDRESS", cfg.EnvKey(config.HTTPAddress))
		assert.Equal(t, ":9000", cfg.String(config.HTTPAddress))
	})

	t.Run("missing settings", func(t *testing.T) {
		cfg := config.New(env(nil))
		_, err := cfg.StringE("does.not.exist")
		assert.ErrorIs(t, err, config.ErrUnknownSetting)
		assert.Equal(t, 0, cfg.Int("does.not.exist"))
	})

	t.Run("nested lookup stops at scalars", func(t *testing.T) {
		cfg, err := config.Load(path, env(nil))
		require.NoError(t, err)
		_, ok := cfg.Lookup("component.name.first")
		assert.False(t, ok)
	})
}

func TestTypedGetters(t *testing.T) {
	cfg := config.New(
		env(map[string]string{"UNITBUS_RETRIES": "3", "UNITBUS_BROKEN": "x"}),
		config.WithDefaults(map[string]any{"retries": 1, "broken": 0, "flag": true}),
	)

	n, err := cfg.IntE("retries")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = cfg.IntE("broken")
	assert.Error(t, err)
	_, err = cfg.DurationE("broken")
	assert.Error(t, err)

	assert.True(t, cfg.Bool("flag"))
}

func TestSettings(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig), env(nil))
	require.NoError(t, err)

	s := cfg.Settings()
	assert.Equal(t, config.ComponentSettings{Instance: "eu-1", Name: "gate", Version: "0.1.0"}, s.Component)
	assert.Equal(t, config.TransportWebSocket, s.Network.Transport)
	assert.Equal(t, "ws://localhost:8080/ws", s.Network.ServerAddress)
	assert.False(t, s.Network.ServeSockets)
	assert.Equal(t, ":8080", s.HTTP.Address)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown transport", "network:\n  client:\n    transport: carrier-pigeon\n"},
		{"missing server address", "network:\n  client:\n    transport: nats\n"},
		{"bad duration", "messaging:\n  command_timeout: soon\n"},
		{"negative duration", "messaging:\n  command_timeout: -1s\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"bad yaml", "component: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content), env(nil))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), env(nil))
		assert.Error(t, err)
	})

	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := config.Load("", env(nil))
		require.NoError(t, err)
		assert.Equal(t, config.TransportMemory, cfg.String(config.NetworkClientTransport))
	})
}
