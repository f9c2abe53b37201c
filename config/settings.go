package config

import "time"

// Setting ids
const (
	ComponentInstance = "component.instance"
	ComponentName     = "component.name"
	ComponentVersion  = "component.version"

	NetworkClientTransport         = "network.client.transport"
	NetworkClientServerAddress     = "network.client.server_address"
	NetworkClientConnectionTimeout = "network.client.connection_timeout"
	NetworkClientConnectRetries    = "network.client.connect_retries"
	NetworkServerEnabled           = "network.server.enabled"

	MessagingCommandTimeout = "messaging.command_timeout"

	LoggingLevel  = "logging.level"
	LoggingFormat = "logging.format"

	HTTPAddress = "http.address"
)

// Transports
const (
	TransportMemory    = "memory"
	TransportWebSocket = "websocket"
	TransportRabbitMQ  = "rabbitmq"
	TransportNATS      = "nats"
)

// Defaults returns the built-in value of every setting
func Defaults() map[string]any {
	return map[string]any{
		ComponentInstance:              "default",
		ComponentName:                  "",
		ComponentVersion:               "0.1.0",
		NetworkClientTransport:         TransportMemory,
		NetworkClientServerAddress:     "",
		NetworkClientConnectionTimeout: 10 * time.Second,
		NetworkClientConnectRetries:    0,
		NetworkServerEnabled:           false,
		MessagingCommandTimeout:        30 * time.Second,
		LoggingLevel:                   "info",
		LoggingFormat:                  "json",
		HTTPAddress:                    ":8080",
	}
}

// Settings is the typed view of a Config
type Settings struct {
	Component ComponentSettings
	Network   NetworkSettings
	Messaging MessagingSettings
	Logging   LoggingSettings
	HTTP      HTTPSettings
}

type ComponentSettings struct {
	Instance string
	Name     string
	Version  string
}

type NetworkSettings struct {
	Transport         string
	ServerAddress     string
	ConnectionTimeout time.Duration
	ConnectRetries    int // retries of the first connection attempt
	ServeSockets      bool
}

type MessagingSettings struct {
	CommandTimeout time.Duration
}

type LoggingSettings struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

type HTTPSettings struct {
	Address string
}
