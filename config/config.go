// Package config provides layered configuration lookup and hot reload.
//
// A setting id such as "network.client.server_address" is looked up in the environment
// first (UNITBUS_NETWORK_CLIENT_SERVER_ADDRESS), then in the YAML file (nested keys),
// then in the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes the environment variable of every setting
const DefaultEnvPrefix = "UNITBUS"

// ErrUnknownSetting is returned for ids that are set nowhere
var ErrUnknownSetting = errors.New("unknown setting")

// Config resolves setting ids. It is immutable once loaded.
type Config struct {
	envPrefix string
	lookupEnv func(string) (string, bool)
	file      map[string]any
	defaults  map[string]any
}

// Option configures a Config
type Option func(*Config)

// WithEnvPrefix sets the environment variable prefix
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
	}
}

// WithDefaults adds defaults; they override the built-in ones
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) {
		for k, v := range defaults {
			c.defaults[k] = v
		}
	}
}

// WithLookupEnv replaces os.LookupEnv
func WithLookupEnv(lookup func(string) (string, bool)) Option {
	return func(c *Config) {
		c.lookupEnv = lookup
	}
}

// New creates a configuration without a file
func New(options ...Option) *Config {
	c := &Config{
		envPrefix: DefaultEnvPrefix,
		lookupEnv: os.LookupEnv,
		file:      map[string]any{},
		defaults:  Defaults(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Load reads a YAML file. An empty path yields environment and defaults only.
func Load(path string, options ...Option) (*Config, error) {
	c := New(options...)
	if path == "" {
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	if err := yaml.Unmarshal(data, &c.file); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.file == nil {
		c.file = map[string]any{}
	}

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// EnvKey returns the environment variable of a setting id
func (c *Config) EnvKey(id string) string {
	key := strings.ToUpper(strings.ReplaceAll(id, ".", "_"))
	if c.envPrefix == "" {
		return key
	}
	return strings.ToUpper(c.envPrefix) + "_" + key
}

// Lookup returns the raw value of a setting
func (c *Config) Lookup(id string) (any, bool) {
	if v, ok := c.lookupEnv(c.EnvKey(id)); ok {
		return v, true
	}
	if v, ok := traverse(c.file, strings.Split(id, ".")); ok {
		return v, true
	}
	v, ok := c.defaults[id]
	return v, ok
}

func traverse(m map[string]any, path []string) (any, bool) {
	v, ok := m[path[0]]
	if !ok {
		return nil, false
	}
	if len(path) == 1 {
		return v, true
	}
	next, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return traverse(next, path[1:])
}

// StringE returns a setting as a string
func (c *Config) StringE(id string) (string, error) {
	v, ok := c.Lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, id)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(t), nil
	}
}

// IntE returns a setting as an int
func (c *Config) IntE(id string) (int, error) {
	v, ok := c.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSetting, id)
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("setting %s: %w", id, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("setting %s: %T is not an integer", id, v)
	}
}

// BoolE returns a setting as a bool
func (c *Config) BoolE(id string) (bool, error) {
	v, ok := c.Lookup(id)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSetting, id)
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		return parseBool(t), nil
	default:
		return false, fmt.Errorf("setting %s: %T is not a boolean", id, v)
	}
}

// DurationE returns a setting as a duration. Plain numbers are seconds.
func (c *Config) DurationE(id string) (time.Duration, error) {
	v, ok := c.Lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSetting, id)
	}
	switch t := v.(type) {
	case time.Duration:
		return t, nil
	case int:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t * float64(time.Second)), nil
	case string:
		t = strings.TrimSpace(t)
		if secs, err := strconv.ParseFloat(t, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("setting %s: %w", id, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("setting %s: %T is not a duration", id, v)
	}
}

// String returns a setting as a string, or "" when it is missing
func (c *Config) String(id string) string {
	v, _ := c.StringE(id)
	return v
}

// Int returns a setting as an int, or 0 when it is missing or invalid
func (c *Config) Int(id string) int {
	v, _ := c.IntE(id)
	return v
}

// Bool returns a setting as a bool, or false when it is missing or invalid
func (c *Config) Bool(id string) bool {
	v, _ := c.BoolE(id)
	return v
}

// Duration returns a setting as a duration, or 0 when it is missing or invalid
func (c *Config) Duration(id string) time.Duration {
	v, _ := c.DurationE(id)
	return v
}

// Settings returns the typed view of the configuration
func (c *Config) Settings() Settings {
	return Settings{
		Component: ComponentSettings{
			Instance: c.String(ComponentInstance),
			Name:     c.String(ComponentName),
			Version:  c.String(ComponentVersion),
		},
		Network: NetworkSettings{
			Transport:         c.String(NetworkClientTransport),
			ServerAddress:     c.String(NetworkClientServerAddress),
			ConnectionTimeout: c.Duration(NetworkClientConnectionTimeout),
			ConnectRetries:    c.Int(NetworkClientConnectRetries),
			ServeSockets:      c.Bool(NetworkServerEnabled),
		},
		Messaging: MessagingSettings{
			CommandTimeout: c.Duration(MessagingCommandTimeout),
		},
		Logging: LoggingSettings{
			Level:  c.String(LoggingLevel),
			Format: c.String(LoggingFormat),
		},
		HTTP: HTTPSettings{
			Address: c.String(HTTPAddress),
		},
	}
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func (c *Config) validate() error {
	for _, id := range []string{NetworkClientConnectionTimeout, MessagingCommandTimeout} {
		d, err := c.DurationE(id)
		if err != nil {
			return err
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", id)
		}
	}

	retries, err := c.IntE(NetworkClientConnectRetries)
	if err != nil {
		return err
	}
	if retries < 0 {
		return fmt.Errorf("%s must not be negative", NetworkClientConnectRetries)
	}

	transport := c.String(NetworkClientTransport)
	validTransports := map[string]bool{
		TransportMemory: true, TransportWebSocket: true, TransportRabbitMQ: true, TransportNATS: true,
	}
	if !validTransports[transport] {
		return fmt.Errorf("%s must be one of memory, websocket, rabbitmq, nats, got %q", NetworkClientTransport, transport)
	}
	if transport != TransportMemory && c.String(NetworkClientServerAddress) == "" {
		return fmt.Errorf("%s is required for the %s transport", NetworkClientServerAddress, transport)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if format := c.String(LoggingFormat); !validFormats[format] {
		return fmt.Errorf("%s must be 'json' or 'text', got %q", LoggingFormat, format)
	}
	return nil
}
