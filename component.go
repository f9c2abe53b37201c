// Copyright 2024 Unitbus Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package unitbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/glimte/unitbus/api"
	"github.com/glimte/unitbus/config"
	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/health"
	"github.com/glimte/unitbus/internal/logging"
	"github.com/glimte/unitbus/internal/reliability"
	"github.com/glimte/unitbus/messaging"
	"github.com/glimte/unitbus/metrics"
	"github.com/glimte/unitbus/network"
	"github.com/glimte/unitbus/schema"
	"github.com/glimte/unitbus/serialization"
	"github.com/glimte/unitbus/transports/memory"
	natsTransport "github.com/glimte/unitbus/transports/nats"
	rabbitmqTransport "github.com/glimte/unitbus/transports/rabbitmq"
	"github.com/glimte/unitbus/transports/websocket"
)

const (
	shutdownTimeout    = 5 * time.Second
	healthCheckTimeout = 2 * time.Second

	connectRetryInterval    = time.Second
	connectRetryMaxInterval = 30 * time.Second

	pendingCommandsWarning  = 100
	pendingCommandsCritical = 1000
	maxGoroutines           = 10000
)

// ErrInvalidVersion is returned when component.version is not a semantic version
var ErrInvalidVersion = errors.New("invalid component version")

// Component is a single unit of the system: a message bus connected to the network,
// its services and a small HTTP surface for status, health and metrics.
type Component struct {
	id      contracts.UnitID
	name    string
	version *semver.Version

	holder   *config.Holder
	logger   *logging.Logger
	registry serialization.TypeRegistry
	metrics  *metrics.PrometheusCollector
	bus      *messaging.MessageBus
	service  *messaging.MessageService
	client   *network.Client
	engine   *network.Engine
	health   *health.Registry
	sockets  *websocket.Server
}

type componentOptions struct {
	configPath    string
	configOptions []config.Option
	logOutput     io.Writer
	hub           *memory.Hub
	socket        network.Socket
	types         []func(serialization.TypeRegistry) error
}

// Option configures a Component
type Option func(*componentOptions)

// WithConfigFile loads settings from a YAML file and reloads them when it changes
func WithConfigFile(path string) Option {
	return func(o *componentOptions) {
		o.configPath = path
	}
}

// WithConfigOptions passes options to the configuration loader
func WithConfigOptions(opts ...config.Option) Option {
	return func(o *componentOptions) {
		o.configOptions = append(o.configOptions, opts...)
	}
}

// WithLogOutput sets where the component logs are written; stderr by default
func WithLogOutput(w io.Writer) Option {
	return func(o *componentOptions) {
		o.logOutput = w
	}
}

// WithHub connects the memory transport to a shared hub
func WithHub(hub *memory.Hub) Option {
	return func(o *componentOptions) {
		o.hub = hub
	}
}

// WithSocket overrides the socket selected by network.client.transport
func WithSocket(socket network.Socket) Option {
	return func(o *componentOptions) {
		o.socket = socket
	}
}

// WithTypes registers additional message types before the registry is frozen
func WithTypes(register func(serialization.TypeRegistry) error) Option {
	return func(o *componentOptions) {
		o.types = append(o.types, register)
	}
}

// New creates the component unitType/unit. The instance, version and network settings
// come from the configuration.
func New(unitType, unit string, options ...Option) (*Component, error) {
	opts := &componentOptions{logOutput: os.Stderr}
	for _, opt := range options {
		opt(opts)
	}

	holder, err := config.NewHolder(opts.configPath, slog.Default(), opts.configOptions...)
	if err != nil {
		return nil, err
	}
	settings := holder.Get().Settings()

	logger, err := logging.New(settings.Logging, opts.logOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Follow(holder)

	version, err := semver.NewVersion(settings.Component.Version)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidVersion, settings.Component.Version, err)
	}

	registry := serialization.NewTypeRegistry()
	if err := api.RegisterTypes(registry); err != nil {
		return nil, fmt.Errorf("failed to register api types: %w", err)
	}
	for _, register := range opts.types {
		if err := register(registry); err != nil {
			return nil, fmt.Errorf("failed to register message types: %w", err)
		}
	}
	registry.Freeze()

	id := contracts.NewUnitID(unitType, unit).WithInstance(settings.Component.Instance)
	name := settings.Component.Name
	if name == "" {
		name = id.String()
	}
	log := logger.With("component", id.String())

	collector := metrics.NewPrometheusCollector()
	holder.OnChange(func(*config.Config) { collector.RecordConfigReload(nil) })
	holder.OnReloadError(collector.RecordConfigReload)

	bus := messaging.NewMessageBus(id,
		messaging.WithBusLogger(log),
		messaging.WithBusMetrics(collector),
		messaging.WithBusRegistry(registry),
		messaging.WithCommandTimeout(settings.Messaging.CommandTimeout),
	)
	service := messaging.NewMessageService("component", bus)
	bus.AddService(service)

	socket := opts.socket
	if socket == nil {
		if socket, err = newSocket(settings.Network, opts.hub, log); err != nil {
			return nil, err
		}
	}
	client := network.NewClient(socket, service.Builder(), bus.Codec(),
		network.WithClientLogger(log),
		network.WithClientMetrics(collector),
		network.WithConnectionTimeout(settings.Network.ConnectionTimeout),
	)

	checks := health.NewRegistry()
	checks.Register(health.NewClientChecker(client))
	checks.Register(health.NewPendingCommandsChecker(bus.Tracker(), pendingCommandsWarning, pendingCommandsCritical))
	checks.Register(health.NewRuntimeChecker(maxGoroutines))
	checks.SetMetadata("component", id.String())
	checks.SetMetadata("version", version.String())

	c := &Component{
		id:       id,
		name:     name,
		version:  version,
		holder:   holder,
		logger:   logger,
		registry: registry,
		metrics:  collector,
		bus:      bus,
		service:  service,
		client:   client,
		engine:   network.NewEngine(bus, client, engineOptions(settings.Network)...),
		health:   checks,
	}
	if settings.Network.ServeSockets {
		c.sockets = websocket.NewServer(websocket.WithServerLogger(log))
	}
	return c, nil
}

func engineOptions(settings config.NetworkSettings) []network.EngineOption {
	if settings.ConnectRetries == 0 {
		return nil
	}
	policy := reliability.NewExponentialBackoff(connectRetryInterval, connectRetryMaxInterval, 2.0, settings.ConnectRetries)
	return []network.EngineOption{network.WithConnectRetry(policy)}
}

func newSocket(settings config.NetworkSettings, hub *memory.Hub, logger *slog.Logger) (network.Socket, error) {
	switch settings.Transport {
	case config.TransportMemory:
		if hub == nil {
			hub = memory.NewHub()
		}
		return hub.Socket(), nil
	case config.TransportWebSocket:
		return websocket.NewSocket(settings.ServerAddress, websocket.WithLogger(logger)), nil
	case config.TransportRabbitMQ:
		return rabbitmqTransport.NewSocket(settings.ServerAddress, rabbitmqTransport.WithLogger(logger)), nil
	case config.TransportNATS:
		return natsTransport.NewSocket(settings.ServerAddress, natsTransport.WithLogger(logger)), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", settings.Transport)
	}
}

// ID returns the unit id of the component
func (c *Component) ID() contracts.UnitID {
	return c.id
}

// Name returns the display name; the unit id unless component.name is set
func (c *Component) Name() string {
	return c.name
}

func (c *Component) Version() *semver.Version {
	return c.version
}

// Config returns the configuration holder
func (c *Component) Config() *config.Holder {
	return c.holder
}

func (c *Component) Logger() *slog.Logger {
	return c.logger.Logger
}

func (c *Component) Bus() *messaging.MessageBus {
	return c.bus
}

func (c *Component) Registry() serialization.TypeRegistry {
	return c.registry
}

func (c *Component) Client() *network.Client {
	return c.client
}

func (c *Component) Metrics() *metrics.PrometheusCollector {
	return c.metrics
}

func (c *Component) Health() *health.Registry {
	return c.health
}

// Builder returns a message builder stamping messages with the component id
func (c *Component) Builder() *messaging.MessageBuilder {
	return c.service.Builder()
}

// SocketServer returns the websocket server, nil unless network.server.enabled is set
func (c *Component) SocketServer() *websocket.Server {
	return c.sockets
}

// NewService creates a message service and adds it to the bus
func (c *Component) NewService(name string) *messaging.MessageService {
	svc := messaging.NewMessageService(name, c.bus)
	c.bus.AddService(svc)
	return svc
}

// Router returns the HTTP routes of the component
func (c *Component) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", c.handleInfo)
	r.Method(http.MethodGet, "/healthz", c.health.Handler(healthCheckTimeout))
	r.Get("/livez", health.LivenessHandler())
	r.Get("/contracts", c.handleContracts)
	r.Method(http.MethodGet, "/metrics", c.metrics.Handler())
	if c.sockets != nil {
		r.Method(http.MethodGet, "/ws", c.sockets)
	}
	return r
}

type componentInfo struct {
	ID      string              `json:"id"`
	Name    string              `json:"name"`
	Version string              `json:"version"`
	Client  network.ClientState `json:"client"`
	Pending int                 `json:"pending_commands"`
}

func (c *Component) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(componentInfo{
		ID:      c.id.String(),
		Name:    c.name,
		Version: c.version.String(),
		Client:  c.client.State(),
		Pending: c.bus.Tracker().Pending(),
	})
}

func (c *Component) handleContracts(w http.ResponseWriter, r *http.Request) {
	catalog, err := schema.Catalog(c.registry)
	if err != nil {
		c.logger.Error("failed to generate contracts", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(catalog)
}

// Run connects to the network and serves HTTP until ctx is done or a part fails.
// Pending commands are failed when Run returns.
func (c *Component) Run(ctx context.Context) error {
	log := c.logger.With("component", c.id.String())
	settings := c.holder.Get().Settings()

	if c.holder.Path() != "" {
		if err := c.holder.WatchFile(); err != nil {
			log.Warn("configuration will not be reloaded", "error", err)
		}
	}
	c.holder.WatchSignals()
	defer c.holder.Stop()
	defer c.bus.Close()

	// Listen before connecting so a component serving sockets can reach itself
	var listener net.Listener
	if settings.HTTP.Address != "" {
		var err error
		if listener, err = net.Listen("tcp", settings.HTTP.Address); err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.engine.Run(ctx)
	})

	if listener != nil {
		server := &http.Server{
			Handler:           c.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			log.Info("serving http", "address", listener.Addr().String())
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if c.sockets != nil {
				c.sockets.Close()
			}
			return server.Shutdown(shutdownCtx)
		})
	}

	log.Info("component started", "version", c.version.String(), "transport", settings.Network.Transport)
	err := g.Wait()
	log.Info("component stopped")
	return err
}

// Close disconnects the client and fails all pending commands
func (c *Component) Close() error {
	c.holder.Stop()
	if c.sockets != nil {
		c.sockets.Close()
	}
	err := c.client.Close()
	c.bus.Close()
	return err
}
