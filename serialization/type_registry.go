package serialization

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/glimte/unitbus/contracts"
)

// Factory creates an empty instance of a registered message type
type Factory func() contracts.Message

// TypeRegistry maps message names to message constructors
type TypeRegistry interface {
	// Register registers a message type under a globally unique name
	Register(name string, factory Factory) error

	// Resolve returns the constructor registered for a name
	Resolve(name string) (Factory, error)

	// CreateInstance creates a new, empty instance of the named type
	CreateInstance(name string) (contracts.Message, error)

	// NameOf gets the registered name for a message value
	NameOf(msg contracts.Message) (string, error)

	// IsRegistered checks if a name is registered
	IsRegistered(name string) bool

	// ListTypes returns all registered names, sorted
	ListTypes() []string

	// Freeze rejects all further registrations
	Freeze()

	// Frozen reports whether the registry has been frozen
	Frozen() bool
}

// DefaultTypeRegistry is the default implementation of TypeRegistry.
//
// Registrations happen during bootstrap. Once frozen, the registry is read-only and
// lookups no longer take the lock.
type DefaultTypeRegistry struct {
	factories map[string]Factory
	names     map[reflect.Type]string
	mu        sync.RWMutex
	frozen    atomic.Bool
}

// NewTypeRegistry creates a new type registry
func NewTypeRegistry() *DefaultTypeRegistry {
	return &DefaultTypeRegistry{
		factories: make(map[string]Factory),
		names:     make(map[reflect.Type]string),
	}
}

// Register registers a message type under a globally unique name
func (r *DefaultTypeRegistry) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("type name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory cannot be nil")
	}

	t, err := messageType(factory())
	if err != nil {
		return fmt.Errorf("cannot register %s: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("%w: cannot register %s", contracts.ErrRegistryFrozen, name)
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", contracts.ErrDuplicateMessageType, name)
	}
	if existing, exists := r.names[t]; exists {
		return fmt.Errorf("%w: type %v is already registered as %s", contracts.ErrDuplicateMessageType, t, existing)
	}

	r.factories[name] = factory
	r.names[t] = name

	return nil
}

// Resolve returns the constructor registered for a name
func (r *DefaultTypeRegistry) Resolve(name string) (Factory, error) {
	var (
		factory Factory
		exists  bool
	)
	r.read(func() {
		factory, exists = r.factories[name]
	})

	if !exists {
		return nil, fmt.Errorf("%w: %s", contracts.ErrUnknownMessageType, name)
	}
	return factory, nil
}

// CreateInstance creates a new, empty instance of the named type
func (r *DefaultTypeRegistry) CreateInstance(name string) (contracts.Message, error) {
	factory, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return factory(), nil
}

// NameOf gets the registered name for a message value
func (r *DefaultTypeRegistry) NameOf(msg contracts.Message) (string, error) {
	t, err := messageType(msg)
	if err != nil {
		return "", err
	}

	var (
		name   string
		exists bool
	)
	r.read(func() {
		name, exists = r.names[t]
	})

	if !exists {
		return "", fmt.Errorf("%w: type %v", contracts.ErrUnknownMessageType, t)
	}
	return name, nil
}

// IsRegistered checks if a name is registered
func (r *DefaultTypeRegistry) IsRegistered(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// ListTypes returns all registered names, sorted
func (r *DefaultTypeRegistry) ListTypes() []string {
	var types []string
	r.read(func() {
		types = make([]string, 0, len(r.factories))
		for name := range r.factories {
			types = append(types, name)
		}
	})

	sort.Strings(types)
	return types
}

// Freeze rejects all further registrations
func (r *DefaultTypeRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// Frozen reports whether the registry has been frozen
func (r *DefaultTypeRegistry) Frozen() bool {
	return r.frozen.Load()
}

func (r *DefaultTypeRegistry) read(fn func()) {
	if r.frozen.Load() {
		fn()
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	fn()
}

func messageType(msg contracts.Message) (reflect.Type, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	t := reflect.TypeOf(msg)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("message type must be a pointer to a struct, got %v", t)
	}
	return t.Elem(), nil
}

// RegisterMessage registers *T under name.
//
//	serialization.RegisterMessage[api.ListProjectsCommand](registry, "command/project/list")
func RegisterMessage[T any, PT interface {
	*T
	contracts.Message
}](r TypeRegistry, name string) error {
	return r.Register(name, func() contracts.Message {
		return PT(new(T))
	})
}

// Global registry instance
var globalRegistry = NewTypeRegistry()

// Global returns the process-wide type registry
func Global() *DefaultTypeRegistry {
	return globalRegistry
}

// MustRegister registers a type with the global registry and panics on failure.
// It is meant for bootstrap code only.
func MustRegister(name string, factory Factory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(err)
	}
}
