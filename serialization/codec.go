package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/glimte/unitbus/contracts"
)

// MessageCodec converts messages to and from their wire representation
type MessageCodec interface {
	// Marshal serializes a message; the result contains its name and all fields
	Marshal(msg contracts.Message) ([]byte, error)

	// Unmarshal reconstructs the typed message registered under name
	Unmarshal(name string, data []byte) (contracts.Message, error)
}

// JSONCodec implements MessageCodec using JSON objects
type JSONCodec struct {
	registry TypeRegistry
}

// NewJSONCodec creates a codec resolving names through the given registry
func NewJSONCodec(registry TypeRegistry) *JSONCodec {
	return &JSONCodec{registry: registry}
}

// Marshal serializes a message to a JSON object
func (c *JSONCodec) Marshal(msg contracts.Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	name := msg.GetName()
	if name == "" {
		return nil, fmt.Errorf("message %T has no name", msg)
	}
	if !c.registry.IsRegistered(name) {
		return nil, fmt.Errorf("%w: %s", contracts.ErrUnknownMessageType, name)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message %s: %w", name, err)
	}
	return data, nil
}

// Unmarshal deserializes a JSON object into the type registered under name
func (c *JSONCodec) Unmarshal(name string, data []byte) (contracts.Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	msg, err := c.registry.CreateInstance(name)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into type %s: %w", name, err)
	}

	if msg.GetName() != name {
		return nil, fmt.Errorf("message name mismatch: frame %q carries %q", name, msg.GetName())
	}

	return msg, nil
}
