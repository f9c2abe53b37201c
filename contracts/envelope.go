package contracts

import (
	"encoding/json"
)

// Envelope wraps a serialized message for socket transports that carry a single stream
type Envelope struct {
	Name   string          `json:"name"`
	Target Channel         `json:"target"`
	Data   json.RawMessage `json:"data"`
}
