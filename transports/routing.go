// Package transports holds what the broker transports share: the mapping of channels to
// dot-separated routing keys.
//
// Direct channels map to unit.<type>.<unit>[.<instance>], rooms to room.<name>. Brokers
// reserve '.', '*', '#' and '>' in keys, so names containing them are rejected.
package transports

import (
	"errors"
	"fmt"
	"strings"

	"github.com/glimte/unitbus/contracts"
)

// ErrUnroutable is returned for channels that cannot leave the process
var ErrUnroutable = errors.New("channel has no routing key")

const (
	UnitPrefix = "unit"
	RoomPrefix = "room"
)

// RoutingKey returns the key of a remote channel
func RoutingKey(ch contracts.Channel) (string, error) {
	switch {
	case ch.IsDirect() && ch.TargetID != nil:
		return UnitKey(*ch.TargetID)
	case ch.IsRoom():
		return RoomKey(ch.Target)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnroutable, ch)
	}
}

// UnitKey returns the key a unit receives direct messages on
func UnitKey(id contracts.UnitID) (string, error) {
	if id.Type == "" || id.Unit == "" {
		return "", fmt.Errorf("%w: incomplete unit id %q", ErrUnroutable, id)
	}
	parts := []string{UnitPrefix, id.Type, id.Unit}
	if id.Instance != "" {
		parts = append(parts, id.Instance)
	}
	return join(parts)
}

// RoomKey returns the key of a room
func RoomKey(room string) (string, error) {
	if room == "" {
		return "", fmt.Errorf("%w: empty room", ErrUnroutable)
	}
	return join([]string{RoomPrefix, room})
}

func join(parts []string) (string, error) {
	for _, p := range parts {
		if strings.ContainsAny(p, ".*#> ") {
			return "", fmt.Errorf("%w: invalid key segment %q", ErrUnroutable, p)
		}
	}
	return strings.Join(parts, "."), nil
}
