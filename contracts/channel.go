package contracts

import "fmt"

// ChannelKind tells how a message is routed
type ChannelKind string

const (
	ChannelLocal  ChannelKind = "local"
	ChannelDirect ChannelKind = "direct"
	ChannelRoom   ChannelKind = "room"
)

// Channel is the routing target of a message. The zero value is not a valid channel.
type Channel struct {
	Kind     ChannelKind `json:"type"`
	TargetID *UnitID     `json:"target_id,omitempty"`
	Target   string      `json:"target,omitempty"`
}

// LocalChannel targets the emitting component only
func LocalChannel() Channel {
	return Channel{Kind: ChannelLocal}
}

// DirectChannel targets a single remote unit
func DirectChannel(target UnitID) Channel {
	return Channel{Kind: ChannelDirect, TargetID: &target}
}

// RoomChannel targets every unit that joined the named room
func RoomChannel(room string) Channel {
	return Channel{Kind: ChannelRoom, Target: room}
}

// IsValid reports whether the channel has a kind
func (c Channel) IsValid() bool {
	return c.Kind == ChannelLocal || c.Kind == ChannelDirect || c.Kind == ChannelRoom
}

// IsLocal reports whether the channel is local
func (c Channel) IsLocal() bool {
	return c.Kind == ChannelLocal
}

// IsDirect reports whether the channel targets a single unit
func (c Channel) IsDirect() bool {
	return c.Kind == ChannelDirect
}

// IsRoom reports whether the channel targets a room
func (c Channel) IsRoom() bool {
	return c.Kind == ChannelRoom
}

func (c Channel) String() string {
	switch c.Kind {
	case ChannelLocal:
		return "local"
	case ChannelDirect:
		if c.TargetID == nil {
			return "direct:<none>"
		}
		return fmt.Sprintf("direct:%s", c.TargetID)
	case ChannelRoom:
		return fmt.Sprintf("room:%s", c.Target)
	default:
		return "<invalid>"
	}
}
