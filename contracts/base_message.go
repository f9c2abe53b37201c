package contracts

import (
	"fmt"

	"github.com/google/uuid"
)

// BaseMessage holds the envelope fields shared by all messages
type BaseMessage struct {
	Name   string   `json:"name"`
	Origin UnitID   `json:"origin"`
	Sender UnitID   `json:"sender"`
	Target Channel  `json:"target"`
	Hops   []UnitID `json:"hops"`
	Trace  string   `json:"trace"`
}

// NewTrace generates a fresh correlation identifier
func NewTrace() string {
	return uuid.New().String()
}

// GetName returns the message name
func (m BaseMessage) GetName() string {
	return m.Name
}

// GetOrigin returns the unit that created the message
func (m BaseMessage) GetOrigin() UnitID {
	return m.Origin
}

// GetSender returns the unit that sent the message
func (m BaseMessage) GetSender() UnitID {
	return m.Sender
}

// GetTarget returns the routing target
func (m BaseMessage) GetTarget() Channel {
	return m.Target
}

// GetHops returns a copy of the units the message traversed
func (m BaseMessage) GetHops() []UnitID {
	hops := make([]UnitID, len(m.Hops))
	copy(hops, m.Hops)
	return hops
}

// GetTrace returns the correlation identifier
func (m BaseMessage) GetTrace() string {
	return m.Trace
}

func (m BaseMessage) String() string {
	return fmt.Sprintf("%s <%s> (%s -> %s)", m.Name, m.Trace, m.Sender, m.Target)
}

func (m *BaseMessage) header() *BaseMessage {
	return m
}

// BaseCommand is embedded by all commands
type BaseCommand struct {
	BaseMessage
}

func (BaseCommand) command() {}

// BaseEvent is embedded by all events
type BaseEvent struct {
	BaseMessage
}

func (BaseEvent) event() {}

// BaseCommandReply is embedded by all command replies
type BaseCommandReply struct {
	BaseMessage
	Success bool   `json:"success"`
	Message string `json:"message"`
	Unique  string `json:"unique"`
}

// IsSuccess returns whether the command succeeded
func (r BaseCommandReply) IsSuccess() bool {
	return r.Success
}

// GetMessage returns the human-readable outcome, empty on success
func (r BaseCommandReply) GetMessage() string {
	return r.Message
}

// GetUnique returns the reply-specific identifier
func (r BaseCommandReply) GetUnique() string {
	return r.Unique
}

func (r *BaseCommandReply) reply() *BaseCommandReply {
	return r
}

// Stamp writes the envelope of a freshly built message. A missing trace is generated.
// Stamping a message twice fails.
func Stamp(msg Message, h BaseMessage) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if h.Name == "" {
		return fmt.Errorf("message name cannot be empty")
	}

	hdr := msg.header()
	if hdr.Name != "" {
		return fmt.Errorf("%w: %s", ErrAlreadyStamped, hdr.Name)
	}

	if h.Trace == "" {
		h.Trace = NewTrace()
	}
	h.Hops = append([]UnitID{}, h.Hops...)
	h.Target = Channel{}

	*hdr = h
	return nil
}

// Address sets the routing target of a stamped message; the target can be set only once
func Address(msg Message, target Channel) error {
	if !target.IsValid() {
		return ErrNoChannel
	}

	hdr := msg.header()
	if hdr.Target.IsValid() {
		return fmt.Errorf("%w: %s already targets %s", ErrAlreadyStamped, hdr.Name, hdr.Target)
	}
	hdr.Target = target
	return nil
}

// StampReply sets the outcome of a reply and gives it a fresh unique identifier
func StampReply(r CommandReply, success bool, message string) {
	rep := r.reply()
	rep.Success = success
	rep.Message = message
	rep.Unique = NewTrace()
}

// AppendHop records that the message passed the given unit
func AppendHop(msg Message, unit UnitID) {
	hdr := msg.header()
	hdr.Hops = append(hdr.Hops, unit)
}
