package contracts

// Message is the base interface for all messages.
//
// Only types embedding one of the Base* structs of this package satisfy it.
type Message interface {
	GetName() string
	GetOrigin() UnitID
	GetSender() UnitID
	GetTarget() Channel
	GetHops() []UnitID
	GetTrace() string

	header() *BaseMessage
}

// Command represents an action to be performed by another unit
type Command interface {
	Message
	command()
}

// Event represents something that has happened
type Event interface {
	Message
	event()
}

// CommandReply represents the outcome of a Command
type CommandReply interface {
	Message
	IsSuccess() bool
	GetMessage() string
	GetUnique() string

	reply() *BaseCommandReply
}
