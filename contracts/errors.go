package contracts

import (
	"errors"
	"fmt"
)

var (
	// Registry errors
	ErrUnknownMessageType   = errors.New("unknown message type")
	ErrDuplicateMessageType = errors.New("message type already registered")
	ErrRegistryFrozen       = errors.New("message type registry is frozen")

	// Emission errors
	ErrNoChannel      = errors.New("no channel configured")
	ErrAlreadyStamped = errors.New("message envelope already written")
	ErrTraceInUse     = errors.New("a command with this trace is already pending")
	ErrRouting        = errors.New("routing error")
	ErrNoRemote       = errors.New("no network engine attached")

	// Command outcomes
	ErrCommandTimeout   = errors.New("command timed out")
	ErrCommandException = errors.New("command failed before a reply was received")
	ErrCommandUnknown   = errors.New("command failed for an unknown reason")
)

// CommandError is the terminal outcome of a command that did not receive a reply
type CommandError struct {
	FailType CommandFailType
	Name     string
	Trace    string
	Message  string
}

func (e *CommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("command %s <%s> failed: %s", e.Name, e.Trace, e.FailType)
	}
	return fmt.Sprintf("command %s <%s> failed: %s: %s", e.Name, e.Trace, e.FailType, e.Message)
}

func (e *CommandError) Unwrap() error {
	switch e.FailType {
	case CommandFailTimeout:
		return ErrCommandTimeout
	case CommandFailException:
		return ErrCommandException
	default:
		return ErrCommandUnknown
	}
}

// FailTypeOf extracts the fail type of an error returned while waiting for a reply
func FailTypeOf(err error) CommandFailType {
	if err == nil {
		return CommandFailNone
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.FailType
	}
	return CommandFailUnknown
}
