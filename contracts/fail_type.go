package contracts

// CommandFailType tells why a command did not produce a reply
type CommandFailType int

const (
	CommandFailNone CommandFailType = iota
	CommandFailTimeout
	CommandFailException
	CommandFailUnknown
)

func (t CommandFailType) String() string {
	switch t {
	case CommandFailNone:
		return "none"
	case CommandFailTimeout:
		return "timeout"
	case CommandFailException:
		return "exception"
	default:
		return "unknown"
	}
}
