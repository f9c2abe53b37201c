package messaging

import "github.com/glimte/unitbus/contracts"

// Entrypoint tells from where a message entered the component
type Entrypoint int

const (
	EntrypointLocal Entrypoint = iota
	EntrypointServer
	EntrypointClient
)

func (e Entrypoint) String() string {
	switch e {
	case EntrypointLocal:
		return "local"
	case EntrypointServer:
		return "server"
	case EntrypointClient:
		return "client"
	default:
		return "unknown"
	}
}

// IsRemote reports whether the message was received over the network
func (e Entrypoint) IsRemote() bool {
	return e != EntrypointLocal
}

// MetaInformation is the dispatch information that travels next to a message
type MetaInformation struct {
	Entrypoint    Entrypoint
	RequiresReply bool
}

// NewMetaInformation derives the meta information of a message entering at entrypoint.
// Commands require a reply; replies and events never do.
func NewMetaInformation(msg contracts.Message, entrypoint Entrypoint) MetaInformation {
	_, isCommand := msg.(contracts.Command)
	return MetaInformation{
		Entrypoint:    entrypoint,
		RequiresReply: isCommand,
	}
}
