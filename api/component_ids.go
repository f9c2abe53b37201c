package api

import "github.com/glimte/unitbus/contracts"

// Component types
const (
	TypeInfrastructure = "infra"
	TypeWeb            = "web"
	TypeConnector      = "connector"
)

// Component units
const (
	// Infrastructure
	UnitServer = "server"
	UnitGate   = "gate"

	// Web
	UnitFrontend = "frontend"
)

// GateID is the unit answering project commands
func GateID() contracts.UnitID {
	return contracts.NewUnitID(TypeInfrastructure, UnitGate)
}

// FrontendID is the web frontend unit
func FrontendID() contracts.UnitID {
	return contracts.NewUnitID(TypeWeb, UnitFrontend)
}
