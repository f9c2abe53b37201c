package network

import (
	"fmt"

	"github.com/glimte/unitbus/contracts"
)

// Router verifies messages crossing the network boundary
type Router struct {
	compID contracts.UnitID
}

// NewRouter creates a router for the given unit
func NewRouter(compID contracts.UnitID) *Router {
	return &Router{compID: compID}
}

// VerifyOut checks a message about to be sent
func (r *Router) VerifyOut(msg contracts.Message) error {
	target := msg.GetTarget()
	switch {
	case target.IsLocal():
		return routingError("a local message was sent through the network engine")
	case target.IsDirect():
		if target.TargetID == nil {
			return routingError("direct message without a target sent")
		}
		if target.TargetID.Equals(r.compID) {
			return routingError("direct message to this component sent through the network engine")
		}
	case target.IsRoom():
		if target.Target == "" {
			return routingError("room message without a target room sent")
		}
	default:
		return fmt.Errorf("%w: %s", contracts.ErrNoChannel, msg.GetName())
	}
	return nil
}

// VerifyIn checks a received message
func (r *Router) VerifyIn(msg contracts.Message) error {
	target := msg.GetTarget()
	switch {
	case target.IsLocal():
		return routingError("a local message was received over the network")
	case target.IsDirect():
		if target.TargetID == nil {
			return routingError("direct message without a target received")
		}
	case target.IsRoom():
		if target.Target == "" {
			return routingError("room message without a target room received")
		}
	default:
		return fmt.Errorf("%w: %s", contracts.ErrNoChannel, msg.GetName())
	}
	return nil
}

// IsForUs reports whether a received message has to be dispatched locally
func (r *Router) IsForUs(msg contracts.Message) bool {
	target := msg.GetTarget()
	if target.IsDirect() {
		return target.TargetID != nil && target.TargetID.Equals(r.compID)
	}
	return target.IsRoom()
}

func routingError(reason string) error {
	return fmt.Errorf("%w: %s", contracts.ErrRouting, reason)
}
