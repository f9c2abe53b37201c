package interceptors

import (
	"errors"
	"fmt"
	"slices"

	"github.com/glimte/unitbus/contracts"
	"github.com/glimte/unitbus/messaging"
)

// ErrFiltered is returned for messages skipped with SkipWithError
var ErrFiltered = errors.New("message filtered")

// MessageFilter decides whether a message reaches the handler
type MessageFilter func(ctx *messaging.MessageContext, msg contracts.Message) bool

// SkipBehavior defines what happens when a message is filtered out
type SkipBehavior int

const (
	// SkipSilently skips the message without error
	SkipSilently SkipBehavior = iota
	// SkipWithError reports ErrFiltered as a handler error
	SkipWithError
	// SkipWithLog skips the message and logs it at info level
	SkipWithLog
)

// FilteringInterceptor filters messages based on conditions
type FilteringInterceptor struct {
	filter       MessageFilter
	skipBehavior SkipBehavior
	reject       RejectFunc
}

func NewFilteringInterceptor(filter MessageFilter, skipBehavior SkipBehavior) *FilteringInterceptor {
	return &FilteringInterceptor{
		filter:       filter,
		skipBehavior: skipBehavior,
	}
}

// WithRejection hands skipped messages to reject with an ErrFiltered cause, after the
// skip behavior logged them. It takes precedence over SkipWithError.
func (i *FilteringInterceptor) WithRejection(reject RejectFunc) *FilteringInterceptor {
	i.reject = reject
	return i
}

func (i *FilteringInterceptor) Intercept(ctx *messaging.MessageContext, msg contracts.Message, next messaging.HandlerFunc) error {
	if i.filter(ctx, msg) {
		return next(ctx, msg)
	}

	cause := fmt.Errorf("%w: %s from %s", ErrFiltered, msg.GetName(), msg.GetOrigin())
	if i.skipBehavior == SkipWithLog {
		ctx.Logger().Info("message filtered", "origin", msg.GetOrigin().String())
	}
	switch {
	case i.reject != nil:
		return i.reject(ctx, msg, cause)
	case i.skipBehavior == SkipWithError:
		return cause
	}
	return nil
}

func (i *FilteringInterceptor) Name() string {
	return "FilteringInterceptor"
}

// All passes messages accepted by every filter
func All(filters ...MessageFilter) MessageFilter {
	return func(ctx *messaging.MessageContext, msg contracts.Message) bool {
		for _, filter := range filters {
			if !filter(ctx, msg) {
				return false
			}
		}
		return true
	}
}

// Any passes messages accepted by at least one filter
func Any(filters ...MessageFilter) MessageFilter {
	return func(ctx *messaging.MessageContext, msg contracts.Message) bool {
		for _, filter := range filters {
			if filter(ctx, msg) {
				return true
			}
		}
		return false
	}
}

// Not inverts a filter
func Not(filter MessageFilter) MessageFilter {
	return func(ctx *messaging.MessageContext, msg contracts.Message) bool {
		return !filter(ctx, msg)
	}
}

// FromUnitTypes passes messages whose origin has one of the given unit types
func FromUnitTypes(types ...string) MessageFilter {
	return func(_ *messaging.MessageContext, msg contracts.Message) bool {
		return slices.Contains(types, msg.GetOrigin().Type)
	}
}

// FromUnits passes messages originating from one of the given units. A unit without
// instance matches all its instances.
func FromUnits(units ...contracts.UnitID) MessageFilter {
	return func(_ *messaging.MessageContext, msg contracts.Message) bool {
		origin := msg.GetOrigin()
		for _, unit := range units {
			if unit.Type != origin.Type || unit.Unit != origin.Unit {
				continue
			}
			if unit.Instance == "" || unit.Instance == origin.Instance {
				return true
			}
		}
		return false
	}
}

// FromNetwork passes messages that were received through the network client
func FromNetwork() MessageFilter {
	return func(ctx *messaging.MessageContext, _ contracts.Message) bool {
		return ctx.Meta().Entrypoint.IsRemote()
	}
}
