package messaging

import (
	"fmt"
	"strings"
	"sync"

	"github.com/glimte/unitbus/contracts"
)

// FilterWildcard is the filter segment matching any name segment
const FilterWildcard = "*"

// HandlerFunc handles a dispatched message
type HandlerFunc func(ctx *MessageContext, msg contracts.Message) error

// Handle adapts a typed handler. A message of another type is reported as a handler error.
func Handle[T contracts.Message](fn func(ctx *MessageContext, msg T) error) HandlerFunc {
	return func(ctx *MessageContext, msg contracts.Message) error {
		typed, ok := msg.(T)
		if !ok {
			var zero T
			return fmt.Errorf("handler expects %T, got %T (%s)", zero, msg, msg.GetName())
		}
		return fn(ctx, typed)
	}
}

// HandlerRule is a registered (filter, handler) pair
type HandlerRule struct {
	Filter  string
	Handler HandlerFunc

	segments []string
}

// Matches reports whether the rule's filter matches a message name
func (r HandlerRule) Matches(name string) bool {
	return matchSegments(r.segments, strings.Split(name, "/"))
}

// MessageHandlers is the ordered routing table of a message service
type MessageHandlers struct {
	rules []HandlerRule
	mu    sync.RWMutex
}

// NewMessageHandlers creates an empty handler table
func NewMessageHandlers() *MessageHandlers {
	return &MessageHandlers{}
}

// AddHandler appends a rule. Filters are "/"-delimited; a "*" segment matches exactly one
// name segment, a trailing "*" matches all remaining segments (at least one).
func (h *MessageHandlers) AddHandler(filter string, handler HandlerFunc) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	segments, err := parseFilter(filter)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.rules = append(h.rules, HandlerRule{
		Filter:   filter,
		Handler:  handler,
		segments: segments,
	})
	return nil
}

// FindHandlers returns all rules matching name, in registration order
func (h *MessageHandlers) FindHandlers(name string) []HandlerRule {
	nameSegments := strings.Split(name, "/")

	h.mu.RLock()
	defer h.mu.RUnlock()

	var matched []HandlerRule
	for _, rule := range h.rules {
		if matchSegments(rule.segments, nameSegments) {
			matched = append(matched, rule)
		}
	}
	return matched
}

// Len returns the number of registered rules
func (h *MessageHandlers) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rules)
}

// MatchFilter reports whether filter matches the message name
func MatchFilter(filter, name string) bool {
	segments, err := parseFilter(filter)
	if err != nil {
		return false
	}
	return matchSegments(segments, strings.Split(name, "/"))
}

func parseFilter(filter string) ([]string, error) {
	if filter == "" {
		return nil, fmt.Errorf("filter cannot be empty")
	}

	segments := strings.Split(filter, "/")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("filter %q contains an empty segment", filter)
		}
		if segment != FilterWildcard && strings.Contains(segment, FilterWildcard) {
			return nil, fmt.Errorf("filter %q: wildcards must span a whole segment", filter)
		}
	}
	return segments, nil
}

func matchSegments(filter, name []string) bool {
	for i, segment := range filter {
		if i >= len(name) {
			return false
		}
		if segment == FilterWildcard {
			if i == len(filter)-1 {
				return true
			}
			continue
		}
		if segment != name[i] {
			return false
		}
	}
	return len(filter) == len(name)
}
