// Package contracts provides the message envelope and identity types of the unitbus messaging core.
//
// This package defines the base contracts for messages that flow between components:
//   - Message: Base interface for all messages (name, origin, sender, target, hops, trace)
//   - Command: Requests work and usually expects a correlated CommandReply
//   - CommandReply: Carries success, a description and the trace of its command
//   - Event: Notifies about something that has happened, never replied to
//
// Concrete messages embed BaseCommand, BaseCommandReply or BaseEvent. The header of a
// message is written once by the message builder (see Stamp) and is read-only afterwards.
package contracts
