// Package network connects the message bus of a component to other units.
//
// A Client keeps one connection through a Socket; the Engine serializes outbound
// messages, verifies routing and dispatches inbound frames on the local bus.
// Socket implementations live in the transports packages.
package network
