// Package api declares the messages exchanged between unitbus components.
//
// Every message type has a globally unique name. RegisterTypes adds all of them to a
// type registry and must run before the registry is frozen.
package api
