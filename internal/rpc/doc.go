// Package rpc carries main-thread and extension-host messages over JSON-RPC 2.0.
//
// Every remote-invocable method name starts with "$". Each method has a
// concrete Message type; a Service publishes a Table mapping its method names
// to constructors and dispatches decoded messages with a type switch, so the
// wire contract is spelled out in types rather than by reflection over method
// names.
//
// Inbound messages are handled one at a time in arrival order. A handler that
// needs to wait on the remote side returns an Async; the router replies when
// it completes without holding up later messages.
package rpc
