// Package server implements the HTTP and WebSocket transport for the
// ByteChat coordinator.
//
// The implementation is organized into specialized files for
// configuration, hub management, clients, routing, and HTTP handlers.
// Protocol and room semantics live in the room package; this package
// only moves frames between the network and the room engine.
package server
