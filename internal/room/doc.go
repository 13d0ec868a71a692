// Package room implements the session coordinator and relay engine for
// ByteChat: admission control for the single capacity-2 room, the
// connection-to-username registry, ciphertext message relay with durable
// history, and stateless key-exchange forwarding.
//
// The server never sees plaintext. Payloads are opaque ciphertext blobs
// produced and consumed by the clients; this package only validates their
// framing and moves them between the two participants.
package room
