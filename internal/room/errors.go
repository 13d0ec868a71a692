// Package room defines the error kinds surfaced by the coordinator and
// relays, and the policy deciding which of them terminate a connection.
package room

import "errors"

var (
	// ErrRoomFull is returned when a join would exceed the room capacity.
	ErrRoomFull = errors.New("room full")
	// ErrDuplicateUsername is returned when the requested username already
	// belongs to an active member.
	ErrDuplicateUsername = errors.New("username already in use")
	// ErrAlreadyJoined is returned when a connection that already has a
	// participant attempts a second join.
	ErrAlreadyJoined = errors.New("already joined")
	// ErrNotInRoom is returned when a connection without an active
	// participant attempts to send a message.
	ErrNotInRoom = errors.New("not in the room")
	// ErrInvalidMessage is returned when a message payload is missing a
	// required field.
	ErrInvalidMessage = errors.New("invalid message")
)

// Terminal reports whether err means the connection cannot meaningfully
// continue and must be force-disconnected by the transport. AlreadyJoined
// and InvalidMessage are recoverable client-side mistakes; the rest
// represent a connection stuck in a state it cannot leave on its own.
func Terminal(err error) bool {
	return errors.Is(err, ErrRoomFull) ||
		errors.Is(err, ErrDuplicateUsername) ||
		errors.Is(err, ErrNotInRoom)
}
