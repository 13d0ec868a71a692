// Package room defines the wire-level protocol types exchanged with
// clients and the validation applied to inbound payloads.
package room

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

// Event names of the real-time protocol surface.
const (
	EventJoin      = "join"
	EventMessage   = "message"
	EventPublicKey = "public_key"
	EventStatus    = "status"
	EventHistory   = "history"
)

// Envelope is the JSON frame carrying every protocol event in both
// directions: {"event": "...", "data": ...}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StatusPayload is the body of a status notice sent to one connection.
type StatusPayload struct {
	Msg string `json:"msg"`
}

// JoinPayload is the body of an inbound join request.
type JoinPayload struct {
	Username string `json:"username" validate:"required"`
}

// ChatMessage is the inbound chat payload. All three fields must be
// present; pointer fields distinguish an absent field from an empty one,
// so an empty ciphertext is a valid message while a missing one is not.
// The timestamp is kept as raw JSON because clients send either a string
// or a number and the relay must echo it verbatim.
type ChatMessage struct {
	Username  *string          `json:"username" validate:"required"`
	Encrypted *string          `json:"encrypted" validate:"required"`
	Timestamp *json.RawMessage `json:"timestamp" validate:"required"`
}

// Message is the validated, immutable form of a chat message as it is
// persisted and broadcast.
type Message struct {
	Username  string          `json:"username"`
	Encrypted string          `json:"encrypted"`
	Timestamp json.RawMessage `json:"timestamp"`
}

var validate = validator.New()

// ParseChatMessage decodes and validates an inbound message payload.
// It returns ErrInvalidMessage when the payload is not a JSON object or
// any required field is absent.
func ParseChatMessage(data json.RawMessage) (Message, error) {
	var cm ChatMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		return Message{}, ErrInvalidMessage
	}
	if err := validate.Struct(cm); err != nil {
		return Message{}, ErrInvalidMessage
	}
	return Message{
		Username:  *cm.Username,
		Encrypted: *cm.Encrypted,
		Timestamp: *cm.Timestamp,
	}, nil
}

// ParseJoin decodes and validates an inbound join payload, returning the
// requested username. A payload without a username cannot be acted on and
// yields ErrInvalidMessage.
func ParseJoin(data json.RawMessage) (string, error) {
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", ErrInvalidMessage
	}
	if err := validate.Struct(p); err != nil {
		return "", ErrInvalidMessage
	}
	return p.Username, nil
}

// StatusNotice builds a status envelope carrying an informational or
// error notice for a single connection.
func StatusNotice(msg string) Envelope {
	data, _ := json.Marshal(StatusPayload{Msg: msg})
	return Envelope{Event: EventStatus, Data: data}
}

func messageEnvelope(data json.RawMessage) Envelope {
	return Envelope{Event: EventMessage, Data: data}
}

func historyEnvelope(messages []Message) Envelope {
	if messages == nil {
		messages = []Message{}
	}
	data, _ := json.Marshal(messages)
	return Envelope{Event: EventHistory, Data: data}
}

func publicKeyEnvelope(data json.RawMessage) Envelope {
	return Envelope{Event: EventPublicKey, Data: data}
}
