// Package room relays ciphertext chat messages and key-exchange payloads
// between the two active participants via MessageRelay and
// KeyExchangeRelay.
package room

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bytechat/bytechat/internal/metrics"
)

const persistQueueSize = 256

// MessageRelay validates inbound chat messages, persists them to the
// history log, and broadcasts them verbatim to every room member.
//
// Persistence is a durability best-effort, not a precondition for relay:
// accepted messages are handed to a background writer in acceptance
// order, and a slow or failing store never delays delivery. Broadcast
// fan-out runs under the room lock so all members observe messages in
// the exact order the relay accepted them.
type MessageRelay struct {
	room    *Room
	store   HistoryStore
	pending chan Message
	log     *slog.Logger
}

// NewMessageRelay creates a relay for the given room. Run must be
// started for persisted history to be written.
func NewMessageRelay(r *Room, store HistoryStore, log *slog.Logger) *MessageRelay {
	return &MessageRelay{
		room:    r,
		store:   store,
		pending: make(chan Message, persistQueueSize),
		log:     log,
	}
}

// Send processes one inbound message payload from the given connection.
// A message from a connection with no active participant is a protocol
// violation: the sender is notified and the caller must disconnect it
// (Terminal(ErrNotInRoom) is true). A payload missing a required field
// is rejected with a notice only; nothing is persisted or broadcast.
func (mr *MessageRelay) Send(id ConnID, sender Sender, data json.RawMessage) error {
	mr.room.mu.Lock()
	defer mr.room.mu.Unlock()

	if _, ok := mr.room.registry.Lookup(id); !ok {
		sender.Send(StatusNotice("You are not in the room."))
		return ErrNotInRoom
	}

	msg, err := ParseChatMessage(data)
	if err != nil {
		sender.Send(StatusNotice("Invalid message."))
		return err
	}

	// Hand off to the persister without blocking acceptance. The queue
	// preserves acceptance order; overflow drops durability for this
	// message but never delivery.
	select {
	case mr.pending <- msg:
	default:
		mr.log.Error("persist queue full, dropping message from history", "username", msg.Username)
	}

	env := messageEnvelope(data)
	for _, member := range mr.room.members {
		member.sender.Send(env)
	}
	metrics.MessagesTotal.Inc()
	return nil
}

// Run drains the persistence queue until ctx is cancelled, then flushes
// whatever is still pending. Store failures are logged and never
// surfaced to any connection.
func (mr *MessageRelay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			mr.flush()
			return
		case msg := <-mr.pending:
			mr.persist(msg)
		}
	}
}

func (mr *MessageRelay) flush() {
	for {
		select {
		case msg := <-mr.pending:
			mr.persist(msg)
		default:
			return
		}
	}
}

func (mr *MessageRelay) persist(msg Message) {
	if err := mr.store.Append(msg); err != nil {
		mr.log.Error("message persistence failed", "username", msg.Username, "error", err)
		return
	}
	metrics.HistoryEntries.Inc()
}

// KeyExchangeRelay forwards opaque public-key payloads between the two
// room occupants. It keeps no state and never inspects the payload.
type KeyExchangeRelay struct {
	room *Room
}

// NewKeyExchangeRelay creates a relay bound to the given room.
func NewKeyExchangeRelay(r *Room) *KeyExchangeRelay {
	return &KeyExchangeRelay{room: r}
}

// Forward relays the payload unmodified to the other active member. A
// payload from a connection with no participant is silently ignored, and
// one sent while the sender is the sole member is dropped: key exchange
// has no meaningful receiver in either case.
func (kr *KeyExchangeRelay) Forward(id ConnID, data json.RawMessage) {
	kr.room.mu.Lock()
	defer kr.room.mu.Unlock()

	if _, ok := kr.room.registry.Lookup(id); !ok {
		return
	}
	env := publicKeyEnvelope(data)
	for _, member := range kr.room.members {
		if member.ID != id {
			member.sender.Send(env)
		}
	}
}
