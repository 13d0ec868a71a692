// Package room coordinates admission to the single capacity-2 room,
// tracks who is joined on which connection, and drives join/leave
// transitions via the Room type.
package room

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/bytechat/bytechat/internal/metrics"
)

// Capacity is the fixed number of participants the room admits.
const Capacity = 2

// Sender delivers outbound envelopes to a single connection. Send must
// not block; it reports false when the connection can no longer accept
// writes. The transport layer implements it.
type Sender interface {
	Send(env Envelope) bool
}

// HistoryStore is the durable append-only log of delivered messages.
// Append must preserve insertion order; Recent returns up to limit of
// the newest messages in oldest-first order.
type HistoryStore interface {
	Append(msg Message) error
	Recent(limit int) ([]Message, error)
}

// Participant is a joined, uniquely-named occupant of the room. Exactly
// one participant exists per active connection.
type Participant struct {
	ID       ConnID
	Username string
	JoinedAt time.Time
	sender   Sender
}

// Room owns the authoritative membership state. All state transitions
// run under a single mutex so that two interleaved joins can never both
// pass the capacity or uniqueness checks, and broadcast fan-out happens
// inside the same critical section so delivery order matches acceptance
// order. Granularity is per-room: nothing here assumes a process-wide
// singleton.
type Room struct {
	mu           sync.Mutex
	members      []*Participant
	registry     *ConnectionRegistry
	store        HistoryStore
	historyLimit int
	log          *slog.Logger
}

// NewRoom creates an empty room backed by the given history store. The
// replay snapshot delivered on join is capped at historyLimit messages.
func NewRoom(store HistoryStore, historyLimit int, log *slog.Logger) *Room {
	return &Room{
		registry:     NewConnectionRegistry(),
		store:        store,
		historyLimit: historyLimit,
		log:          log,
	}
}

// Join attempts to admit the connection under the given username. On
// success every current member (the new one included) receives a join
// notice and the joining connection alone receives the ordered history
// replay. On failure only the requesting connection is notified; the
// caller force-disconnects it when Terminal(err) is true.
//
// The capacity check, the uniqueness check, and the membership insertion
// are evaluated as one atomic step under the room lock.
func (r *Room) Join(id ConnID, sender Sender, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.registry.Lookup(id); ok {
		sender.Send(StatusNotice("Already joined."))
		return ErrAlreadyJoined
	}
	if len(r.members) >= Capacity {
		sender.Send(StatusNotice("Room full."))
		return ErrRoomFull
	}
	if r.usernameTaken(username) {
		sender.Send(StatusNotice("Username already in use."))
		return ErrDuplicateUsername
	}

	p := &Participant{
		ID:       id,
		Username: username,
		JoinedAt: time.Now(),
		sender:   sender,
	}
	r.members = append(r.members, p)
	r.registry.Register(id, username)
	metrics.ActiveUsers.Set(float64(len(r.members)))
	r.log.Info("participant joined", "username", username, "conn", id, "members", len(r.members))

	notice := StatusNotice(fmt.Sprintf("%s joined.", username))
	for _, member := range r.members {
		member.sender.Send(notice)
	}

	// Replay snapshot for the joiner only. Reading under the lock keeps
	// the snapshot consistent with the membership transition.
	messages, err := r.store.Recent(r.historyLimit)
	if err != nil {
		r.log.Error("history replay failed", "username", username, "error", err)
		messages = nil
	}
	sender.Send(historyEnvelope(messages))
	return nil
}

// Leave removes the participant attached to the connection, if any, and
// notifies the remaining members. A connection that never joined is a
// no-op, which makes Leave idempotent and safe to call from disconnect
// handling in any connection state.
func (r *Room) Leave(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	username, ok := r.registry.Unregister(id)
	if !ok {
		return
	}
	r.members = lo.Reject(r.members, func(p *Participant, _ int) bool {
		return p.ID == id
	})
	metrics.ActiveUsers.Set(float64(len(r.members)))
	r.log.Info("participant left", "username", username, "conn", id, "members", len(r.members))

	notice := StatusNotice(fmt.Sprintf("%s left.", username))
	for _, member := range r.members {
		member.sender.Send(notice)
	}
}

// MemberCount returns the number of active participants.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// MemberUsernames returns the usernames of the active participants in
// join order.
func (r *Room) MemberUsernames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.members, func(p *Participant, _ int) string {
		return p.Username
	})
}

// usernameTaken reports whether an active member already holds the
// username. Callers hold r.mu.
func (r *Room) usernameTaken(username string) bool {
	return lo.SomeBy(r.members, func(p *Participant) bool {
		return p.Username == username
	})
}
