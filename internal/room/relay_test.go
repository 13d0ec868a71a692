package room

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRelay(store HistoryStore) (*Room, *MessageRelay) {
	r := newTestRoom(store)
	return r, NewMessageRelay(r, store, testLogger())
}

func rawMessage(username, encrypted, timestamp string) json.RawMessage {
	data, _ := json.Marshal(map[string]any{
		"username":  username,
		"encrypted": encrypted,
		"timestamp": timestamp,
	})
	return data
}

func TestSendFromNonMemberIsTerminal(t *testing.T) {
	store := &fakeStore{}
	_, relay := newTestRelay(store)

	ghost := &fakeSender{}
	err := relay.Send("conn-ghost", ghost, rawMessage("ghost", "abc", "t1"))
	require.ErrorIs(t, err, ErrNotInRoom)
	require.True(t, Terminal(err))
	require.Equal(t, []string{"You are not in the room."}, ghost.statuses())

	relay.flush()
	require.Empty(t, store.stored())
}

func TestSendMissingFieldRejected(t *testing.T) {
	store := &fakeStore{}
	r, relay := newTestRelay(store)
	alice := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))

	payload, _ := json.Marshal(map[string]any{
		"username":  "alice",
		"timestamp": "t1",
	})
	err := relay.Send("conn-1", alice, payload)
	require.ErrorIs(t, err, ErrInvalidMessage)
	require.False(t, Terminal(err))
	require.Contains(t, alice.statuses(), "Invalid message.")
	require.Empty(t, alice.eventsNamed(EventMessage))

	relay.flush()
	require.Empty(t, store.stored())
}

func TestSendEmptyCiphertextIsValid(t *testing.T) {
	store := &fakeStore{}
	r, relay := newTestRelay(store)
	alice := &fakeSender{}
	bob := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))
	require.NoError(t, r.Join("conn-2", bob, "bob"))

	payload := rawMessage("alice", "", "t2")
	require.NoError(t, relay.Send("conn-1", alice, payload))

	// Echoed to the sender and delivered to the other member, verbatim.
	require.Len(t, alice.eventsNamed(EventMessage), 1)
	require.Len(t, bob.eventsNamed(EventMessage), 1)
	require.JSONEq(t, string(payload), string(bob.eventsNamed(EventMessage)[0].Data))

	relay.flush()
	stored := store.stored()
	require.Len(t, stored, 1)
	require.Equal(t, "alice", stored[0].Username)
	require.Equal(t, "", stored[0].Encrypted)
}

func TestSendNumericTimestampRelayedVerbatim(t *testing.T) {
	store := &fakeStore{}
	r, relay := newTestRelay(store)
	alice := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))

	payload := json.RawMessage(`{"username":"alice","encrypted":"aGk=","timestamp":1723939200000}`)
	require.NoError(t, relay.Send("conn-1", alice, payload))

	messages := alice.eventsNamed(EventMessage)
	require.Len(t, messages, 1)
	require.JSONEq(t, string(payload), string(messages[0].Data))

	relay.flush()
	stored := store.stored()
	require.Len(t, stored, 1)
	require.Equal(t, json.RawMessage("1723939200000"), stored[0].Timestamp)
}

func TestSendOrderPreserved(t *testing.T) {
	store := &fakeStore{}
	r, relay := newTestRelay(store)
	alice := &fakeSender{}
	bob := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))
	require.NoError(t, r.Join("conn-2", bob, "bob"))

	const count = 5
	for i := 0; i < count; i++ {
		require.NoError(t, relay.Send("conn-1", alice, rawMessage("alice", fmt.Sprintf("c%d", i), "t")))
	}

	received := bob.eventsNamed(EventMessage)
	require.Len(t, received, count)
	for i, env := range received {
		var msg Message
		require.NoError(t, json.Unmarshal(env.Data, &msg))
		require.Equal(t, fmt.Sprintf("c%d", i), msg.Encrypted)
	}

	relay.flush()
	stored := store.stored()
	require.Len(t, stored, count)
	for i, msg := range stored {
		require.Equal(t, fmt.Sprintf("c%d", i), msg.Encrypted)
	}
}

func TestSendPersistFailureDoesNotBlockDelivery(t *testing.T) {
	store := &fakeStore{appendErr: fmt.Errorf("disk on fire")}
	r, relay := newTestRelay(store)
	alice := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))

	require.NoError(t, relay.Send("conn-1", alice, rawMessage("alice", "abc", "t1")))
	require.Len(t, alice.eventsNamed(EventMessage), 1)
	relay.flush()
}

func TestRunDrainsPendingOnCancel(t *testing.T) {
	store := &fakeStore{}
	r, relay := newTestRelay(store)
	alice := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		relay.Run(ctx)
	}()

	const count = 3
	for i := 0; i < count; i++ {
		require.NoError(t, relay.Send("conn-1", alice, rawMessage("alice", fmt.Sprintf("c%d", i), "t")))
	}

	require.Eventually(t, func() bool {
		return len(store.stored()) == count
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestPublicKeyForwardedToOtherMemberOnly(t *testing.T) {
	store := &fakeStore{}
	r := newTestRoom(store)
	keys := NewKeyExchangeRelay(r)
	alice := &fakeSender{}
	bob := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))
	require.NoError(t, r.Join("conn-2", bob, "bob"))

	payload := json.RawMessage(`{"kty":"EC","x":"abc","y":"def"}`)
	keys.Forward("conn-1", payload)

	forwarded := bob.eventsNamed(EventPublicKey)
	require.Len(t, forwarded, 1)
	require.JSONEq(t, string(payload), string(forwarded[0].Data))
	require.Empty(t, alice.eventsNamed(EventPublicKey))
}

func TestPublicKeyDroppedForSoleMember(t *testing.T) {
	r := newTestRoom(&fakeStore{})
	keys := NewKeyExchangeRelay(r)
	alice := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))

	keys.Forward("conn-1", json.RawMessage(`"key"`))
	require.Empty(t, alice.eventsNamed(EventPublicKey))
}

func TestPublicKeyFromNonMemberSilentlyIgnored(t *testing.T) {
	r := newTestRoom(&fakeStore{})
	keys := NewKeyExchangeRelay(r)
	alice := &fakeSender{}
	require.NoError(t, r.Join("conn-1", alice, "alice"))

	ghost := &fakeSender{}
	keys.Forward("conn-ghost", json.RawMessage(`"key"`))
	// No status, no forward, no disconnect.
	require.Empty(t, ghost.envelopes())
	require.Empty(t, alice.eventsNamed(EventPublicKey))
}
