// Package room provides the ConnectionRegistry, the bidirectional mapping
// between ephemeral connection identities and joined usernames.
package room

// ConnID identifies one transport-level connection for its lifetime.
// The transport layer mints it when the connection is established.
type ConnID string

// ConnectionRegistry maps connection identities to the usernames of their
// joined participants. It carries no validation or locking of its own:
// the Room coordinator is the sole writer and all access happens under
// the room's serialization point.
type ConnectionRegistry struct {
	byConn map[ConnID]string
}

// NewConnectionRegistry returns an empty registry.
func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{byConn: make(map[ConnID]string)}
}

// Register records the username joined on the given connection.
func (r *ConnectionRegistry) Register(id ConnID, username string) {
	r.byConn[id] = username
}

// Lookup returns the username joined on the given connection, if any.
func (r *ConnectionRegistry) Lookup(id ConnID) (string, bool) {
	username, ok := r.byConn[id]
	return username, ok
}

// Unregister removes the mapping for the given connection and returns the
// username that was registered, if any.
func (r *ConnectionRegistry) Unregister(id ConnID) (string, bool) {
	username, ok := r.byConn[id]
	if ok {
		delete(r.byConn, id)
	}
	return username, ok
}
