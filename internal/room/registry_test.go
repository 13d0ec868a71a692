package room

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry(t *testing.T) {
	reg := NewConnectionRegistry()

	_, ok := reg.Lookup("conn-1")
	require.False(t, ok)

	reg.Register("conn-1", "alice")
	username, ok := reg.Lookup("conn-1")
	require.True(t, ok)
	require.Equal(t, "alice", username)

	username, ok = reg.Unregister("conn-1")
	require.True(t, ok)
	require.Equal(t, "alice", username)

	_, ok = reg.Lookup("conn-1")
	require.False(t, ok)

	_, ok = reg.Unregister("conn-1")
	require.False(t, ok)
}
