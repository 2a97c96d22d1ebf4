package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SingleConnectionPerIdentity(t *testing.T) {
	reg := NewRegistry(nil)

	first := newMockConn()
	second := newMockConn()

	reg.Add("alice", first)
	reg.Add("alice", second)

	assert.False(t, first.IsOpen(), "superseded connection must be closed")
	assert.Equal(t, closeCodeSuperseded, first.closeCode)
	assert.True(t, second.IsOpen())
	assert.Equal(t, 1, reg.Len())

	stored, ok := reg.get("alice")
	require.True(t, ok)
	assert.Same(t, Conn(second), stored)
}

func TestRegistry_StaleRemoveIgnored(t *testing.T) {
	reg := NewRegistry(nil)

	first := newMockConn()
	second := newMockConn()
	reg.Add("alice", first)
	reg.Add("alice", second)

	// The superseded socket's delayed close callback must not delete the
	// live replacement entry.
	reg.Remove("alice", first)
	assert.Equal(t, 1, reg.Len())

	reg.Remove("alice", second)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_RemoveMissingIsNoop(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Remove("ghost", nil)
	reg.Remove("ghost", newMockConn())
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_MarkSubscribedStaleGuard(t *testing.T) {
	reg := NewRegistry(nil)

	first := newMockConn()
	second := newMockConn()
	reg.Add("alice", first)
	reg.Add("alice", second)

	reg.MarkSubscribed("alice", first)
	assert.Equal(t, 0, reg.SubscribedCount())

	reg.MarkSubscribed("alice", second)
	assert.Equal(t, 1, reg.SubscribedCount())

	// Missing identity is a silent no-op.
	reg.MarkSubscribed("ghost", nil)
	assert.Equal(t, 1, reg.SubscribedCount())
}

func TestRegistry_SendTo(t *testing.T) {
	reg := NewRegistry(nil)

	conn := newMockConn()
	reg.Add("alice", conn)

	reg.SendTo("alice", []byte("hello"))
	require.Len(t, conn.messages(), 1)
	assert.Equal(t, []byte("hello"), conn.messages()[0])

	// Closed transport: silent drop.
	conn.Close(1000, "bye")
	reg.SendTo("alice", []byte("dropped"))
	assert.Len(t, conn.messages(), 1)

	// Unknown identity: silent drop.
	reg.SendTo("ghost", []byte("dropped"))
}

func TestRegistry_BroadcastSubscribedOnly(t *testing.T) {
	reg := NewRegistry(nil)

	subscribed := newMockConn()
	pending := newMockConn()
	closed := newMockConn()

	reg.Add("alice", subscribed)
	reg.Add("bob", pending)
	reg.Add("carol", closed)

	reg.MarkSubscribed("alice", subscribed)
	reg.MarkSubscribed("carol", closed)
	closed.Close(1000, "gone")

	reg.BroadcastSubscribed([]byte("delta"))

	assert.Len(t, subscribed.messages(), 1)
	assert.Empty(t, pending.messages(), "unsubscribed connection must not receive broadcasts")
	assert.Empty(t, closed.messages(), "closed connection must not receive broadcasts")
}
