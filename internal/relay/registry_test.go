package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSink struct{}

func (nopSink) Send(Envelope) error { return nil }

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	id1 := r.Register(nopSink{})
	id2 := r.Register(nopSink{})

	assert.NotEmpty(t, id1)
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, r.ConnectionCount())

	_, bound := r.Binding(id1)
	assert.False(t, bound, "fresh connections start unbound")
}

func TestRegistryIdentifyOnce(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nopSink{})

	assert.True(t, r.Identify(id, "u1", "lobby"))

	binding, bound := r.Binding(id)
	require.True(t, bound)
	assert.Equal(t, Binding{UserID: "u1", RoomID: "lobby"}, binding)

	// A second identify is a no-op; the first binding is final.
	assert.False(t, r.Identify(id, "u2", "studio"))
	binding, _ = r.Binding(id)
	assert.Equal(t, "u1", binding.UserID)
	assert.Equal(t, "lobby", binding.RoomID)
}

func TestRegistryIdentifyUnknown(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Identify("ghost", "u1", "lobby"))
}

func TestRegistryUnregisterBound(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nopSink{})
	r.Identify(id, "u1", "lobby")

	binding, wasBound := r.Unregister(id)
	require.True(t, wasBound)
	assert.Equal(t, "u1", binding.UserID)
	assert.Equal(t, 0, r.ConnectionCount())
	assert.Empty(t, r.ConnectionsInRoom("lobby"))
}

func TestRegistryUnregisterUnbound(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nopSink{})

	_, wasBound := r.Unregister(id)
	assert.False(t, wasBound)
	assert.Equal(t, 0, r.ConnectionCount())
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	r := NewRegistry()
	id := r.Register(nopSink{})
	r.Identify(id, "u1", "lobby")

	_, wasBound := r.Unregister(id)
	assert.True(t, wasBound)

	_, wasBound = r.Unregister(id)
	assert.False(t, wasBound, "second unregister is a no-op")

	_, wasBound = r.Unregister("never-registered")
	assert.False(t, wasBound)
}

func TestRegistryConnectionsInRoom(t *testing.T) {
	r := NewRegistry()

	lobby1 := r.Register(nopSink{})
	lobby2 := r.Register(nopSink{})
	studio := r.Register(nopSink{})
	r.Register(nopSink{}) // stays unbound

	r.Identify(lobby1, "u1", "lobby")
	r.Identify(lobby2, "u2", "lobby")
	r.Identify(studio, "u3", "studio")

	assert.ElementsMatch(t, []string{lobby1, lobby2}, r.ConnectionsInRoom("lobby"))
	assert.ElementsMatch(t, []string{studio}, r.ConnectionsInRoom("studio"))
	assert.Empty(t, r.ConnectionsInRoom("nowhere"))
}

func TestRegistrySink(t *testing.T) {
	r := NewRegistry()
	sink := nopSink{}
	id := r.Register(sink)

	got, ok := r.Sink(id)
	require.True(t, ok)
	assert.Equal(t, sink, got)

	_, ok = r.Sink("ghost")
	assert.False(t, ok)
}

func TestRegistryRoomCleanupOnLastUnregister(t *testing.T) {
	r := NewRegistry()
	id1 := r.Register(nopSink{})
	id2 := r.Register(nopSink{})
	r.Identify(id1, "u1", "lobby")
	r.Identify(id2, "u2", "lobby")

	r.Unregister(id1)
	assert.Len(t, r.ConnectionsInRoom("lobby"), 1)

	r.Unregister(id2)
	assert.Empty(t, r.ConnectionsInRoom("lobby"))
}
