package relay

import (
	"sync"

	"github.com/google/uuid"
)

// Binding is the identity a connection assumes on its first successful
// join. A connection binds at most once for its lifetime.
type Binding struct {
	UserID string
	RoomID string
}

// connEntry is the registry's per-connection record: the outbound sink
// plus the explicit unbound/bound state.
type connEntry struct {
	sink    Sink
	bound   bool
	binding Binding
}

// Registry tracks live connections and the identity bound to each.
// All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connEntry          // connectionID → entry
	rooms map[string]map[string]struct{} // roomID → set of connection IDs
}

// NewRegistry creates an empty connection Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*connEntry),
		rooms: make(map[string]map[string]struct{}),
	}
}

// Register admits a live connection and returns its assigned connection ID.
//
// Precondition: sink must be non-nil.
// Postcondition: The connection is tracked, unbound, under a fresh ID.
func (r *Registry) Register(sink Sink) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	r.conns[id] = &connEntry{sink: sink}
	return id
}

// Identify binds a user and room identity to a connection, exactly once.
//
// Postcondition: Returns true if the binding was applied; false if the
// connection is unknown or already bound (no-op in both cases).
func (r *Registry) Identify(connID, userID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[connID]
	if !ok || entry.bound {
		return false
	}

	entry.bound = true
	entry.binding = Binding{UserID: userID, RoomID: roomID}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][connID] = struct{}{}
	return true
}

// Unregister removes a connection and returns its binding, if it had one.
// Unknown connection IDs are an idempotent no-op (shutdown races).
//
// Postcondition: Returns (binding, true) if the connection was bound,
// (zero, false) if it was unknown or disconnected before joining.
func (r *Registry) Unregister(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.conns[connID]
	if !ok {
		return Binding{}, false
	}
	delete(r.conns, connID)

	if !entry.bound {
		return Binding{}, false
	}

	if set, ok := r.rooms[entry.binding.RoomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.rooms, entry.binding.RoomID)
		}
	}
	return entry.binding, true
}

// Binding returns the identity bound to the connection.
//
// Postcondition: Returns (binding, true) for a bound connection, or
// (zero, false) for an unknown or still-unbound one.
func (r *Registry) Binding(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[connID]
	if !ok || !entry.bound {
		return Binding{}, false
	}
	return entry.binding, true
}

// Sink returns the outbound sink for the connection.
//
// Postcondition: Returns (sink, true) if the connection is live.
func (r *Registry) Sink(connID string) (Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return entry.sink, true
}

// ConnectionsInRoom returns the IDs of all connections bound to the room.
//
// Postcondition: Returns a slice of connection IDs (may be empty).
func (r *Registry) ConnectionsInRoom(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.rooms[roomID]
	if !ok {
		return nil
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// ConnectionCount returns the total number of live connections.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
