package relay

import (
	"sort"
	"sync"
)

// Member is a user's live presence record within one room.
type Member struct {
	UserID   string
	Username string
	Position Vec3
	Rotation Vec3
}

// Store is the process-wide room membership map: roomID → userID → Member.
// Rooms are created lazily on first join and deleted when their last
// member leaves. All methods are safe for concurrent use; a single mutex
// serializes mutations.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Member
}

// NewStore creates an empty room Store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]map[string]*Member),
	}
}

// Join adds a member to a room, creating the room if absent. A duplicate
// userID overwrites the existing entry; last join wins, never an error.
//
// Precondition: roomID and userID must be non-empty.
// Postcondition: Returns whether the room was newly created and the
// members already present, excluding the joiner, ordered by userID.
func (s *Store) Join(roomID, userID, username string, position, rotation Vec3) (isNewRoom bool, existing []Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		room = make(map[string]*Member)
		s.rooms[roomID] = room
		isNewRoom = true
	}

	existing = membersExceptLocked(room, userID)

	room[userID] = &Member{
		UserID:   userID,
		Username: username,
		Position: position,
		Rotation: rotation,
	}
	return isNewRoom, existing
}

// UpdateTransform updates a member's position and rotation in place.
// An absent room or userID is a no-op, not an error, guarding against
// stale messages arriving after a leave.
//
// Postcondition: Returns true if a member was updated.
func (s *Store) UpdateTransform(roomID, userID string, position, rotation Vec3) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	member, ok := room[userID]
	if !ok {
		return false
	}

	member.Position = position
	member.Rotation = rotation
	return true
}

// Leave removes a member from a room, deleting the room when it empties.
// An absent room or userID is a no-op.
//
// Postcondition: Returns true if the room was deleted because the leaver
// was its last member.
func (s *Store) Leave(roomID, userID string) (roomBecameEmpty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := room[userID]; !ok {
		return false
	}

	delete(room, userID)
	if len(room) == 0 {
		delete(s.rooms, roomID)
		return true
	}
	return false
}

// MembersExcept returns all members of a room except the given userID,
// ordered by userID.
//
// Postcondition: Returns a slice of member copies (may be empty).
func (s *Store) MembersExcept(roomID, userID string) []Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	return membersExceptLocked(room, userID)
}

// RoomCount returns the number of rooms currently holding members.
func (s *Store) RoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// MemberCount returns the number of members in the given room.
func (s *Store) MemberCount(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID])
}

// membersExceptLocked copies a room's members, excluding one userID,
// sorted by userID so map iteration order never reaches the wire.
// Caller must hold at least a read lock.
func membersExceptLocked(room map[string]*Member, userID string) []Member {
	members := make([]Member, 0, len(room))
	for id, m := range room {
		if id == userID {
			continue
		}
		members = append(members, *m)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].UserID < members[j].UserID
	})
	return members
}
