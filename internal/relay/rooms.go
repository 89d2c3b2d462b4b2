// Package relay manages room membership, the subscriptions that scope event
// delivery. Rooms spring into existence on first join and vanish when the last
// member leaves; there is no authoritative room catalog.
package relay

import "sync"

// Rooms indexes room name to member session ids, with a reverse index so a
// closing connection can be removed from every room it joined without a scan.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
	joined  map[string]map[string]struct{}
}

// NewRooms creates an empty room membership index.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join adds a session to a room. Idempotent; the room is created on first join.
func (r *Rooms) Join(room, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[room] == nil {
		r.members[room] = make(map[string]struct{})
	}
	r.members[room][sessionID] = struct{}{}

	if r.joined[sessionID] == nil {
		r.joined[sessionID] = make(map[string]struct{})
	}
	r.joined[sessionID][room] = struct{}{}
}

// Leave removes a session from a room. Unknown rooms or sessions are no-ops,
// never errors.
func (r *Rooms) Leave(room, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, sessionID)
}

func (r *Rooms) leaveLocked(room, sessionID string) {
	if set, ok := r.members[room]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.members, room)
		}
	}
	if set, ok := r.joined[sessionID]; ok {
		delete(set, room)
		if len(set) == 0 {
			delete(r.joined, sessionID)
		}
	}
}

// MembersOf returns a copy of the room's current member session ids, possibly
// empty.
func (r *Rooms) MembersOf(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.members[room]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for sessionID := range set {
		ids = append(ids, sessionID)
	}
	return ids
}

// RemoveConnection removes the session from every room it belongs to. Called
// during connection teardown.
func (r *Rooms) RemoveConnection(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room := range r.joined[sessionID] {
		r.leaveLocked(room, sessionID)
	}
}

// RoomCount returns the number of rooms with at least one member.
func (r *Rooms) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
