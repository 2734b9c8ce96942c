package realtime

import "sync"

// Registry tracks which live connections are attached to which activity
// room. Purely in-memory and connection-scoped: it is empty after a process
// restart and clients re-join on reconnect.
//
// A connection belongs to at most one room; the hub leaves the old room
// before joining a new one. Mutations and count reads share one mutex so a
// count never observes a half-applied change.
type Registry struct {
	mu     sync.Mutex
	rooms  map[int64]map[string]string // activityID -> connID -> role
	byConn map[string]int64            // connID -> activityID
}

// NewRegistry creates an empty membership registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[int64]map[string]string),
		byConn: make(map[string]int64),
	}
}

// Join adds a connection to a room and returns the new member count.
// Idempotent: re-joining the same room is a no-op apart from the role update.
func (r *Registry) Join(activityID int64, connID, role string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[activityID]
	if room == nil {
		room = make(map[string]string)
		r.rooms[activityID] = room
	}
	room[connID] = role
	r.byConn[connID] = activityID
	return len(room)
}

// Leave removes a connection from a room and returns the remaining member
// count. Absent room or member is a no-op, not an error.
func (r *Registry) Leave(activityID int64, connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[activityID]
	if !ok {
		return 0
	}
	delete(room, connID)
	if r.byConn[connID] == activityID {
		delete(r.byConn, connID)
	}
	if len(room) == 0 {
		delete(r.rooms, activityID)
		return 0
	}
	return len(room)
}

// Count returns the current member count, 0 when the room is absent.
func (r *Registry) Count(activityID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[activityID])
}

// Drop removes a connection from whatever room it belonged to. Used on
// ungraceful disconnect, where the client cannot signal which room to leave.
// Returns the room it left and the remaining count; ok is false when the
// connection was not in any room.
func (r *Registry) Drop(connID string) (activityID int64, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	activityID, ok = r.byConn[connID]
	if !ok {
		return 0, 0, false
	}
	delete(r.byConn, connID)
	room := r.rooms[activityID]
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, activityID)
		return activityID, 0, true
	}
	return activityID, len(room), true
}

// Members returns the connection IDs currently in a room.
func (r *Registry) Members(activityID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	room := r.rooms[activityID]
	out := make([]string, 0, len(room))
	for id := range room {
		out = append(out, id)
	}
	return out
}

// RoomIDs returns the activity IDs that currently have members.
func (r *Registry) RoomIDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}
