package ws

import (
	"sync"

	"github.com/google/uuid"
)

// Registry indexes live connections by id, by user and by room.
// A connection is either fully present in every index or absent from all.
type Registry struct {
	mu        sync.RWMutex
	conns     map[string]*Client
	byUser    map[uuid.UUID]map[string]*Client
	rooms     map[string]map[string]*Client
	connRooms map[string]map[string]struct{}
}

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[string]*Client),
		byUser:    make(map[uuid.UUID]map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Add registers a connection and reports whether it is the user's first
func (r *Registry) Add(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[c.id]; exists {
		return false
	}
	r.conns[c.id] = c
	r.connRooms[c.id] = make(map[string]struct{})

	userConns := r.byUser[c.userID]
	if userConns == nil {
		userConns = make(map[string]*Client)
		r.byUser[c.userID] = userConns
	}
	userConns[c.id] = c
	return len(userConns) == 1
}

// Remove drops a connection from every index. It returns the rooms the
// connection had joined and whether it was the user's last connection.
// Removing an unknown connection is a no-op.
func (r *Registry) Remove(c *Client) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[c.id]; !exists {
		return nil, false
	}
	delete(r.conns, c.id)

	joined := make([]string, 0, len(r.connRooms[c.id]))
	for room := range r.connRooms[c.id] {
		joined = append(joined, room)
		r.removeFromRoom(room, c.id)
	}
	delete(r.connRooms, c.id)

	last := false
	if userConns := r.byUser[c.userID]; userConns != nil {
		delete(userConns, c.id)
		if len(userConns) == 0 {
			delete(r.byUser, c.userID)
			last = true
		}
	}
	return joined, last
}

// Join adds a registered connection to a room. It returns false when the
// connection is not registered or was already in the room.
func (r *Registry) Join(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.connRooms[c.id]
	if !ok {
		return false
	}
	if _, in := rooms[room]; in {
		return false
	}
	rooms[room] = struct{}{}

	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	members[c.id] = c
	return true
}

// Leave removes a connection from a room and reports whether it was a member
func (r *Registry) Leave(c *Client, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.connRooms[c.id]
	if !ok {
		return false
	}
	if _, in := rooms[room]; !in {
		return false
	}
	delete(rooms, room)
	r.removeFromRoom(room, c.id)
	return true
}

func (r *Registry) removeFromRoom(room, connID string) {
	members := r.rooms[room]
	if members == nil {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// InRoom reports whether the connection has joined room
func (r *Registry) InRoom(c *Client, room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, in := r.connRooms[c.id][room]
	return in
}

// UserConnections returns a snapshot of the user's live connections
func (r *Registry) UserConnections(userID uuid.UUID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collect(r.byUser[userID])
}

// RoomConnections returns a snapshot of the connections joined to room
func (r *Registry) RoomConnections(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collect(r.rooms[room])
}

// UserConnectionCount returns the number of live connections of the user
func (r *Registry) UserConnectionCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser[userID])
}

// IsConnected reports whether the user holds at least one live connection
func (r *Registry) IsConnected(userID uuid.UUID) bool {
	return r.UserConnectionCount(userID) > 0
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// All returns every live connection
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return collect(r.conns)
}

// RoomCount returns the number of non-empty rooms
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

func collect(m map[string]*Client) []*Client {
	out := make([]*Client, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}
