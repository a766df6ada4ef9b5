// Package realtime tracks live socket connections, the rooms they have
// joined, and fans typed events out to those rooms.
package realtime

import (
	"strings"
	"sync"
)

// Room is a broadcast scope: board:<id> or user:<id>.
type Room string

const (
	boardRoomPrefix = "board:"
	userRoomPrefix  = "user:"
)

func BoardRoom(boardID string) Room { return Room(boardRoomPrefix + boardID) }

func UserRoom(userID string) Room { return Room(userRoomPrefix + userID) }

func (r Room) IsBoard() bool { return strings.HasPrefix(string(r), boardRoomPrefix) }

// BoardID returns the board id of a board room, or "" for any other room.
func (r Room) BoardID() string {
	if !r.IsBoard() {
		return ""
	}
	return strings.TrimPrefix(string(r), boardRoomPrefix)
}

// Connection is one live client. Send must not block.
type Connection interface {
	ID() string
	UserID() string
	Send(msg []byte) bool
}

type entry struct {
	conn  Connection
	rooms map[Room]struct{}
}

// Registry maps connections to rooms and back. Changes are visible to the
// next MembersOf call as soon as the mutating call returns.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
	rooms map[Room]map[string]Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		rooms: make(map[Room]map[string]Connection),
	}
}

// Register adds conn and joins it to its user's private room.
func (r *Registry) Register(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID()]; ok {
		return
	}
	r.conns[conn.ID()] = &entry{conn: conn, rooms: make(map[Room]struct{})}
	r.joinLocked(conn.ID(), UserRoom(conn.UserID()))
}

// Unregister removes the connection from every room it belonged to.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return
	}
	for room := range e.rooms {
		r.removeFromRoomLocked(connID, room)
	}
	delete(r.conns, connID)
}

// Join adds a registered connection to room. Joining twice is a no-op.
// Returns false if the connection is unknown.
func (r *Registry) Join(connID string, room Room) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joinLocked(connID, room)
}

func (r *Registry) joinLocked(connID string, room Room) bool {
	e, ok := r.conns[connID]
	if !ok {
		return false
	}
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]Connection)
		r.rooms[room] = members
	}
	members[connID] = e.conn
	e.rooms[room] = struct{}{}
	return true
}

// Leave removes the connection from room; no-op if it isn't there.
func (r *Registry) Leave(connID string, room Room) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(e.rooms, room)
	r.removeFromRoomLocked(connID, room)
}

// LeaveUser removes every connection of userID from room and returns how
// many were removed.
func (r *Registry) LeaveUser(userID string, room Room) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for connID, conn := range r.rooms[room] {
		if conn.UserID() != userID {
			continue
		}
		if e, ok := r.conns[connID]; ok {
			delete(e.rooms, room)
		}
		r.removeFromRoomLocked(connID, room)
		removed++
	}
	return removed
}

func (r *Registry) removeFromRoomLocked(connID string, room Room) {
	members := r.rooms[room]
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// MembersOf returns a snapshot of the connections in room.
func (r *Registry) MembersOf(room Room) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]Connection, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

func (r *Registry) InRoom(connID string, room Room) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return false
	}
	_, ok = e.rooms[room]
	return ok
}

// RoomsOf returns the rooms a connection has joined.
func (r *Registry) RoomsOf(connID string) []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make([]Room, 0, len(e.rooms))
	for room := range e.rooms {
		out = append(out, room)
	}
	return out
}

type RegistryStats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistryStats{Connections: len(r.conns), Rooms: len(r.rooms)}
}
