package state

import (
	"time"

	"github.com/google/uuid"
)

// Link is the transport surface the registries and the broker need
// from a live connection. *transport.Connection satisfies it; tests
// substitute recording fakes.
type Link interface {
	ID() uuid.UUID
	Send(msg []byte)
	Close(err error)
}

// Connection is the registry's view of one transport session.
type Connection struct {
	ID        uuid.UUID
	IPAddress string
	Transport Link
	Player    *Player // nil until a name is verified
	CreatedAt time.Time
}

// Player is a verified identity. At most one Player exists per name
// at any time, and a Player belongs to at most one Room.
type Player struct {
	Name  string
	Color int // 24-bit RGB
	Conn  *Connection
	Room  *Room // nil while in the lobby
}

// Room is a declared room: its members and its bounded history.
// Rooms are created at startup from configuration and never removed;
// an empty room is dormant, not destroyed.
type Room struct {
	ID      string
	Members map[string]*Player // keyed by player name
	History *History
}

// RoomInfo is one entry of the room directory.
type RoomInfo struct {
	ID        string
	Occupants int
}
