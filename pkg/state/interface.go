package state

import (
	"github.com/google/uuid"

	"github.com/telmele/pictochat-touchgrass/pkg/protocol"
)

// Admission is the result of a successful join: everything the broker
// needs to notify the joiner and the rest of the room.
type Admission struct {
	Room   *Room
	Player *Player
	// Others are the members present before the join.
	Others []*Player
	// History is the room's retained messages, oldest first, replayed
	// to the joiner so it can reconstruct the canvas.
	History []*protocol.ChatMessage
}

// Departure describes a completed leave.
type Departure struct {
	Player    *Player
	RoomID    string
	Remaining []*Player
}

// Delivery is an accepted submission stamped with its sender and the
// recipients resolved at commit time.
type Delivery struct {
	Message *protocol.ChatMessage
	RoomID  string
	Members []*Player
}

// Manager owns all process-wide mutable shared state: the connection
// table, the player name table and the room directory. Every mutation
// funnels through it; per-player operations are linearizable.
type Manager interface {
	// --- Connection lifecycle ---
	RegisterConnection(link Link, ipAddr string) (*Connection, error)
	// DeregisterConnection removes the connection and, defensively,
	// any player still bound to it. Idempotent. Callers wanting leave
	// notifications must call Leave first.
	DeregisterConnection(connID uuid.UUID) error
	GetConnection(connID uuid.UUID) (*Connection, bool)
	ConnectionCountForIP(ip string) int
	FindOldestConnectionForIP(ip string) (*Connection, bool)
	Connections() []*Connection

	// --- Player registry ---
	// VerifyName claims a display name for a connection. The color is
	// allocated deterministically from the name. Re-verifying while in
	// a room removes the old identity from it; the returned Departure
	// is non-nil in that case so the room can be notified.
	VerifyName(connID uuid.UUID, name string) (*Player, *Departure, error)
	PlayerFor(connID uuid.UUID) (*Player, bool)

	// --- Room registry ---
	// Rooms lists the directory in declaration order.
	Rooms() []RoomInfo
	// Join adds the connection's player to a room, leaving any
	// previous room first. The returned Departure is non-nil when an
	// auto-leave happened.
	Join(connID uuid.UUID, roomID string) (*Admission, *Departure, error)
	// Leave removes the player from its room. Reports false when the
	// connection has no player or the player is in no room; calling
	// it again is a no-op.
	Leave(connID uuid.UUID) (*Departure, bool)

	// --- Broadcast commit path ---
	// Submit stamps the message with the sending player, appends it
	// to the room history and resolves the recipient set, atomically.
	Submit(connID uuid.UUID, msg *protocol.ChatMessage) (*Delivery, error)
}
