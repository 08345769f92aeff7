package statemanager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telmele/pictochat-touchgrass/pkg/protocol"
	"github.com/telmele/pictochat-touchgrass/pkg/state"
)

// InMemoryManager keeps all registry state in mutex-guarded maps.
// connMu guards the connection table; mu guards players and rooms
// together, so a name claim and a membership change for the same
// player can never interleave.
type InMemoryManager struct {
	connMu sync.RWMutex
	conns  map[uuid.UUID]*state.Connection

	mu        sync.RWMutex
	players   map[string]*state.Player
	byConn    map[uuid.UUID]*state.Player
	rooms     map[string]*state.Room
	roomOrder []string

	logger *slog.Logger
}

// NewInMemoryManager declares the given rooms, in order. The order is
// the one sv_roomIds reports.
func NewInMemoryManager(logger *slog.Logger, roomIDs []string, historyLimit int) *InMemoryManager {
	m := &InMemoryManager{
		conns:     make(map[uuid.UUID]*state.Connection),
		players:   make(map[string]*state.Player),
		byConn:    make(map[uuid.UUID]*state.Player),
		rooms:     make(map[string]*state.Room, len(roomIDs)),
		roomOrder: make([]string, 0, len(roomIDs)),
		logger:    logger.With(slog.String("component", "state_manager_inmemory")),
	}
	for _, id := range roomIDs {
		if _, dup := m.rooms[id]; dup {
			continue
		}
		m.rooms[id] = &state.Room{
			ID:      id,
			Members: make(map[string]*state.Player),
			History: state.NewHistory(historyLimit),
		}
		m.roomOrder = append(m.roomOrder, id)
	}
	return m
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

// --- Connection lifecycle ---

func (m *InMemoryManager) RegisterConnection(link state.Link, ipAddr string) (*state.Connection, error) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	connID := link.ID()
	if _, exists := m.conns[connID]; exists {
		return nil, state.ErrConnRegistered
	}
	conn := &state.Connection{
		ID:        connID,
		IPAddress: ipAddr,
		Transport: link,
		CreatedAt: time.Now(),
	}
	m.conns[connID] = conn
	m.logger.Debug("Connection registered", slog.String("connID", connID.String()))
	return conn, nil
}

func (m *InMemoryManager) DeregisterConnection(connID uuid.UUID) error {
	m.connMu.Lock()
	conn, ok := m.conns[connID]
	if !ok {
		m.connMu.Unlock()
		return nil
	}
	delete(m.conns, connID)
	m.connMu.Unlock()

	// Defensive cleanup: a player must never outlive its connection.
	// The broker leaves the room (with notifications) before calling
	// this; anything still bound here is removed silently.
	m.mu.Lock()
	defer m.mu.Unlock()
	if player, bound := m.byConn[connID]; bound {
		if player.Room != nil {
			delete(player.Room.Members, player.Name)
			player.Room = nil
		}
		delete(m.players, player.Name)
		delete(m.byConn, connID)
		conn.Player = nil
		m.logger.Debug("Released player on deregister",
			slog.String("connID", connID.String()),
			slog.String("name", player.Name),
		)
	}
	m.logger.Debug("Connection deregistered", slog.String("connID", connID.String()))
	return nil
}

func (m *InMemoryManager) GetConnection(connID uuid.UUID) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()
	conn, ok := m.conns[connID]
	return conn, ok
}

func (m *InMemoryManager) ConnectionCountForIP(ip string) int {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	n := 0
	for _, conn := range m.conns {
		if conn.IPAddress == ip {
			n++
		}
	}
	return n
}

func (m *InMemoryManager) FindOldestConnectionForIP(ip string) (*state.Connection, bool) {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	var oldest *state.Connection
	for _, conn := range m.conns {
		if conn.IPAddress != ip {
			continue
		}
		if oldest == nil || conn.CreatedAt.Before(oldest.CreatedAt) {
			oldest = conn
		}
	}
	return oldest, oldest != nil
}

func (m *InMemoryManager) Connections() []*state.Connection {
	m.connMu.RLock()
	defer m.connMu.RUnlock()

	conns := make([]*state.Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	return conns
}

// --- Player registry ---

func (m *InMemoryManager) VerifyName(connID uuid.UUID, name string) (*state.Player, *state.Departure, error) {
	m.connMu.RLock()
	conn, ok := m.conns[connID]
	m.connMu.RUnlock()
	if !ok {
		return nil, nil, state.ErrUnknownConn
	}

	if name == "" {
		return nil, nil, state.ErrNameEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.players[name]; taken {
		return nil, nil, state.ErrNameTaken
	}
	var departure *state.Departure
	if prev, bound := m.byConn[connID]; bound {
		// Re-verification under a new name: release the old one, but
		// only once the new claim is known to succeed. The old
		// identity leaves its room, and the caller broadcasts that.
		if prev.Room != nil {
			departure = m.leaveLocked(prev)
		}
		delete(m.players, prev.Name)
	}

	player := &state.Player{
		Name:  name,
		Color: state.ColorFor(name),
		Conn:  conn,
	}
	m.players[name] = player
	m.byConn[connID] = player
	conn.Player = player

	m.logger.Debug("Name verified",
		slog.String("connID", connID.String()),
		slog.String("name", name),
	)
	return player, departure, nil
}

func (m *InMemoryManager) PlayerFor(connID uuid.UUID) (*state.Player, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	player, ok := m.byConn[connID]
	return player, ok
}

// --- Room registry ---

func (m *InMemoryManager) Rooms() []state.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]state.RoomInfo, 0, len(m.roomOrder))
	for _, id := range m.roomOrder {
		infos = append(infos, state.RoomInfo{
			ID:        id,
			Occupants: len(m.rooms[id].Members),
		})
	}
	return infos
}

func (m *InMemoryManager) Join(connID uuid.UUID, roomID string) (*state.Admission, *state.Departure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	player, ok := m.byConn[connID]
	if !ok {
		return nil, nil, state.ErrNoPlayer
	}
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, nil, state.ErrUnknownRoom
	}

	var departure *state.Departure
	if player.Room != nil {
		if player.Room == room {
			// Rejoining the current room just refreshes the view.
			return m.admissionLocked(room, player), nil, nil
		}
		departure = m.leaveLocked(player)
	}

	admission := m.admissionLocked(room, player)
	room.Members[player.Name] = player
	player.Room = room

	m.logger.Debug("Player joined room",
		slog.String("name", player.Name),
		slog.String("roomID", roomID),
	)
	return admission, departure, nil
}

func (m *InMemoryManager) Leave(connID uuid.UUID) (*state.Departure, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	player, ok := m.byConn[connID]
	if !ok || player.Room == nil {
		return nil, false
	}
	return m.leaveLocked(player), true
}

// --- Broadcast commit path ---

func (m *InMemoryManager) Submit(connID uuid.UUID, msg *protocol.ChatMessage) (*state.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	player, ok := m.byConn[connID]
	if !ok {
		return nil, state.ErrNoPlayer
	}
	room := player.Room
	if room == nil {
		return nil, state.ErrNotInRoom
	}

	msg.Player = protocol.Player{Name: player.Name, Color: player.Color}
	room.History.Append(msg)

	members := make([]*state.Player, 0, len(room.Members))
	for _, p := range room.Members {
		members = append(members, p)
	}
	return &state.Delivery{Message: msg, RoomID: room.ID, Members: members}, nil
}

// admissionLocked snapshots a room before the player is inserted.
func (m *InMemoryManager) admissionLocked(room *state.Room, player *state.Player) *state.Admission {
	others := make([]*state.Player, 0, len(room.Members))
	for _, p := range room.Members {
		if p != player {
			others = append(others, p)
		}
	}
	return &state.Admission{
		Room:    room,
		Player:  player,
		Others:  others,
		History: room.History.Snapshot(),
	}
}

func (m *InMemoryManager) leaveLocked(player *state.Player) *state.Departure {
	room := player.Room
	delete(room.Members, player.Name)
	player.Room = nil

	remaining := make([]*state.Player, 0, len(room.Members))
	for _, p := range room.Members {
		remaining = append(remaining, p)
	}
	m.logger.Debug("Player left room",
		slog.String("name", player.Name),
		slog.String("roomID", room.ID),
	)
	return &state.Departure{Player: player, RoomID: room.ID, Remaining: remaining}
}
