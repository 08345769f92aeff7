package broker

import (
	"log/slog"

	"github.com/telmele/pictochat-touchgrass/pkg/identity"
	"github.com/telmele/pictochat-touchgrass/pkg/protocol"
	"github.com/telmele/pictochat-touchgrass/pkg/state"
)

func (b *Broker) handleVerifyName(conn *state.Connection, claimed string) {
	name := identity.Decorate(claimed, b.secret)

	player, departure, err := b.state.VerifyName(conn.ID, name)
	if err != nil {
		if isRecoverable(err) {
			b.sendError(conn, err.Error())
		} else {
			b.logger.Error("name verification failed", slog.Any("error", err))
		}
		return
	}

	// Claiming a new name while in a room drops the old identity from
	// it; the room hears about that like any other leave.
	if departure != nil {
		b.broadcastPlayerLeft(departure)
	}

	frame, err := protocol.EncodeNameVerified(protocol.Player{Name: player.Name, Color: player.Color})
	if err != nil {
		b.logger.Error("failed to encode sv_nameVerified", slog.Any("error", err))
		return
	}
	conn.Transport.Send(frame)
}

func (b *Broker) handleListRooms(conn *state.Connection) {
	infos := b.state.Rooms()
	counts := make([]int, len(infos))
	ids := make([]string, len(infos))
	for i, info := range infos {
		counts[i] = info.Occupants
		ids[i] = info.ID
	}

	frame, err := protocol.EncodeRoomIDs(counts, ids)
	if err != nil {
		b.logger.Error("failed to encode sv_roomIds", slog.Any("error", err))
		return
	}
	conn.Transport.Send(frame)
}

func (b *Broker) handleJoinRoom(conn *state.Connection, roomID string) {
	admission, departure, err := b.state.Join(conn.ID, roomID)
	if err != nil {
		if isRecoverable(err) {
			b.sendError(conn, err.Error())
		} else {
			b.logger.Error("join failed", slog.String("roomID", roomID), slog.Any("error", err))
		}
		return
	}

	// Joining a new room implicitly leaves the previous one; the old
	// room hears about it first.
	if departure != nil {
		b.broadcastPlayerLeft(departure)
	}

	roomData, err := protocol.EncodeRoomData(admission.Room.ID)
	if err != nil {
		b.logger.Error("failed to encode sv_roomData", slog.Any("error", err))
		return
	}
	conn.Transport.Send(roomData)

	// Replay retained history so the joiner reconstructs the canvas.
	for _, msg := range admission.History {
		frame, err := protocol.EncodeReceivedMessage(*msg)
		if err != nil {
			b.logger.Error("failed to encode history replay", slog.Any("error", err))
			continue
		}
		conn.Transport.Send(frame)
	}

	joined, err := protocol.EncodePlayerJoined(
		protocol.Player{Name: admission.Player.Name, Color: admission.Player.Color},
		admission.Room.ID,
	)
	if err != nil {
		b.logger.Error("failed to encode sv_playerJoined", slog.Any("error", err))
		return
	}
	// The joiner itself gets sv_roomData, not its own join event.
	for _, member := range admission.Others {
		member.Conn.Transport.Send(joined)
	}

	b.logger.Info("player joined room",
		slog.String("name", admission.Player.Name),
		slog.String("roomID", admission.Room.ID),
	)
}

func (b *Broker) handleLeaveRoom(conn *state.Connection) {
	// Leaving while in no room is a no-op, not an error.
	if dep, ok := b.state.Leave(conn.ID); ok {
		b.broadcastPlayerLeft(dep)
		b.logger.Info("player left room",
			slog.String("name", dep.Player.Name),
			slog.String("roomID", dep.RoomID),
		)
	}
}

func (b *Broker) handleSendMessage(conn *state.Connection, msg *protocol.ChatMessage) {
	// Tolerate a lines/stroke-count mismatch: renderers trust the
	// drawing itself, so the message passes through unchanged.
	if starts := msg.StartLineCount(); starts != msg.Lines {
		b.logger.Warn("lines field disagrees with drawing",
			slog.Int("lines", msg.Lines),
			slog.Int("startOps", starts),
		)
	}

	delivery, err := b.state.Submit(conn.ID, msg)
	if err != nil {
		if isRecoverable(err) {
			b.sendError(conn, err.Error())
		} else {
			b.logger.Error("submit failed", slog.Any("error", err))
		}
		return
	}

	frame, err := protocol.EncodeReceivedMessage(*delivery.Message)
	if err != nil {
		b.logger.Error("failed to encode sv_receivedMessage", slog.Any("error", err))
		return
	}
	// Room-wide fan-out, sender included: the echo is what the
	// sender's client appends to its own history view.
	for _, member := range delivery.Members {
		member.Conn.Transport.Send(frame)
	}
}
