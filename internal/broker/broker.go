// Package broker is the orchestration hub: it validates inbound
// application messages, drives the registries and fans results out to
// room members.
package broker

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/telmele/pictochat-touchgrass/pkg/config"
	"github.com/telmele/pictochat-touchgrass/pkg/protocol"
	"github.com/telmele/pictochat-touchgrass/pkg/state"
)

type Broker struct {
	logger  *slog.Logger
	state   state.Manager
	limiter *rateLimiter // nil when disabled
	secret  string
}

func New(logger *slog.Logger, manager state.Manager, cfg config.BrokerConfig, tripcodeSecret string) *Broker {
	b := &Broker{
		logger: logger.With(slog.String("component", "broker")),
		state:  manager,
		secret: tripcodeSecret,
	}
	if cfg.RateLimit.Enabled {
		b.limiter = newRateLimiter(b.logger, cfg.RateLimit.Messages, cfg.RateLimit.Window)
	}
	return b
}

// HandleMessage processes one application frame from an active
// session. Decode and registry failures are recoverable: the sender
// gets an sv_error and the connection stays open.
func (b *Broker) HandleMessage(connID uuid.UUID, raw []byte) {
	conn, ok := b.state.GetConnection(connID)
	if !ok {
		b.logger.Warn("frame from unregistered connection", slog.String("connID", connID.String()))
		return
	}

	if b.limiter != nil && !b.limiter.allow(connID) {
		b.sendError(conn, "rate limit exceeded, slow down")
		return
	}

	req, err := protocol.DecodeClient(raw)
	if err != nil {
		b.logger.Debug("dropping malformed frame",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
		b.sendError(conn, "malformed message: "+err.Error())
		return
	}

	switch req.Type {
	case protocol.TypeVerifyName:
		b.handleVerifyName(conn, req.Name)
	case protocol.TypeListRooms:
		b.handleListRooms(conn)
	case protocol.TypeJoinRoom:
		b.handleJoinRoom(conn, req.RoomID)
	case protocol.TypeLeaveRoom:
		b.handleLeaveRoom(conn)
	case protocol.TypeSendMessage:
		b.handleSendMessage(conn, req.Message)
	}
}

// Disconnect runs registry teardown for a closed connection. Invoked
// by the session exactly once; safe to call again regardless.
func (b *Broker) Disconnect(connID uuid.UUID) {
	if dep, ok := b.state.Leave(connID); ok {
		b.broadcastPlayerLeft(dep)
	}
	if err := b.state.DeregisterConnection(connID); err != nil {
		b.logger.Error("failed to deregister connection",
			slog.String("connID", connID.String()),
			slog.Any("error", err),
		)
	}
	if b.limiter != nil {
		b.limiter.forget(connID)
	}
}

// sendError reports a recoverable failure to the originating
// connection only. Errors are never surfaced to other room members.
func (b *Broker) sendError(conn *state.Connection, reason string) {
	frame, err := protocol.EncodeError(reason)
	if err != nil {
		b.logger.Error("failed to encode error frame", slog.Any("error", err))
		return
	}
	conn.Transport.Send(frame)
}

func (b *Broker) broadcastPlayerLeft(dep *state.Departure) {
	frame, err := protocol.EncodePlayerLeft(
		protocol.Player{Name: dep.Player.Name, Color: dep.Player.Color},
		dep.RoomID,
	)
	if err != nil {
		b.logger.Error("failed to encode sv_playerLeft", slog.Any("error", err))
		return
	}
	for _, member := range dep.Remaining {
		member.Conn.Transport.Send(frame)
	}
}

// isRecoverable separates registry rejections (reported to the
// sender) from programming errors (logged).
func isRecoverable(err error) bool {
	return errors.Is(err, state.ErrNameEmpty) ||
		errors.Is(err, state.ErrNameTaken) ||
		errors.Is(err, state.ErrUnknownRoom) ||
		errors.Is(err, state.ErrNoPlayer) ||
		errors.Is(err, state.ErrNotInRoom)
}
