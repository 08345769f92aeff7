// Package session owns the per-connection lifecycle: the mandatory
// handshake, the liveness probe and the hand-off of application
// frames to the broker.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telmele/pictochat-touchgrass/pkg/protocol"
	"github.com/telmele/pictochat-touchgrass/pkg/state"
)

// Close reasons. Both are fatal to the connection; neither is ever
// broadcast to other players.
var (
	ErrHandshakeTimeout  = errors.New("session: handshake deadline exceeded")
	ErrProtocolViolation = errors.New("session: first frame was not the handshake literal")
	ErrLivenessTimeout   = errors.New("session: liveness probe unanswered")
)

// State of a connection's protocol lifecycle.
type State int32

const (
	StateAwaitingHandshake State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting_handshake"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handler is the broker surface a session needs: application frames
// in, and exactly-once teardown on closure.
type Handler interface {
	HandleMessage(connID uuid.UUID, raw []byte)
	Disconnect(connID uuid.UUID)
}

type Config struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongGrace        time.Duration
}

// Session is the state machine for one connection:
//
//	AwaitingHandshake -> Active -> Closed
//
// Wired as the transport's message/close callbacks. It never touches
// the registries directly; all of that goes through the Handler.
type Session struct {
	link    state.Link
	handler Handler
	cfg     Config
	logger  *slog.Logger

	mu             sync.Mutex
	st             State
	lastActivity   time.Time
	handshakeTimer *time.Timer
	stopLiveness   chan struct{}
}

func New(link state.Link, handler Handler, cfg Config, logger *slog.Logger) *Session {
	return &Session{
		link:    link,
		handler: handler,
		cfg:     cfg,
		logger: logger.With(
			slog.String("component", "session"),
			slog.String("connID", link.ID().String()),
		),
		st:           StateAwaitingHandshake,
		stopLiveness: make(chan struct{}),
	}
}

// Start arms the handshake deadline. Call once, before the transport
// begins delivering frames.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st != StateAwaitingHandshake {
		return
	}
	s.handshakeTimer = time.AfterFunc(s.cfg.HandshakeTimeout, func() {
		s.mu.Lock()
		expired := s.st == StateAwaitingHandshake
		s.mu.Unlock()
		if expired {
			s.link.Close(ErrHandshakeTimeout)
		}
	})
}

// State reports the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// HandleFrame is the transport's message callback. Frames arrive
// serially from the read pump, which is what preserves per-sender
// submission order downstream.
func (s *Session) HandleFrame(_ context.Context, connID uuid.UUID, raw []byte) {
	s.mu.Lock()
	switch s.st {
	case StateClosed:
		s.mu.Unlock()
		return

	case StateAwaitingHandshake:
		if string(raw) != protocol.LiteralHandshake {
			s.mu.Unlock()
			s.logger.Warn("closing: first frame was not the handshake literal")
			s.link.Close(ErrProtocolViolation)
			return
		}
		s.st = StateActive
		s.lastActivity = time.Now()
		if s.handshakeTimer != nil {
			s.handshakeTimer.Stop()
		}
		s.mu.Unlock()
		go s.livenessLoop()
		s.logger.Debug("handshake complete")
		return

	case StateActive:
		s.lastActivity = time.Now()
		s.mu.Unlock()
		switch string(raw) {
		case protocol.LiteralPong:
			// Deadline already refreshed above.
		case protocol.LiteralPing:
			// Clients never originate pings; tolerate and ignore.
		default:
			s.handler.HandleMessage(connID, raw)
		}
	}
}

// HandleClose is the transport's close callback. The transport fires
// it exactly once, so registry teardown runs exactly once even when
// a liveness timeout races a transport-initiated close.
func (s *Session) HandleClose(connID uuid.UUID, err error) {
	s.mu.Lock()
	if s.st == StateClosed {
		s.mu.Unlock()
		return
	}
	s.st = StateClosed
	if s.handshakeTimer != nil {
		s.handshakeTimer.Stop()
	}
	close(s.stopLiveness)
	s.mu.Unlock()

	s.logger.Info("session closed", slog.Any("reason", err))
	s.handler.Disconnect(connID)
}

// livenessLoop sends the ping literal every interval and closes the
// connection once the peer has been silent past the grace window.
func (s *Session) livenessLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopLiveness:
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()
			if idle > s.cfg.PongGrace {
				s.logger.Warn("closing: liveness probe unanswered",
					slog.Duration("idle", idle))
				s.link.Close(ErrLivenessTimeout)
				return
			}
			s.link.Send([]byte(protocol.LiteralPing))
		}
	}
}
