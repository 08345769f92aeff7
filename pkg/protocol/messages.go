package protocol

import (
	"encoding/json"
	"fmt"
)

// Literal frames exchanged outside the JSON envelope.
const (
	LiteralHandshake = "handshake"
	LiteralPing      = "ping"
	LiteralPong      = "pong"
)

// Server-to-client envelope types.
const (
	TypeNameVerified    = "sv_nameVerified"
	TypeRoomIDs         = "sv_roomIds"
	TypeRoomData        = "sv_roomData"
	TypePlayerJoined    = "sv_playerJoined"
	TypePlayerLeft      = "sv_playerLeft"
	TypeReceivedMessage = "sv_receivedMessage"
	TypeError           = "sv_error"
)

// Client-to-server request types, symmetric to the sv_ responses.
const (
	TypeVerifyName  = "cl_verifyName"
	TypeListRooms   = "cl_roomIds"
	TypeJoinRoom    = "cl_joinRoom"
	TypeLeaveRoom   = "cl_leaveRoom"
	TypeSendMessage = "cl_sendMessage"
)

// DrawOp tags a point in a drawing with what the renderer should do
// when it reaches it.
type DrawOp int

const (
	DrawContinue  DrawOp = 0
	DrawStartLine DrawOp = 1
	DrawFloodFill DrawOp = 2
	DrawClear     DrawOp = 3
)

// UnmarshalJSON rejects out-of-range ops so a bad drawing is a decode
// error rather than garbage handed to every renderer in the room.
func (op *DrawOp) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v < int(DrawContinue) || v > int(DrawClear) {
		return fmt.Errorf("draw op out of range: %d", v)
	}
	*op = DrawOp(v)
	return nil
}

// DrawPoint is one point of a freehand drawing. The wire field for the
// op is "type" for compatibility with existing clients.
type DrawPoint struct {
	X  int    `json:"x"`
	Y  int    `json:"y"`
	Op DrawOp `json:"type"`
}

// Textbox is a positioned run of chat text on the canvas.
type Textbox struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Text string `json:"text"`
}

// Player is the public identity attached to every emission.
type Player struct {
	Name  string `json:"name"`
	Color int    `json:"color"`
}

// ChatMessage is one submission: text boxes plus an optional drawing.
// Immutable once constructed; retained only in room history.
type ChatMessage struct {
	Player    Player      `json:"player"`
	Textboxes []Textbox   `json:"textboxes"`
	Lines     int         `json:"lines"`
	Drawing   []DrawPoint `json:"drawing"`
}

// StartLineCount reports how many stroke starts the drawing carries.
// Clients send Lines redundantly; a mismatch is tolerated but logged.
func (m *ChatMessage) StartLineCount() int {
	n := 0
	for _, p := range m.Drawing {
		if p.Op == DrawStartLine {
			n++
		}
	}
	return n
}
