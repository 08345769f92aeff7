package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Decode failures are recoverable: the broker reports them to the
// sender only and drops the frame.
var (
	ErrInvalidJSON = errors.New("protocol: frame is not a json object")
	ErrUnknownType = errors.New("protocol: unknown message type")
	ErrBadPayload  = errors.New("protocol: payload does not match type")
)

// Request is the decoded form of a client application frame. Type is
// always set; the remaining fields are populated per kind.
type Request struct {
	Type    string
	Name    string       // cl_verifyName
	RoomID  string       // cl_joinRoom
	Message *ChatMessage // cl_sendMessage
}

type verifyNamePayload struct {
	Name string `json:"name"`
}

type joinRoomPayload struct {
	ID string `json:"id"`
}

type sendMessagePayload struct {
	Message *ChatMessage `json:"message"`
}

// DecodeClient parses a client application frame. The discriminant is
// peeked before the full unmarshal so unknown kinds fail fast without
// touching the payload.
func DecodeClient(raw []byte) (*Request, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, ErrInvalidJSON
	}
	kind := gjson.GetBytes(raw, "type")
	if kind.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type field", ErrInvalidJSON)
	}

	req := &Request{Type: kind.String()}
	switch req.Type {
	case TypeVerifyName:
		var p verifyNamePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, req.Type, err)
		}
		req.Name = p.Name
	case TypeListRooms, TypeLeaveRoom:
		// no payload
	case TypeJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, req.Type, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("%w: %s: missing room id", ErrBadPayload, req.Type)
		}
		req.RoomID = p.ID
	case TypeSendMessage:
		var p sendMessagePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, req.Type, err)
		}
		if p.Message == nil {
			return nil, fmt.Errorf("%w: %s: missing message", ErrBadPayload, req.Type)
		}
		req.Message = p.Message
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
	return req, nil
}

// Per-type envelopes keep the server emissions byte-compatible: every
// documented field is always present, none bleed between types.

type nameVerifiedEnvelope struct {
	Type   string `json:"type"`
	Player Player `json:"player"`
}

type roomIDsEnvelope struct {
	Type  string   `json:"type"`
	Count []int    `json:"count"`
	IDs   []string `json:"ids"`
}

type roomDataEnvelope struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type playerRoomEnvelope struct {
	Type   string `json:"type"`
	Player Player `json:"player"`
	ID     string `json:"id"`
}

type receivedMessageEnvelope struct {
	Type    string      `json:"type"`
	Message ChatMessage `json:"message"`
}

type errorEnvelope struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func EncodeNameVerified(p Player) ([]byte, error) {
	return json.Marshal(nameVerifiedEnvelope{Type: TypeNameVerified, Player: p})
}

// EncodeRoomIDs serializes the room directory as the parallel
// count/ids arrays the protocol documents. Both slices must be the
// same length and in declaration order.
func EncodeRoomIDs(counts []int, ids []string) ([]byte, error) {
	if len(counts) != len(ids) {
		return nil, fmt.Errorf("protocol: count/ids length mismatch: %d vs %d", len(counts), len(ids))
	}
	if counts == nil {
		counts = []int{}
	}
	if ids == nil {
		ids = []string{}
	}
	return json.Marshal(roomIDsEnvelope{Type: TypeRoomIDs, Count: counts, IDs: ids})
}

func EncodeRoomData(roomID string) ([]byte, error) {
	return json.Marshal(roomDataEnvelope{Type: TypeRoomData, ID: roomID})
}

func EncodePlayerJoined(p Player, roomID string) ([]byte, error) {
	return json.Marshal(playerRoomEnvelope{Type: TypePlayerJoined, Player: p, ID: roomID})
}

func EncodePlayerLeft(p Player, roomID string) ([]byte, error) {
	return json.Marshal(playerRoomEnvelope{Type: TypePlayerLeft, Player: p, ID: roomID})
}

func EncodeReceivedMessage(m ChatMessage) ([]byte, error) {
	if m.Textboxes == nil {
		m.Textboxes = []Textbox{}
	}
	if m.Drawing == nil {
		m.Drawing = []DrawPoint{}
	}
	return json.Marshal(receivedMessageEnvelope{Type: TypeReceivedMessage, Message: m})
}

func EncodeError(reason string) ([]byte, error) {
	return json.Marshal(errorEnvelope{Type: TypeError, Reason: reason})
}

// ServerMessage is the decoded form of a server emission. Only the
// fields for the given Type are populated. Client integrations and
// tests use this; the broker itself only encodes.
type ServerMessage struct {
	Type    string       `json:"type"`
	Player  *Player      `json:"player,omitempty"`
	Count   []int        `json:"count,omitempty"`
	IDs     []string     `json:"ids,omitempty"`
	ID      string       `json:"id,omitempty"`
	Message *ChatMessage `json:"message,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// DecodeServer parses a server emission.
func DecodeServer(raw []byte) (*ServerMessage, error) {
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, ErrInvalidJSON
	}
	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	switch msg.Type {
	case TypeNameVerified, TypeRoomIDs, TypeRoomData, TypePlayerJoined,
		TypePlayerLeft, TypeReceivedMessage, TypeError:
		return &msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}
