package state

import "errors"

// Registry failures are recoverable: the broker reports them to the
// requesting connection and mutates nothing.
var (
	ErrNameEmpty      = errors.New("state: display name is empty")
	ErrNameTaken      = errors.New("state: display name already in use")
	ErrUnknownRoom    = errors.New("state: unknown room id")
	ErrNoPlayer       = errors.New("state: connection has no verified name")
	ErrNotInRoom      = errors.New("state: player is not in a room")
	ErrUnknownConn    = errors.New("state: unknown connection")
	ErrConnRegistered = errors.New("state: connection already registered")
)
