package golf

import "errors"

var (
	ErrNameRequired   = errors.New("name is required")
	ErrCodeRequired   = errors.New("game code is required")
	ErrGameNotFound   = errors.New("game not found")
	ErrBusy           = errors.New("another request is in flight")
	ErrNoGame         = errors.New("no active game")
	ErrNoPlayers      = errors.New("need at least 1 player to start the game")
	ErrHoleOutOfRange = errors.New("hole out of range")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrBadTransition  = errors.New("screen transition not allowed")
	ErrSuperseded     = errors.New("session changed while the request was in flight")
)
