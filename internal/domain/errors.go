package domain

import "errors"

// Error taxonomy for the session state machine. The coordinator matches
// these with errors.Is and turns all but ErrUserResolutionTimeout into
// structured wire results.
var (
	ErrInvalidIdentity       = errors.New("userid not provided or found")
	ErrUserNotFound          = errors.New("user not found")
	ErrRoomNotFound          = errors.New("room not found or does not exist")
	ErrAlreadyExists         = errors.New("room already exists")
	ErrNoHost                = errors.New("room does not have a host")
	ErrNoActiveRoom          = errors.New("user has no room to leave")
	ErrUserResolutionTimeout = errors.New("user resolution timed out")
)
