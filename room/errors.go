package room

import "errors"

// Error kinds scoped to room-engine operations.
var (
	// ErrRoomClosed: the room has already torn down (last connection
	// detached and its final flush completed).
	ErrRoomClosed = errors.New("room: closed")

	// ErrUnknownConnection: an op or presence update arrived for a
	// connection id the room has no record of attaching.
	ErrUnknownConnection = errors.New("room: unknown connection")
)
