package session

import "errors"

// Error kinds scoped to the session manager's envelope dispatch and
// connection lifecycle.
var (
	// ErrMalformedEnvelope: the envelope cannot be parsed or names an
	// unknown type. The connection is closed.
	ErrMalformedEnvelope = errors.New("session: malformed envelope")

	// ErrUnknownRoom: Dispatch got an envelope from a connection that is
	// not bound to a live room (for example, one already torn down). The
	// transport logs it and keeps reading; it is never fatal.
	ErrUnknownRoom = errors.New("session: unknown room")
)
