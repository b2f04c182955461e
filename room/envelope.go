package room

import (
	"encoding/json"

	"github.com/Polqt/crdtcollab/crdt"
)

// Envelope is the server-to-client wire shape: every outbound message
// is a self-delimited document tagged by Type, with only the fields
// relevant to that type populated.
type Envelope struct {
	Type string `json:"type"`

	// storage:init
	Root json.RawMessage `json:"root,omitempty"`

	// storage:ops
	Ops   []crdt.Op `json:"ops,omitempty"`
	Clock uint64    `json:"clock,omitempty"`

	// presence
	Presence []PresenceEntry `json:"presence,omitempty"`

	// cursors
	Cursors map[ConnID]Cursor `json:"cursors,omitempty"`

	// live-state
	LiveState map[string]LiveEntry `json:"live_state,omitempty"`

	// message
	Message json.RawMessage `json:"message,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// PresenceEntry pairs a connection id with its presence, for the
// "presence" envelope's full list.
type PresenceEntry struct {
	ConnID   ConnID `json:"conn_id"`
	Presence Presence `json:"presence"`
}

const (
	EnvStorageInit = "storage:init"
	EnvStorageOps  = "storage:ops"
	EnvPresence    = "presence"
	EnvCursors     = "cursors"
	EnvLiveState   = "live-state"
	EnvMessage     = "message"
	EnvError       = "error"
)
