package session

import (
	"encoding/json"

	"github.com/Polqt/crdtcollab/crdt"
	"github.com/Polqt/crdtcollab/room"
)

// Inbound client→server envelope types.
const (
	InStorageInit    = "storage:init"
	InStorageOps     = "storage:ops"
	InPresenceUpdate = "presence:update"
	InCursorUpdate   = "cursor:update"
	InLiveStateSet   = "live-state:set"
	InMessage        = "message"
	// InStorageUndo/InStorageRedo let a client trigger the room's
	// per-connection history manager (history/history.go).
	InStorageUndo = "storage:undo"
	InStorageRedo = "storage:redo"
)

// presencePatchWire is the JSON shape of a presence:update partial; nil
// fields are left untouched (room.applyPresencePatch's contract).
type presencePatchWire struct {
	DisplayName  *string        `json:"display_name,omitempty"`
	Color        *string        `json:"color,omitempty"`
	OnlineStatus *string        `json:"online_status,omitempty"`
	Location     *string        `json:"location,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func (w presencePatchWire) toPatch() room.PresencePatch {
	return room.PresencePatch{
		DisplayName:  w.DisplayName,
		Color:        w.Color,
		OnlineStatus: w.OnlineStatus,
		Location:     w.Location,
		Metadata:     w.Metadata,
	}
}

// InboundEnvelope is the wire shape of every client→server message;
// only the fields relevant to Type are populated on the sender's side.
type InboundEnvelope struct {
	Type string `json:"type"`

	// storage:init
	Root json.RawMessage `json:"root,omitempty"`

	// storage:ops
	Ops []crdt.Op `json:"ops,omitempty"`

	// presence:update
	Presence *presencePatchWire `json:"presence,omitempty"`

	// cursor:update
	X        float64         `json:"x,omitempty"`
	Y        float64         `json:"y,omitempty"`
	Viewport *room.Viewport  `json:"viewport,omitempty"`

	// live-state:set
	Key       string          `json:"key,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp float64         `json:"timestamp,omitempty"`
	Merge     bool            `json:"merge,omitempty"`

	// message
	Message json.RawMessage `json:"message,omitempty"`
}
