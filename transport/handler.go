package transport

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Polqt/crdtcollab/internal/idgen"
	"github.com/Polqt/crdtcollab/room"
	"github.com/Polqt/crdtcollab/session"
)

// Handler upgrades HTTP requests under its path prefix to websocket
// connections and wires them into a session.Manager. The join URL
// shape is `/<prefix>/<room_id>?user_id=&display_name=&color=&location=`.
type Handler struct {
	prefix   string
	manager  *session.Manager
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler serving rooms under pathPrefix (e.g.
// "/rooms"), dispatching through manager.
func NewHandler(pathPrefix string, manager *session.Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		prefix:  strings.TrimSuffix(pathPrefix, "/"),
		manager: manager,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Editor integrations and UI layers are external collaborators;
			// this core trusts the client identity passed on connect and
			// does not enforce a same-origin policy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, h.prefix+"/")
	if roomID == "" || roomID == r.URL.Path {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		http.Error(w, "missing user_id", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "room", roomID, "err", err)
		return
	}

	conn := newWSConn(room.ConnID(idgen.ConnID()), ws, h.logger)
	welcome, err := h.manager.Connect(room.RoomID(roomID), conn, room.JoinPayload{
		UserID:      userID,
		DisplayName: q.Get("display_name"),
		Color:       q.Get("color"),
		Location:    q.Get("location"),
	})
	if err != nil {
		h.logger.Warn("connect rejected", "room", roomID, "conn", conn.ID(), "err", err)
		_ = ws.Close()
		return
	}

	go conn.writePump()
	sendWelcome(conn, welcome)

	conn.readPump(h.logger, h.manager.Dispatch)
	h.manager.Disconnect(conn)
}

func sendWelcome(conn *wsConn, welcome room.Welcome) {
	_ = conn.Send(room.Envelope{Type: room.EnvStorageInit, Root: welcome.Root, Clock: welcome.RoomClock})
	if len(welcome.Presence) > 0 {
		_ = conn.Send(room.Envelope{Type: room.EnvPresence, Presence: welcome.Presence})
	}
	if len(welcome.Cursors) > 0 {
		_ = conn.Send(room.Envelope{Type: room.EnvCursors, Cursors: welcome.Cursors})
	}
	if len(welcome.LiveState) > 0 {
		_ = conn.Send(room.Envelope{Type: room.EnvLiveState, LiveState: welcome.LiveState})
	}
}
