// Package transport implements the websocket upgrade and per-connection
// read/write pumps, built on github.com/gorilla/websocket rather than a
// hand-rolled RFC 6455 frame parser.
package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Polqt/crdtcollab/room"
	"github.com/Polqt/crdtcollab/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1MiB; generous for a batched op payload
	sendQueueDepth = 32
)

var errSendQueueFull = errors.New("transport: send queue full")
var errConnClosed = errors.New("transport: connection closed")

// wsConn adapts a *websocket.Conn to room.Conn. Send never blocks: a
// full queue reports an error so the room drops this peer instead of
// buffering for it. closed guards send against a Close racing a Send
// invoked concurrently from another connection's broadcast — both can
// run well after the room has released its lock.
type wsConn struct {
	id     room.ConnID
	ws     *websocket.Conn
	send   chan []byte
	logger *slog.Logger

	closeMu sync.Mutex
	closed  bool
}

func newWSConn(id room.ConnID, ws *websocket.Conn, logger *slog.Logger) *wsConn {
	return &wsConn{id: id, ws: ws, send: make(chan []byte, sendQueueDepth), logger: logger}
}

func (c *wsConn) ID() room.ConnID { return c.id }

func (c *wsConn) Send(env room.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *wsConn) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.closeMu.Unlock()
	return c.ws.Close()
}

// writePump owns all writes to the underlying connection (gorilla's
// *websocket.Conn forbids concurrent writers) and sends periodic pings
// to detect dead peers between client messages.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("ws write failed", "conn", c.id, "err", err)
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump blocks reading frames until the connection closes or sends a
// malformed envelope, dispatching each to dispatch. Only a malformed
// envelope (unparseable JSON or unknown type) terminates the
// connection; every other dispatch error is logged and the loop
// continues, since the core never fails a connection over a single
// dropped op or a race against an in-flight disconnect elsewhere.
func (c *wsConn) readPump(logger *slog.Logger, dispatch func(room.Conn, []byte) error) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if err := dispatch(c, data); err != nil {
			if errors.Is(err, session.ErrMalformedEnvelope) {
				logger.Warn("malformed envelope, closing connection", "conn", c.id, "err", err)
				_ = c.Send(room.Envelope{Type: room.EnvError, Error: err.Error()})
				return
			}
			logger.Debug("dispatch error, connection continues", "conn", c.id, "err", err)
		}
	}
}
