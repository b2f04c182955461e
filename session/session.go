// Package session owns the room registry and envelope dispatch table,
// binding each connection to a room.Room and routing its wire
// envelopes to that room's presence/cursor/live-state/storage surface.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Polqt/crdtcollab/crdt"
	"github.com/Polqt/crdtcollab/metrics"
	"github.com/Polqt/crdtcollab/room"
)

// Config holds the tunables a Manager hands to every room it constructs.
type Config struct {
	HistoryCap    int
	FlushDebounce time.Duration
}

// Manager is the central registry of all active rooms and the
// connection→room binding used to route inbound envelopes.
type Manager struct {
	logger *slog.Logger
	hook   room.Hook
	cfg    Config

	mu    sync.RWMutex
	rooms map[room.RoomID]*room.Room
	conns map[room.ConnID]room.RoomID
}

// NewManager creates an empty Manager backed by the given durability hook.
func NewManager(hook room.Hook, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger: logger,
		hook:   hook,
		cfg:    cfg,
		rooms:  make(map[room.RoomID]*room.Room),
		conns:  make(map[room.ConnID]room.RoomID),
	}
}

// Connect resolves or constructs roomID's room, attaches conn to it, and
// records the connection→room binding so future Dispatch/Disconnect calls
// can find it.
func (m *Manager) Connect(roomID room.RoomID, conn room.Conn, payload room.JoinPayload) (room.Welcome, error) {
	r := m.resolveOrConstruct(roomID)
	welcome, err := r.Attach(conn, payload)
	if err != nil {
		return room.Welcome{}, err
	}
	m.mu.Lock()
	m.conns[conn.ID()] = roomID
	m.mu.Unlock()
	metrics.ActiveConnections.Inc()
	return welcome, nil
}

func (m *Manager) resolveOrConstruct(roomID room.RoomID) *room.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		return r
	}

	var initialRoot *crdt.Record
	data, err := m.hook.InitialStorage(context.Background(), roomID)
	if err != nil {
		m.logger.Error("durability initial_storage failed", "room", roomID, "err", err)
		metrics.DurabilityFailures.WithLabelValues("initial_storage").Inc()
	} else if data != nil {
		if node, derr := crdt.DeserializeNode(data); derr != nil {
			m.logger.Error("durability initial_storage decode failed", "room", roomID, "err", derr)
		} else if rec, ok := node.(*crdt.Record); ok {
			initialRoot = rec
		}
	}

	r := room.New(roomID, m.hook, m.cfg.HistoryCap, m.cfg.FlushDebounce, m.logger, initialRoot)
	m.rooms[roomID] = r
	metrics.ActiveRooms.Inc()
	return r
}

// Disconnect detaches conn from its bound room and, if that was the
// room's last connection, removes it from the registry.
func (m *Manager) Disconnect(conn room.Conn) {
	m.mu.Lock()
	roomID, ok := m.conns[conn.ID()]
	if ok {
		delete(m.conns, conn.ID())
	}
	r, hasRoom := m.rooms[roomID]
	m.mu.Unlock()

	if !ok || !hasRoom {
		m.logger.Debug("disconnect for unknown connection", "conn", conn.ID())
		return
	}
	metrics.ActiveConnections.Dec()
	if empty := r.Detach(conn); empty {
		m.mu.Lock()
		delete(m.rooms, roomID)
		m.mu.Unlock()
		metrics.ActiveRooms.Dec()
	}
}

// Dispatch decodes a raw envelope from conn and routes it to the room
// conn is bound to.
func (m *Manager) Dispatch(conn room.Conn, raw []byte) error {
	m.mu.RLock()
	roomID, ok := m.conns[conn.ID()]
	r := m.rooms[roomID]
	m.mu.RUnlock()
	if !ok || r == nil {
		return fmt.Errorf("%w: conn %s not bound to a room", ErrUnknownRoom, conn.ID())
	}

	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		metrics.EnvelopesDropped.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch env.Type {
	case InStorageInit:
		if len(env.Root) == 0 {
			return nil
		}
		node, derr := crdt.DeserializeNode(env.Root)
		if derr != nil {
			m.logger.Debug("storage:init decode failed", "conn", conn.ID(), "err", derr)
			return nil
		}
		rec, ok := node.(*crdt.Record)
		if !ok {
			m.logger.Debug("storage:init did not decode to a record", "conn", conn.ID())
			return nil
		}
		if err := r.SeedFromClient(conn.ID(), rec); err != nil {
			// A stale (post-seed) storage:init is dropped silently.
			m.logger.Debug("storage:init rejected", "conn", conn.ID(), "err", err)
		}
		return nil

	case InStorageOps:
		inverses, err := r.IngestOps(conn.ID(), env.Ops)
		if err != nil {
			m.logger.Debug("ingest_ops rejected", "conn", conn.ID(), "err", err)
			return nil
		}
		if len(inverses) > 0 {
			_ = conn.Send(room.Envelope{Type: room.EnvStorageOps, Ops: inverses})
		}
		return nil

	case InStorageUndo:
		ops, err := r.Undo(conn.ID())
		if err != nil {
			m.logger.Debug("undo rejected", "conn", conn.ID(), "err", err)
			return nil
		}
		if len(ops) > 0 {
			_ = conn.Send(room.Envelope{Type: room.EnvStorageOps, Ops: ops})
		}
		return nil

	case InStorageRedo:
		ops, err := r.Redo(conn.ID())
		if err != nil {
			m.logger.Debug("redo rejected", "conn", conn.ID(), "err", err)
			return nil
		}
		if len(ops) > 0 {
			_ = conn.Send(room.Envelope{Type: room.EnvStorageOps, Ops: ops})
		}
		return nil

	case InPresenceUpdate:
		if env.Presence == nil {
			return nil
		}
		if err := r.UpdatePresence(conn.ID(), env.Presence.toPatch()); err != nil {
			m.logger.Debug("presence update rejected", "conn", conn.ID(), "err", err)
		}
		return nil

	case InCursorUpdate:
		if err := r.UpdateCursor(conn.ID(), env.X, env.Y, env.Viewport); err != nil {
			m.logger.Debug("cursor update rejected", "conn", conn.ID(), "err", err)
		}
		return nil

	case InLiveStateSet:
		var value any
		if len(env.Value) > 0 {
			if err := json.Unmarshal(env.Value, &value); err != nil {
				m.logger.Debug("live-state value decode failed", "conn", conn.ID(), "err", err)
				return nil
			}
		}
		owner, _ := r.UserIDFor(conn.ID())
		r.SetLiveState(conn.ID(), env.Key, value, env.Timestamp, owner, env.Merge)
		return nil

	case InMessage:
		r.Broadcast(conn.ID(), env.Message)
		return nil

	default:
		metrics.EnvelopesDropped.WithLabelValues("unknown_type").Inc()
		return fmt.Errorf("%w: unknown type %q", ErrMalformedEnvelope, env.Type)
	}
}
