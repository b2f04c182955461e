// Package room implements the per-room collaboration engine: one CRDT
// tree, one logical clock, presence/cursor/live-state tables, and the
// set of attached connections, all mutated under a single mutex so the
// room behaves as one logical thread.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brunoga/deep"

	"github.com/Polqt/crdtcollab/clock"
	"github.com/Polqt/crdtcollab/crdt"
	"github.com/Polqt/crdtcollab/history"
	"github.com/Polqt/crdtcollab/metrics"
)

// dropReason maps a tree-apply error to a stable, low-cardinality metric
// label instead of the raw error string.
func dropReason(err error) string {
	switch {
	case errors.Is(err, crdt.ErrStaleClock):
		return "stale_clock"
	case errors.Is(err, crdt.ErrUnknownPath):
		return "unknown_path"
	case errors.Is(err, crdt.ErrSchemaViolation):
		return "schema_violation"
	default:
		return "other"
	}
}

// Conn is the connection-facing surface a transport must implement so
// the room can push envelopes without depending on any transport
// concrete type.
type Conn interface {
	ID() ConnID
	Send(Envelope) error
	Close() error
}

// JoinPayload carries the attach-time parameters of a join request.
type JoinPayload struct {
	UserID         string
	DisplayName    string
	Color          string
	Location       string
	InitialStorage *crdt.Record // non-nil only on a first-seed attempt
}

// Welcome is what Attach returns to the admitted connection.
type Welcome struct {
	Root      []byte // serialized root, nil if the room is unseeded
	Presence  []PresenceEntry
	Cursors   map[ConnID]Cursor
	LiveState map[string]LiveEntry
	RoomClock uint64
}

type connState struct {
	conn    Conn
	history *history.Manager
}

// Room is one collaboration session: its CRDT tree, clock, and
// presence/cursor/live-state tables, plus the machinery (durability
// hook, debounced flush) that keeps them durable.
type Room struct {
	id     RoomID
	logger *slog.Logger

	historyCap    int
	flushDebounce time.Duration
	hook          Hook

	mu        sync.Mutex
	tree      *crdt.Tree
	clock     *clock.Clock
	seeded    bool
	conns     map[ConnID]*connState
	presence  map[ConnID]Presence
	cursors   map[ConnID]Cursor
	liveState map[string]LiveEntry
	pending   []crdt.Op
	flushSet  bool
	closed    bool
}

// New creates an unseeded room. If initialRoot is non-nil (typically
// the result of Hook.InitialStorage at construction time), it is seeded
// immediately, before any connection can race it.
func New(id RoomID, hook Hook, historyCap int, flushDebounce time.Duration, logger *slog.Logger, initialRoot *crdt.Record) *Room {
	if hook == nil {
		hook = NoopHook{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	clk := clock.New()
	r := &Room{
		id:            id,
		logger:        logger,
		historyCap:    historyCap,
		flushDebounce: flushDebounce,
		hook:          hook,
		tree:          crdt.NewTree(clk),
		clock:         clk,
		conns:         make(map[ConnID]*connState),
		presence:      make(map[ConnID]Presence),
		cursors:       make(map[ConnID]Cursor),
		liveState:     make(map[string]LiveEntry),
	}
	if initialRoot != nil {
		r.tree.Seed(initialRoot)
		r.seeded = true
	}
	return r
}

// ID returns the room's id.
func (r *Room) ID() RoomID { return r.id }

// Attach admits conn: seeds the tree if this is the first seed
// attempt, registers presence, and returns the welcome payload.
// Subsequent initial_storage payloads after the room is seeded are
// silently dropped.
func (r *Room) Attach(conn Conn, payload JoinPayload) (Welcome, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Welcome{}, ErrRoomClosed
	}

	if payload.InitialStorage != nil && !r.seeded {
		r.tree.Seed(payload.InitialStorage)
		r.seeded = true
	} else if payload.InitialStorage != nil {
		r.logger.Debug("stale seed dropped", "room", r.id, "conn", conn.ID())
	}

	r.conns[conn.ID()] = &connState{conn: conn, history: history.New(r.historyCap)}
	r.presence[conn.ID()] = Presence{
		UserID:       payload.UserID,
		DisplayName:  payload.DisplayName,
		Color:        payload.Color,
		OnlineStatus: "online",
		Location:     payload.Location,
	}

	welcome := r.welcomeLocked()
	presenceList := r.presenceListLocked()
	r.mu.Unlock()

	r.broadcastToOthers(conn.ID(), Envelope{Type: EnvPresence, Presence: presenceList})
	go r.hook.OnJoin(context.Background(), r.id, payload.UserID)
	return welcome, nil
}

// welcomeLocked builds the admit-time snapshot. Callers must hold r.mu.
func (r *Room) welcomeLocked() Welcome {
	var rootBytes []byte
	if r.seeded {
		// deep.Copy detaches the snapshot from the live arena before
		// serializing, so a concurrent op landing after we release
		// r.mu cannot be observed mid-encode.
		rootCopy, err := deep.Copy(r.tree.Root())
		if err != nil {
			r.logger.Warn("welcome snapshot clone failed", "room", r.id, "err", err)
		} else if b, err := crdt.SerializeNode(rootCopy); err == nil {
			rootBytes = b
		}
	}
	return Welcome{
		Root:      rootBytes,
		Presence:  r.presenceListLocked(),
		Cursors:   r.cursorsCopyLocked(),
		LiveState: r.liveStateCopyLocked(),
		RoomClock: r.clock.Peek(),
	}
}

func (r *Room) presenceListLocked() []PresenceEntry {
	out := make([]PresenceEntry, 0, len(r.presence))
	for id, p := range r.presence {
		out = append(out, PresenceEntry{ConnID: id, Presence: p})
	}
	return out
}

func (r *Room) cursorsCopyLocked() map[ConnID]Cursor {
	out := make(map[ConnID]Cursor, len(r.cursors))
	for k, v := range r.cursors {
		out[k] = v
	}
	return out
}

func (r *Room) liveStateCopyLocked() map[string]LiveEntry {
	out := make(map[string]LiveEntry, len(r.liveState))
	for k, v := range r.liveState {
		out[k] = v
	}
	return out
}

// Detach removes conn. It reports whether the room is now
// empty, in which case the caller (session manager) should drop its
// registry entry once Room has scheduled its final flush.
func (r *Room) Detach(conn Conn) (empty bool) {
	r.mu.Lock()
	if _, ok := r.conns[conn.ID()]; !ok {
		empty = len(r.conns) == 0
		r.mu.Unlock()
		return empty
	}
	userID := r.presence[conn.ID()].UserID
	delete(r.conns, conn.ID())
	delete(r.presence, conn.ID())
	delete(r.cursors, conn.ID())
	empty = len(r.conns) == 0
	presenceList := r.presenceListLocked()
	r.mu.Unlock()

	_ = conn.Close()
	r.broadcastToOthers(conn.ID(), Envelope{Type: EnvPresence, Presence: presenceList})
	go r.hook.OnLeave(context.Background(), r.id, userID)

	if empty {
		r.flushNow()
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
	}
	return empty
}

// SeedFromClient accepts a storage:init payload arriving over the wire
// after attach: the first client's seed payload becomes the room's
// root. The first seed wins; any later call is a no-op and reports
// ErrStaleSeed so the caller can log it at debug level. On success, the
// new root is broadcast to every other attached connection so late
// arrivals already in the welcome race observe the seed too.
func (r *Room) SeedFromClient(connID ConnID, root *crdt.Record) error {
	r.mu.Lock()
	if _, ok := r.conns[connID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	if r.seeded {
		r.mu.Unlock()
		return crdt.ErrStaleSeed
	}
	r.tree.Seed(root)
	r.seeded = true
	rootBytes, err := r.tree.Serialize()
	if err != nil {
		r.logger.Warn("seed serialize failed", "room", r.id, "err", err)
	}
	roomClock := r.clock.Peek()
	r.mu.Unlock()

	if rootBytes != nil {
		r.broadcastToOthers(connID, Envelope{Type: EnvStorageInit, Root: rootBytes, Clock: roomClock})
	}
	return nil
}

// IngestOps applies ops in order, returning the inverse ops for the
// originating connection's own history (delivered
// out-of-band, never broadcast). Malformed ops are dropped silently and
// never fail the call.
func (r *Room) IngestOps(connID ConnID, ops []crdt.Op) ([]crdt.Op, error) {
	r.mu.Lock()
	cs, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}

	cs.history.StartBatch()
	var applied, inverses []crdt.Op
	var roomClock uint64
	for _, op := range ops {
		// The origin is the server's own notion of who sent this op, not
		// whatever the client put on the wire: the tie-break on an equal
		// clock only holds if origin can't be forged by another peer.
		op.Origin = string(connID)
		inverse, err := r.tree.Apply(op)
		if err != nil {
			r.logger.Debug("dropped op", "room", r.id, "conn", connID, "err", err)
			metrics.OpsDropped.WithLabelValues(dropReason(err)).Inc()
			continue
		}
		metrics.OpsIngested.WithLabelValues(string(op.Kind)).Inc()
		roomClock = r.clock.Peek()
		applied = append(applied, op)
		if inverse != nil {
			inverses = append(inverses, *inverse)
			cs.history.Record(op, *inverse)
		}
	}
	cs.history.EndBatch()
	r.pending = append(r.pending, applied...)
	needFlush := len(r.pending) > 0 && !r.flushSet
	if needFlush {
		r.flushSet = true
	}
	r.mu.Unlock()

	if len(applied) > 0 {
		metrics.OpsBroadcast.Add(float64(len(applied)))
		r.broadcastToOthers(connID, Envelope{Type: EnvStorageOps, Ops: applied, Clock: roomClock})
	}
	if needFlush {
		time.AfterFunc(r.flushDebounce, r.flushNow)
	}
	return inverses, nil
}

// Undo re-applies connID's most recent recorded inverse batch at a
// fresh room-clock authority (so it wins over anything written since)
// and broadcasts it exactly like a freshly ingested op batch.
func (r *Room) Undo(connID ConnID) ([]crdt.Op, error) {
	return r.undoRedo(connID, func(cs *connState) []crdt.Op { return cs.history.Undo() })
}

// Redo is the inverse of Undo.
func (r *Room) Redo(connID ConnID) ([]crdt.Op, error) {
	return r.undoRedo(connID, func(cs *connState) []crdt.Op { return cs.history.Redo() })
}

func (r *Room) undoRedo(connID ConnID, pop func(*connState) []crdt.Op) ([]crdt.Op, error) {
	r.mu.Lock()
	cs, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	toApply := pop(cs)

	var applied []crdt.Op
	var roomClock uint64
	for _, op := range toApply {
		op.Clock = r.clock.Tick()
		op.Origin = string(connID)
		if _, err := r.tree.Apply(op); err != nil {
			continue
		}
		roomClock = r.clock.Peek()
		applied = append(applied, op)
	}
	r.pending = append(r.pending, applied...)
	needFlush := len(r.pending) > 0 && !r.flushSet
	if needFlush {
		r.flushSet = true
	}
	r.mu.Unlock()

	if len(applied) > 0 {
		r.broadcastToOthers(connID, Envelope{Type: EnvStorageOps, Ops: applied, Clock: roomClock})
	}
	if needFlush {
		time.AfterFunc(r.flushDebounce, r.flushNow)
	}
	return applied, nil
}

// UpdatePresence shallow-merges patch into connID's presence entry and
// broadcasts the full presence list.
func (r *Room) UpdatePresence(connID ConnID, patch PresencePatch) error {
	r.mu.Lock()
	p, ok := r.presence[connID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	r.presence[connID] = applyPresencePatch(p, patch)
	presenceList := r.presenceListLocked()
	r.mu.Unlock()

	r.broadcastToOthers(connID, Envelope{Type: EnvPresence, Presence: presenceList})
	return nil
}

// UpdateCursor replaces connID's cursor entry and broadcasts it. The
// room does not throttle cursor updates; the client is expected to.
func (r *Room) UpdateCursor(connID ConnID, x, y float64, viewport *Viewport) error {
	r.mu.Lock()
	if _, ok := r.conns[connID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownConnection, connID)
	}
	r.cursors[connID] = Cursor{X: x, Y: y, Viewport: viewport}
	snapshot := map[ConnID]Cursor{connID: r.cursors[connID]}
	r.mu.Unlock()

	r.broadcastToOthers(connID, Envelope{Type: EnvCursors, Cursors: snapshot})
	return nil
}

// UserIDFor returns the UserID presence was attached with for connID.
func (r *Room) UserIDFor(connID ConnID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.presence[connID]
	if !ok {
		return "", false
	}
	return p.UserID, true
}

// SetLiveState applies an LWW-by-timestamp write to key, optionally
// shallow-merging object values, and broadcasts the new entry. owner is
// the UserID of the connection that wrote this value.
func (r *Room) SetLiveState(connID ConnID, key string, value any, timestamp float64, owner string, merge bool) {
	r.mu.Lock()
	prior, existed := r.liveState[key]
	if existed && timestamp < prior.Timestamp {
		r.mu.Unlock()
		return
	}
	newVal := value
	if merge && existed {
		newVal = mergeLiveValue(prior.Value, value)
	}
	entry := LiveEntry{Value: newVal, Timestamp: timestamp, Owner: owner, LastWriter: string(connID)}
	r.liveState[key] = entry
	r.mu.Unlock()

	r.broadcastToOthers(connID, Envelope{Type: EnvLiveState, LiveState: map[string]LiveEntry{key: entry}})
}

// Broadcast relays an opaque message to every other connection.
func (r *Room) Broadcast(connID ConnID, message []byte) {
	r.broadcastToOthers(connID, Envelope{Type: EnvMessage, Message: message})
}

func (r *Room) snapshotConns(exclude ConnID) []Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Conn, 0, len(r.conns))
	for id, cs := range r.conns {
		if id == exclude {
			continue
		}
		out = append(out, cs.conn)
	}
	return out
}

// broadcastToOthers fans env out to every attached connection except
// exclude. A peer whose send fails is dropped rather than retried or
// buffered.
func (r *Room) broadcastToOthers(exclude ConnID, env Envelope) {
	for _, c := range r.snapshotConns(exclude) {
		if err := c.Send(env); err != nil {
			r.logger.Warn("send failed, dropping peer", "room", r.id, "conn", c.ID(), "err", err)
			metrics.PeersDropped.Inc()
			r.Detach(c)
		}
	}
}

// flushNow drains pending ops and hands a deep-copied, alias-free batch
// to the durability hook outside the room lock.
func (r *Room) flushNow() {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.flushSet = false
	r.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	safe, err := deep.Copy(batch)
	if err != nil {
		r.logger.Warn("flush snapshot clone failed", "room", r.id, "err", err)
		safe = batch
	}
	if err := r.hook.OnOpsChange(context.Background(), r.id, safe); err != nil {
		r.logger.Error("durability flush failed", "room", r.id, "err", err)
		metrics.DurabilityFailures.WithLabelValues("on_ops_change").Inc()
	}
}
